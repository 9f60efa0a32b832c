package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cuemby/nexus/pkg/events"
	"github.com/cuemby/nexus/pkg/state"
)

// HealthServer exposes liveness/readiness HTTP endpoints alongside the gRPC
// Nexus RPC Server, for whatever external process supervisor or load
// balancer probes this fabric.
type HealthServer struct {
	store *state.Store
	bus   *events.Bus
	mux   *http.ServeMux
}

// NewHealthServer constructs a health server backed by store and bus.
func NewHealthServer(store *state.Store, bus *events.Bus) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{store: store, bus: bus, mux: mux}
	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	return hs
}

// Start runs the HTTP health server, blocking until it errors or is closed.
func (hs *HealthServer) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// HealthResponse is the /health liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /ready readiness payload.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports whether the state store is reachable and the event
// bus has at least accepted its construction; there is no leader election or
// external storage in this design, so readiness reduces to "the process
// finished initializing."
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := map[string]string{"store": "ok", "event_bus": "ok"}
	if hs.store == nil {
		checks["store"] = "not initialized"
	}
	if hs.bus == nil {
		checks["event_bus"] = "not initialized"
	}

	status := http.StatusOK
	state := "ready"
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			state = "not ready"
		}
	}

	writeJSON(w, status, ReadyResponse{Status: state, Timestamp: time.Now(), Checks: checks})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetHandler returns the HTTP handler, for embedding alongside other
// servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}
