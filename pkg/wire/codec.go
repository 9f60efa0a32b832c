// Package wire defines the Nexus RPC Server's wire protocol: the request
// and response messages for each RPC, a JSON codec registered with gRPC so
// the service can be served and dialed without protoc-generated bindings,
// and the hand-written service descriptor/client stub that would otherwise
// come out of protoc-gen-go-grpc.
package wire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype this codec registers under. A
// client must dial with grpc.CallContentSubtype(CodecName) (or the
// ClientConn default set at construction) to match the server.
const CodecName = "fabric-json"

// jsonCodec implements encoding.Codec by marshaling messages as JSON rather
// than binary protobuf. Messages are plain Go structs (see messages.go),
// not proto.Message implementations, so this codec — not the grpc-go
// default — is mandatory for this service.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
