package handler

import (
	"encoding/json"

	"google.golang.org/grpc"
)

// CodecName is the content-subtype the reconciliation service speaks.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// ServerCodec makes a gRPC server decode and encode every message as JSON.
// The process-wide codec registry is left alone.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}
