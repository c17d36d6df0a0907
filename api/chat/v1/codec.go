package v1

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype clients must request
// (application/grpc+json).
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes v. A ClientFrame that fails to decode is delivered with
// Malformed set instead of failing the stream.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if f, ok := v.(*ClientFrame); ok && err != nil {
		*f = ClientFrame{Malformed: err.Error()}
		return nil
	}
	return err
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
