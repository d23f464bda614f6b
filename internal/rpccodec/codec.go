// Package rpccodec provides a gRPC wire codec for OJP's hand-mirrored
// api/ojppb message types. A protoc-generated protobuf package is not
// available in this environment (no protoc tooling), so messages are
// framed with gob instead of protoc-generated binary protobuf; gRPC's
// own framing, streaming, trailers, and status codes are otherwise used
// unmodified. See api/ojppb/ojp.proto's header comment.
package rpccodec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Name is the codec name OJP's gRPC server and client register under,
// via grpc.CallContentSubtype / encoding.RegisterCodec.
const Name = "ojp"

// Codec implements google.golang.org/grpc/encoding.Codec over gob.
type Codec struct{}

func init() {
	encoding.RegisterCodec(Codec{})
}

// Marshal gob-encodes v.
func (Codec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("rpccodec: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal gob-decodes data into v, which must be a pointer.
func (Codec) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("rpccodec: unmarshal: %w", err)
	}
	return nil
}

// Name returns the codec's registered name.
func (Codec) Name() string { return Name }
