package processor

import (
	"context"

	"github.com/weak-head/kv-pipe/internal/decoder"
	"github.com/weak-head/kv-pipe/internal/envelope"
)

// protoConverter encodes records as protobuf structs.
type protoConverter struct{}

// NewConverter creates the converter that encodes records as protobuf structs.
func NewConverter() (*protoConverter, error) {
	return &protoConverter{}, nil
}

// Convert encodes the record with the envelope codec.
func (c *protoConverter) Convert(ctx context.Context, record decoder.Record) ([]byte, error) {
	return envelope.Encode(record)
}

// ContentType of the encoded records.
func (c *protoConverter) ContentType() string {
	return envelope.ContentType
}
