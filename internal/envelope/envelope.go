// Package envelope carries decoded records over the wire as
// protobuf google.protobuf.Struct messages.
package envelope

import (
	"errors"
	"fmt"

	"github.com/gogo/protobuf/types"

	"github.com/weak-head/kv-pipe/internal/decoder"
)

// ContentType of an encoded record.
const ContentType = "application/x-protobuf"

// ErrUnsupportedValue happens when an encoded record holds
// a value that is neither a string nor null.
var ErrUnsupportedValue = errors.New("unsupported record value")

// ToStruct maps a record to a protobuf struct. Absent values become NullValue.
func ToStruct(record decoder.Record) *types.Struct {
	s := &types.Struct{Fields: make(map[string]*types.Value, len(record))}
	for field, value := range record {
		if value == nil {
			s.Fields[field] = &types.Value{Kind: &types.Value_NullValue{NullValue: types.NullValue_NULL_VALUE}}
			continue
		}
		s.Fields[field] = &types.Value{Kind: &types.Value_StringValue{StringValue: *value}}
	}
	return s
}

// FromStruct maps a protobuf struct back to a record.
func FromStruct(s *types.Struct) (decoder.Record, error) {
	record := make(decoder.Record, len(s.GetFields()))
	for field, value := range s.GetFields() {
		switch kind := value.GetKind().(type) {
		case *types.Value_NullValue:
			record[field] = nil
		case *types.Value_StringValue:
			v := kind.StringValue
			record[field] = &v
		default:
			return nil, fmt.Errorf("field %q: %w", field, ErrUnsupportedValue)
		}
	}
	return record, nil
}

// Encode marshals a record into protobuf bytes.
func Encode(record decoder.Record) ([]byte, error) {
	b, err := ToStruct(record).Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return b, nil
}

// Decode unmarshals protobuf bytes produced by Encode.
func Decode(b []byte) (decoder.Record, error) {
	s := &types.Struct{}
	if err := s.Unmarshal(b); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return FromStruct(s)
}
