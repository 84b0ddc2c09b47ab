// Package decoder turns a raw key/value byte pair, as delivered by a
// message consumer, into a record with two named string fields.
package decoder

import (
	"golang.org/x/text/encoding/unicode"
)

const (
	// DefaultKeyField is the record field that holds the decoded key.
	DefaultKeyField = "key"

	// DefaultValueField is the record field that holds the decoded value.
	DefaultValueField = "value"
)

// Config selects the record fields the key and the value are written to.
// A nil field means that side of the message is left out of the record.
type Config struct {
	KeyField   *string
	ValueField *string
}

// Field returns a pointer to name, for use in Config literals.
func Field(name string) *string {
	return &name
}

// Record is a decoded message. A nil value marks a field whose input
// was absent, which is not the same as an empty string.
type Record map[string]*string

// Lookup reports whether field is in the record and whether it carries a value.
func (r Record) Lookup(field string) (value string, present bool, found bool) {
	v, found := r[field]
	if !found || v == nil {
		return "", false, found
	}
	return *v, true, true
}

// KeyValueDecoder decodes key/value byte pairs as UTF-8 text.
// It holds no mutable state and is safe for concurrent use.
type KeyValueDecoder struct {
	keyField   *string
	valueField *string
}

// NewKeyValueDecoder creates a decoder writing to the configured fields.
// Field names are taken as is, the empty string included.
func NewKeyValueDecoder(config Config) *KeyValueDecoder {
	return &KeyValueDecoder{
		keyField:   copyField(config.KeyField),
		valueField: copyField(config.ValueField),
	}
}

// NewDefaultKeyValueDecoder creates a decoder writing to "key" and "value".
func NewDefaultKeyValueDecoder() *KeyValueDecoder {
	return NewKeyValueDecoder(Config{
		KeyField:   Field(DefaultKeyField),
		ValueField: Field(DefaultValueField),
	})
}

// KeyField returns the key field name and whether it is configured.
func (d *KeyValueDecoder) KeyField() (string, bool) {
	return fieldName(d.keyField)
}

// ValueField returns the value field name and whether it is configured.
func (d *KeyValueDecoder) ValueField() (string, bool) {
	return fieldName(d.valueField)
}

// Decode converts key and value into a new record.
//
// A nil slice is an absent input and yields a nil field value, while an empty
// non-nil slice yields "". Invalid UTF-8 is replaced with U+FFFD, so Decode
// never fails. When both fields share a name, the value wins.
func (d *KeyValueDecoder) Decode(key, value []byte) Record {
	record := make(Record, 2)
	if d.keyField != nil {
		record[*d.keyField] = decodeUTF8(key)
	}
	if d.valueField != nil {
		record[*d.valueField] = decodeUTF8(value)
	}
	return record
}

// ProducedType describes the records built by Decode.
func (d *KeyValueDecoder) ProducedType() TypeDescriptor {
	return ProducedType
}

func decodeUTF8(b []byte) *string {
	if b == nil {
		return nil
	}

	// The UTF-8 decoder replaces ill-formed input with U+FFFD instead of failing.
	decoded, _ := unicode.UTF8.NewDecoder().Bytes(b)
	s := string(decoded)
	return &s
}

func copyField(name *string) *string {
	if name == nil {
		return nil
	}
	return Field(*name)
}

func fieldName(name *string) (string, bool) {
	if name == nil {
		return "", false
	}
	return *name, true
}
