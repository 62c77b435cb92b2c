// Package encoding holds the value marshaler used to persist entity properties, documents & messages.
package encoding

import (
	"encoding/json"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Encodes any object to byte array.
	Marshal(v any) ([]byte, error)
	// Decodes byte array back to its Object type.
	Unmarshal(data []byte, v any) error
}

// Global Default marshaller.
var DefaultMarshaler = NewMarshaler()

// ValueMarshaler packs & unpacks stored values. Replace it with your desired Marshaler implementation
// if needed, defaults to JSON.
var ValueMarshaler = DefaultMarshaler

type defaultMarshaler struct{}

// Returns the default marshaller which uses the golang's json package.
func NewMarshaler() Marshaler {
	return &defaultMarshaler{}
}

// Encodes any object to a byte array.
func (m defaultMarshaler) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decodes a byte array back to its Object type.
func (m defaultMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal that can do byte array pass-through.
func Marshal[T any](v T) ([]byte, error) {
	switch tv := any(v).(type) {
	case *[]byte:
		return *tv, nil
	case []byte:
		return tv, nil
	default:
		return ValueMarshaler.Marshal(v)
	}
}

// Unmarshal that can do byte array pass-through.
func Unmarshal[T any](ba []byte, v *T) error {
	if p, ok := any(v).(*[]byte); ok {
		*p = ba
		return nil
	}
	return ValueMarshaler.Unmarshal(ba, v)
}

// MarshalProperties encodes each property value on its own, keyed by property name.
func MarshalProperties(props map[string]any) (map[string]string, error) {
	r := make(map[string]string, len(props))
	for k, v := range props {
		ba, err := ValueMarshaler.Marshal(v)
		if err != nil {
			return nil, err
		}
		r[k] = string(ba)
	}
	return r, nil
}

// UnmarshalProperties decodes property values encoded by MarshalProperties.
func UnmarshalProperties(props map[string]string) (map[string]any, error) {
	r := make(map[string]any, len(props))
	for k, s := range props {
		var v any
		if err := ValueMarshaler.Unmarshal([]byte(s), &v); err != nil {
			return nil, err
		}
		r[k] = v
	}
	return r, nil
}
