package types

import (
	"bytes"
	"encoding/json"
)

// Nullable tracks whether a JSON field was present, so a PATCH body can tell
// an omitted field from an explicit null.
type Nullable[T any] struct {
	Valid bool
	Value *T
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}

	if bytes.Equal(trimmed, []byte("null")) {
		n.Valid = true
		n.Value = nil
		return nil
	}

	var parsed T
	if err := json.Unmarshal(trimmed, &parsed); err != nil {
		return err
	}
	n.Valid = true
	n.Value = &parsed
	return nil
}

// Set builds a present, non-null value.
func Set[T any](v T) Nullable[T] {
	return Nullable[T]{Valid: true, Value: &v}
}

// Null builds a present, explicit null.
func Null[T any]() Nullable[T] {
	return Nullable[T]{Valid: true}
}
