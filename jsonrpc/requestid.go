package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or an
// integer. The zero value is the null ID. RequestID values are comparable
// with == and usable as map keys.
type RequestID struct {
	value any // nil | int64 | string
}

// NewIntID returns a numeric request ID.
func NewIntID(v int64) RequestID {
	return RequestID{value: v}
}

// NewStringID returns a string request ID.
func NewStringID(v string) RequestID {
	return RequestID{value: v}
}

// NewRequestID creates a RequestID from a string or any integer type. Other
// types yield the null ID.
func NewRequestID(value any) RequestID {
	switch v := value.(type) {
	case string:
		return RequestID{value: v}
	case int:
		return RequestID{value: int64(v)}
	case int32:
		return RequestID{value: int64(v)}
	case int64:
		return RequestID{value: v}
	case uint32:
		return RequestID{value: int64(v)}
	case uint64:
		return RequestID{value: int64(v)}
	default:
		return RequestID{}
	}
}

// String returns the string representation of the ID.
func (id RequestID) String() string {
	switch v := id.value.(type) {
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

// Value returns the underlying value: nil, int64 or string.
func (id RequestID) Value() any {
	return id.value
}

// IsNil reports whether the ID is the null ID.
func (id RequestID) IsNil() bool {
	return id.value == nil
}

// Equal reports whether two IDs denote the same request. A numeric ID never
// equals a string ID even when their text matches.
func (id RequestID) Equal(other RequestID) bool {
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler.
func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("JSON-RPC ID: %w", err)
		}
		id.value = str
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("JSON-RPC ID must be a string or integer, got: %s", string(data))
	}
	id.value = n
	return nil
}
