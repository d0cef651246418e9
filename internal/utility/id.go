package utility

import (
	"encoding/json"
	"fmt"
)

// ID is an optional action identifier. The zero value of K is never a valid
// identifier, so "no id" is its own state rather than a magic default.
type ID[K comparable] struct {
	key K
	ok  bool
}

// SomeID wraps k. The zero value of K yields the empty ID.
func SomeID[K comparable](k K) ID[K] {
	var zero K
	if k == zero {
		return ID[K]{}
	}
	return ID[K]{key: k, ok: true}
}

// NoID returns the empty ID.
func NoID[K comparable]() ID[K] {
	return ID[K]{}
}

// Get returns the wrapped key and whether one is present.
func (id ID[K]) Get() (K, bool) {
	return id.key, id.ok
}

// Valid reports whether a key is present.
func (id ID[K]) Valid() bool {
	return id.ok
}

func (id ID[K]) String() string {
	if !id.ok {
		return "<none>"
	}
	return fmt.Sprint(id.key)
}

// MarshalJSON encodes the empty ID as null.
func (id ID[K]) MarshalJSON() ([]byte, error) {
	if !id.ok {
		return []byte("null"), nil
	}
	return json.Marshal(id.key)
}

// UnmarshalJSON decodes null (or a zero key) as the empty ID.
func (id *ID[K]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ID[K]{}
		return nil
	}
	var k K
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*id = SomeID(k)
	return nil
}
