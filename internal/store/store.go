// Package store provides the key-value persistence used to keep session
// records across restarts. Values are opaque JSON documents.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidKey   = errors.New("invalid store key")
	ErrInvalidValue = errors.New("store value is not valid JSON")
)

// Store is a key-value persistence backend. Implementations must be safe for
// concurrent use. A missing key is reported through the bool result, never as
// an error.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// compactValue validates value and strips insignificant whitespace, so every
// backend hands back the same bytes it persisted.
func compactValue(value []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return nil, ErrInvalidValue
	}
	return buf.Bytes(), nil
}
