package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// codec turns the full entry set into file bytes and back.
type codec interface {
	encode(entries map[string]json.RawMessage) ([]byte, error)
	decode(b []byte) (map[string]json.RawMessage, error)
}

type plainCodec struct{}

func (plainCodec) encode(entries map[string]json.RawMessage) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}

func (plainCodec) decode(b []byte) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// File keeps every entry in a single file that is rewritten on each mutation.
type File struct {
	path  string
	codec codec

	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// NewFile opens (or lazily creates) a plain JSON state file.
func NewFile(path string) (*File, error) {
	return openFile(path, plainCodec{})
}

func openFile(path string, c codec) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session state file path is required")
	}

	f := &File{
		path:    path,
		codec:   c,
		entries: make(map[string]json.RawMessage),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	v, ok := f.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	value, err := compactValue(value)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.entries[key]
	f.entries[key] = json.RawMessage(value)
	if err := f.persistLocked(); err != nil {
		if had {
			f.entries[key] = prev
		} else {
			delete(f.entries, key)
		}
		return err
	}
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.entries[key]
	if !had {
		return nil
	}
	delete(f.entries, key)
	if err := f.persistLocked(); err != nil {
		f.entries[key] = prev
		return err
	}
	return nil
}

func (f *File) load() error {
	b, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read session state file: %w", err)
	}
	if len(b) == 0 {
		return nil
	}

	decoded, err := f.codec.decode(b)
	if err != nil {
		return fmt.Errorf("decode session state file: %w", err)
	}
	for k, v := range decoded {
		if validateKey(k) != nil {
			continue
		}
		// The file is indented for reading; values are held compact.
		compact, err := compactValue(v)
		if err != nil {
			return fmt.Errorf("decode session state entry %q: %w", k, err)
		}
		f.entries[k] = compact
	}
	return nil
}

func (f *File) persistLocked() error {
	b, err := f.codec.encode(f.entries)
	if err != nil {
		return fmt.Errorf("encode session state file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("mkdir session state dir: %w", err)
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return fmt.Errorf("write session state file: %w", err)
	}
	return nil
}
