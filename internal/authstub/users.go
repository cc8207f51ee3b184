package authstub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"searchkit/sessionclient/internal/store"
)

var ErrUserNotFound = errors.New("user not found")

type UserStore interface {
	GetByUsername(username string) (User, error)
	Put(user User) error
}

// KVUserStore keeps one JSON document per username in a session store
// backend. Rollback on failed writes is the backend's concern.
type KVUserStore struct {
	kv store.Store
}

func NewInMemoryUserStore() *KVUserStore {
	return &KVUserStore{kv: store.NewMemory()}
}

// NewFileUserStore keeps the user directory in a JSON file keyed by
// username. The file holds password hashes and is written owner-only.
func NewFileUserStore(path string) (*KVUserStore, error) {
	kv, err := store.NewFile(path)
	if err != nil {
		return nil, fmt.Errorf("open user file: %w", err)
	}
	return &KVUserStore{kv: kv}, nil
}

func (s *KVUserStore) GetByUsername(username string) (User, error) {
	b, ok, err := s.kv.Get(context.Background(), username)
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		return User{}, ErrUserNotFound
	case err != nil:
		return User{}, fmt.Errorf("read user %q: %w", username, err)
	case !ok:
		return User{}, ErrUserNotFound
	}

	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return User{}, fmt.Errorf("decode user %q: %w", username, err)
	}
	return u, nil
}

func (s *KVUserStore) Put(user User) error {
	b, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user %q: %w", user.Username, err)
	}
	return s.kv.Set(context.Background(), user.Username, b)
}
