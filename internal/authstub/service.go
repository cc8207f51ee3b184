package authstub

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidInput       = errors.New("invalid input")
)

const tokenBytes = 32

type Service struct {
	users      UserStore
	ttl        time.Duration
	bcryptCost int
	nowFunc    func() time.Time

	sessMu   sync.RWMutex
	sessions map[string]Session
}

type ServiceConfig struct {
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewService(userStore UserStore, cfg ServiceConfig) (*Service, error) {
	if userStore == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token TTL must be > 0")
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}

	return &Service{
		users:      userStore,
		ttl:        cfg.TokenTTL,
		bcryptCost: cost,
		nowFunc:    time.Now,
		sessions:   make(map[string]Session),
	}, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// EnsureUser creates u with the given password unless a user with the same
// username already exists.
func (s *Service) EnsureUser(u User, password string) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.Username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	if _, err := s.users.GetByUsername(u.Username); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = s.nowFunc().UTC()
	}
	if err := s.users.Put(u); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	return nil
}

func (s *Service) Login(username, password string) (Session, error) {
	u, err := s.users.GetByUsername(strings.TrimSpace(username))
	if err != nil {
		return Session{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}

	token, err := generateToken(tokenBytes)
	if err != nil {
		return Session{}, fmt.Errorf("generate token: %w", err)
	}

	now := s.nowFunc()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return Session{}, fmt.Errorf("generate session id: %w", err)
	}
	session := Session{
		ID:        id.String(),
		Token:     token,
		Username:  u.Username,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.sessMu.Lock()
	s.sessions[token] = session
	s.sessMu.Unlock()
	return session, nil
}

// ValidateToken returns the live session for token. Expired sessions are
// pruned on the way out.
func (s *Service) ValidateToken(token string) (Session, error) {
	s.sessMu.RLock()
	session, ok := s.sessions[token]
	s.sessMu.RUnlock()
	if !ok {
		return Session{}, ErrInvalidToken
	}

	if s.nowFunc().After(session.ExpiresAt) {
		s.sessMu.Lock()
		delete(s.sessions, token)
		s.sessMu.Unlock()
		return Session{}, ErrInvalidToken
	}
	return session, nil
}

func (s *Service) Logout(token string) error {
	if _, err := s.ValidateToken(token); err != nil {
		return err
	}
	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	if _, ok := s.sessions[token]; !ok {
		return ErrInvalidToken
	}
	delete(s.sessions, token)
	return nil
}

func (s *Service) Profile(token string) (User, error) {
	session, err := s.ValidateToken(token)
	if err != nil {
		return User{}, err
	}
	u, err := s.users.GetByUsername(session.Username)
	if err != nil {
		return User{}, ErrInvalidToken
	}
	return u, nil
}

func (s *Service) UpdateEmail(token, email string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" {
		return fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	u, err := s.Profile(token)
	if err != nil {
		return err
	}
	u.Email = addr.Address
	u.UpdatedAt = s.nowFunc().UTC()
	if err := s.users.Put(u); err != nil {
		return fmt.Errorf("store updated email: %w", err)
	}
	return nil
}

// ActiveSessions drops expired sessions and returns the number left.
func (s *Service) ActiveSessions() int {
	now := s.nowFunc()

	s.sessMu.Lock()
	defer s.sessMu.Unlock()
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
	return len(s.sessions)
}

func generateToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token length too short")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
