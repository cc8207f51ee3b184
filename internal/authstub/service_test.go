package authstub

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, users UserStore, ttl time.Duration) *Service {
	t.Helper()
	svc, err := NewService(users, ServiceConfig{TokenTTL: ttl, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	if err := svc.EnsureUser(User{ID: 7, Username: "alice", FirstName: "Alice", LastName: "Liddell"}, "correct-horse"); err != nil {
		t.Fatalf("EnsureUser() error: %v", err)
	}
	return svc
}

func TestNewServiceValidatesConfig(t *testing.T) {
	if _, err := NewService(nil, ServiceConfig{TokenTTL: time.Minute}); err == nil {
		t.Fatalf("expected error for nil user store")
	}
	if _, err := NewService(NewInMemoryUserStore(), ServiceConfig{}); err == nil {
		t.Fatalf("expected error for zero TTL")
	}
	if _, err := NewService(NewInMemoryUserStore(), ServiceConfig{TokenTTL: time.Minute, BcryptCost: 99}); err == nil {
		t.Fatalf("expected error for bcrypt cost out of range")
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc := newTestService(t, NewInMemoryUserStore(), 2*time.Minute)

	session, err := svc.Login("alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if len(session.Token) != 2*tokenBytes {
		t.Fatalf("expected %d hex chars, got %q", 2*tokenBytes, session.Token)
	}
	if len(session.ID) != 26 {
		t.Fatalf("expected ulid session id, got %q", session.ID)
	}

	validated, err := svc.ValidateToken(session.Token)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}
	if validated.Username != "alice" {
		t.Fatalf("expected username alice, got %q", validated.Username)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc := newTestService(t, NewInMemoryUserStore(), time.Minute)

	for _, tc := range []struct{ user, pass string }{
		{"alice", "wrong"},
		{"bob", "correct-horse"},
		{"", ""},
	} {
		if _, err := svc.Login(tc.user, tc.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q) expected ErrInvalidCredentials, got %v", tc.user, err)
		}
	}
}

func TestExpiredToken(t *testing.T) {
	svc := newTestService(t, NewInMemoryUserStore(), time.Minute)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return now }

	session, err := svc.Login("alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if svc.ActiveSessions() != 1 {
		t.Fatalf("expected one active session")
	}

	now = now.Add(2 * time.Minute)
	if _, err := svc.ValidateToken(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if svc.ActiveSessions() != 0 {
		t.Fatalf("expected expired session pruned")
	}
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, NewInMemoryUserStore(), time.Minute)
	session, err := svc.Login("alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	if err := svc.Logout(session.Token); err != nil {
		t.Fatalf("Logout() error: %v", err)
	}
	if _, err := svc.ValidateToken(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token revoked, got %v", err)
	}
	if err := svc.Logout(session.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected second Logout() to fail with ErrInvalidToken, got %v", err)
	}
}

func TestProfileAndUpdateEmail(t *testing.T) {
	svc := newTestService(t, NewInMemoryUserStore(), time.Minute)
	session, err := svc.Login("alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}

	u, err := svc.Profile(session.Token)
	if err != nil {
		t.Fatalf("Profile() error: %v", err)
	}
	if u.ID != 7 || u.Email != "" || u.FirstName != "Alice" {
		t.Fatalf("unexpected profile %+v", u)
	}

	later := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	svc.nowFunc = func() time.Time { return later }
	session.ExpiresAt = later.Add(time.Minute)
	svc.sessions[session.Token] = session

	if err := svc.UpdateEmail(session.Token, "not-an-address"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := svc.UpdateEmail(session.Token, "alice@example.com"); err != nil {
		t.Fatalf("UpdateEmail() error: %v", err)
	}
	u, _ = svc.Profile(session.Token)
	if u.Email != "alice@example.com" || !u.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected profile after update %+v", u)
	}

	if err := svc.UpdateEmail("nope", "alice@example.com"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestEnsureUserKeepsExisting(t *testing.T) {
	users := NewInMemoryUserStore()
	svc := newTestService(t, users, time.Minute)

	if err := svc.EnsureUser(User{ID: 8, Username: "alice"}, "another-password"); err != nil {
		t.Fatalf("EnsureUser() error: %v", err)
	}
	if _, err := svc.Login("alice", "correct-horse"); err != nil {
		t.Fatalf("first password should still work: %v", err)
	}
	if err := svc.EnsureUser(User{Username: " "}, "x"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFileUserStorePersistsHashes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	users, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("NewFileUserStore() error: %v", err)
	}
	newTestService(t, users, time.Minute)

	reloaded, err := NewFileUserStore(path)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	svc, err := NewService(reloaded, ServiceConfig{TokenTTL: time.Minute, BcryptCost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewService() error: %v", err)
	}
	if _, err := svc.Login("alice", "correct-horse"); err != nil {
		t.Fatalf("Login() against reloaded store error: %v", err)
	}
}

func TestNewFileUserStoreRequiresPath(t *testing.T) {
	if _, err := NewFileUserStore("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestUserStoreLookups(t *testing.T) {
	users := NewInMemoryUserStore()
	if err := users.Put(User{ID: 3, Username: "carol", Email: "carol@example.com"}); err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	u, err := users.GetByUsername("carol")
	if err != nil {
		t.Fatalf("GetByUsername() error: %v", err)
	}
	if u.ID != 3 || u.Email != "carol@example.com" {
		t.Fatalf("unexpected user %+v", u)
	}
	for _, name := range []string{"dave", "", " carol"} {
		if _, err := users.GetByUsername(name); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("GetByUsername(%q) expected ErrUserNotFound, got %v", name, err)
		}
	}
}
