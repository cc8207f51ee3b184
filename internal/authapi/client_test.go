package authapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api/", srv.Client())
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return c
}

func TestLoginSendsCredentials(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/ldap/login" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(TokenHeader) != "" {
			t.Errorf("login must not carry a token header")
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["username"] != "alice" || req["password"] != "correct" {
			t.Errorf("unexpected body %+v", req)
		}
		_, _ = io.WriteString(w, `{"error":false,"message":"welcome","details":{"token":"tok1","expires_at":1000}}`)
	}))

	res := c.Login(context.Background(), "alice", "correct")
	if !res.OK() {
		t.Fatalf("expected ok, got %v (%s)", res.Status, res.Message)
	}
	if res.Details.Token != "tok1" || res.Details.ExpiresAt != 1000 {
		t.Fatalf("unexpected details %+v", res.Details)
	}
	if res.Message != "welcome" {
		t.Fatalf("unexpected message %q", res.Message)
	}
}

func TestAuthenticatedCallsCarryToken(t *testing.T) {
	seen := map[string]string{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.Method+" "+r.URL.Path] = r.Header.Get(TokenHeader)
		_, _ = io.WriteString(w, `{"error":false,"details":{"expires_at":2000}}`)
	}))
	ctx := context.Background()

	if res := c.Check(ctx, "tok1"); !res.OK() || res.Details.ExpiresAt != 2000 {
		t.Fatalf("Check() = %+v", res)
	}
	c.Logout(ctx, "tok1")
	c.Profile(ctx, "tok1")
	email := "a@example.com"
	c.UpdateProfile(ctx, "tok1", ProfileUpdate{Email: &email})

	for _, k := range []string{"POST /api/auth/check", "POST /api/auth/logout", "POST /api/user/profile", "PUT /api/user/profile"} {
		if seen[k] != "tok1" {
			t.Fatalf("expected token on %s, got %q", k, seen[k])
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		status  Status
		message string
	}{
		{name: "ok", body: `{"error":false,"details":{"token":"t"}}`, status: StatusOK},
		{name: "explicit error", body: `{"error":true,"message":"bad credentials"}`, status: StatusFailed, message: "bad credentials"},
		{name: "missing error flag", body: `{"message":"odd"}`, status: StatusFailed, message: "odd"},
		{name: "not json", body: `<html>502</html>`, status: StatusUnreachable},
		{name: "empty body", body: ``, status: StatusUnreachable},
		{name: "bad details", body: `{"error":false,"details":{"token":42}}`, status: StatusFailed, message: "malformed response details"},
		{name: "null details", body: `{"error":false,"details":null}`, status: StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := normalize[LoginDetails]([]byte(tt.body))
			if res.Status != tt.status {
				t.Fatalf("expected %v, got %v", tt.status, res.Status)
			}
			if res.Message != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, res.Message)
			}
		})
	}
}

func TestErrorStatusCodeUsesEnvelope(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":true,"message":"token expired"}`)
	}))
	res := c.Check(context.Background(), "tok1")
	if res.Status != StatusFailed || res.Message != "token expired" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, &http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	res := c.Profile(context.Background(), "tok1")
	if res.Status != StatusUnreachable || res.Err == nil {
		t.Fatalf("expected unreachable with cause, got %+v", res)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "ftp://x"} {
		if _, err := NewClient(raw, nil); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestTimestampTime(t *testing.T) {
	got := Timestamp(1000.5).Time()
	want := time.Unix(1000, 500_000_000).UTC()
	if !got.Equal(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !Timestamp(0).IsZero() {
		t.Fatalf("expected zero timestamp")
	}
}

func TestTimestampDecodesServiceForms(t *testing.T) {
	tests := []struct {
		raw  string
		want Timestamp
	}{
		{raw: `1000`, want: 1000},
		{raw: `1000.25`, want: 1000.25},
		{raw: `"1500"`, want: 1500},
		{raw: `"1970-01-01T00:16:40Z"`, want: 1000},
		{raw: `"1970-01-01T00:16:40.5Z"`, want: 1000.5},
		{raw: `null`, want: 0},
		{raw: `""`, want: 0},
	}
	for _, tt := range tests {
		var got Timestamp
		if err := json.Unmarshal([]byte(tt.raw), &got); err != nil {
			t.Fatalf("Unmarshal(%s) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("Unmarshal(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}

	var bad Timestamp
	if err := json.Unmarshal([]byte(`"next tuesday"`), &bad); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestLoginAcceptsISOExpiry(t *testing.T) {
	res := normalize[LoginDetails]([]byte(`{"error":false,"details":{"token":"t","expires_at":"1970-01-01T00:16:40Z"}}`))
	if !res.OK() || res.Details.ExpiresAt != 1000 {
		t.Fatalf("unexpected result %+v", res)
	}
}
