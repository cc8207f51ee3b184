package authstub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"searchkit/sessionclient/internal/authapi"
	"searchkit/sessionclient/internal/metrics"
)

type testEnvelope struct {
	Error   *bool           `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type recordingAudit struct {
	events []string
}

func (r *recordingAudit) Log(actor, action, outcome, detail string) error {
	r.events = append(r.events, actor+" "+action+" "+outcome)
	return nil
}

func newTestHandler(t *testing.T) (http.Handler, *Service, *recordingAudit) {
	t.Helper()
	svc := newTestService(t, NewInMemoryUserStore(), time.Hour)
	audit := &recordingAudit{}
	return NewHandler(Deps{Auth: svc, Audit: audit}), svc, audit
}

func do(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set(authapi.TokenHeader, token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env testEnvelope
	if strings.HasPrefix(path, apiPrefix) {
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode envelope: %v (body %s)", method, path, err, rr.Body.String())
		}
		if env.Error == nil {
			t.Fatalf("%s %s: envelope without error flag: %s", method, path, rr.Body.String())
		}
	}
	return rr, env
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rr, env := do(t, h, http.MethodPost, "/api/auth/ldap/login", "", `{"username":"alice","password":"correct-horse"}`)
	if rr.Code != http.StatusOK || *env.Error {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	var d authapi.LoginDetails
	if err := json.Unmarshal(env.Details, &d); err != nil {
		t.Fatalf("decode login details: %v", err)
	}
	if d.Token == "" || d.ExpiresAt.IsZero() {
		t.Fatalf("unexpected login details %+v", d)
	}
	return d.Token
}

func TestPingRoutes(t *testing.T) {
	h, _, _ := newTestHandler(t)
	for _, path := range []string{"/api", "/api/"} {
		rr, env := do(t, h, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK || *env.Error || env.Message == "" {
			t.Fatalf("GET %s: unexpected %d %s", path, rr.Code, rr.Body.String())
		}
	}
	rr, env := do(t, h, http.MethodGet, "/api/nope", "", "")
	if rr.Code != http.StatusNotFound || !*env.Error {
		t.Fatalf("expected 404 envelope, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoginHandler(t *testing.T) {
	h, _, audit := newTestHandler(t)
	login(t, h)

	rr, env := do(t, h, http.MethodPost, "/api/auth/ldap/login", "", `{"username":"alice","password":"nope"}`)
	if rr.Code != http.StatusUnauthorized || !*env.Error || env.Message != "Invalid username or password" {
		t.Fatalf("unexpected response %d %s", rr.Code, rr.Body.String())
	}

	rr, env = do(t, h, http.MethodPost, "/api/auth/ldap/login", "", `{"username":"alice"}`)
	if rr.Code != http.StatusBadRequest || !*env.Error {
		t.Fatalf("expected 400 for missing password, got %d", rr.Code)
	}

	rr, _ = do(t, h, http.MethodGet, "/api/auth/ldap/login", "", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	if len(audit.events) != 2 || audit.events[0] != "alice stub.login success" || audit.events[1] != "alice stub.login failed" {
		t.Fatalf("unexpected audit events %v", audit.events)
	}
}

func TestCheckAndLogoutHandlers(t *testing.T) {
	h, _, _ := newTestHandler(t)
	token := login(t, h)

	rr, env := do(t, h, http.MethodPost, "/api/auth/check", "", "")
	if rr.Code != http.StatusUnauthorized || !*env.Error || !strings.Contains(env.Message, authapi.TokenHeader) {
		t.Fatalf("expected missing header failure, got %d %s", rr.Code, rr.Body.String())
	}

	rr, env = do(t, h, http.MethodPost, "/api/auth/check", token, "")
	if rr.Code != http.StatusOK || *env.Error {
		t.Fatalf("check failed: %d %s", rr.Code, rr.Body.String())
	}
	var d authapi.CheckDetails
	if err := json.Unmarshal(env.Details, &d); err != nil || d.ExpiresAt.IsZero() {
		t.Fatalf("unexpected check details %s (%v)", env.Details, err)
	}

	rr, env = do(t, h, http.MethodPost, "/api/auth/logout", token, "")
	if rr.Code != http.StatusOK || *env.Error {
		t.Fatalf("logout failed: %d %s", rr.Code, rr.Body.String())
	}

	rr, env = do(t, h, http.MethodPost, "/api/auth/check", token, "")
	if rr.Code != http.StatusUnauthorized || !*env.Error {
		t.Fatalf("expected revoked token to fail, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestProfileHandlers(t *testing.T) {
	h, _, _ := newTestHandler(t)
	token := login(t, h)

	rr, env := do(t, h, http.MethodPost, "/api/user/profile", token, "")
	if rr.Code != http.StatusOK || *env.Error {
		t.Fatalf("profile failed: %d %s", rr.Code, rr.Body.String())
	}
	if bytes.Contains(env.Details, []byte(`"email"`)) {
		t.Fatalf("email must be omitted when unset: %s", env.Details)
	}
	var p authapi.ProfileDetails
	if err := json.Unmarshal(env.Details, &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.Username != "alice" || len(p.IDs) != 1 || p.IDs[0] != 7 || p.FirstName != "Alice" {
		t.Fatalf("unexpected profile %+v", p)
	}

	rr, env = do(t, h, http.MethodPut, "/api/user/profile", token, `{"first_name":"Bob"}`)
	if rr.Code != http.StatusBadRequest || !*env.Error {
		t.Fatalf("expected name edits rejected, got %d", rr.Code)
	}
	rr, env = do(t, h, http.MethodPut, "/api/user/profile", token, `{"email":"bad"}`)
	if rr.Code != http.StatusBadRequest || env.Message != "invalid email address" {
		t.Fatalf("expected invalid email, got %d %s", rr.Code, rr.Body.String())
	}
	rr, env = do(t, h, http.MethodPut, "/api/user/profile", token, `{"email":"alice@example.com"}`)
	if rr.Code != http.StatusOK || *env.Error {
		t.Fatalf("update failed: %d %s", rr.Code, rr.Body.String())
	}

	_, env = do(t, h, http.MethodPost, "/api/user/profile", token, "")
	if err := json.Unmarshal(env.Details, &p); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if p.Email == nil || *p.Email != "alice@example.com" {
		t.Fatalf("expected updated email, got %+v", p)
	}

	rr, _ = do(t, h, http.MethodDelete, "/api/user/profile", token, "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

func TestRequestIDAndHealth(t *testing.T) {
	h, _, _ := newTestHandler(t)
	login(t, h)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "rid-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("X-Request-Id"); got != "rid-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if body["sessions"] != float64(1) {
		t.Fatalf("expected 1 active session, got %v", body["sessions"])
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)
	svc := newTestService(t, NewInMemoryUserStore(), time.Hour)
	h := NewHandler(Deps{Auth: svc, Metrics: m, Gatherer: reg})

	login(t, h)
	do(t, h, http.MethodPost, "/api/auth/check", "", "")

	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP sessionclient_stub_http_requests_total Stub auth service requests by route and status code.
# TYPE sessionclient_stub_http_requests_total counter
sessionclient_stub_http_requests_total{code="200",route="/api/auth/ldap/login"} 1
sessionclient_stub_http_requests_total{code="401",route="/api/auth/check"} 1
`), "sessionclient_stub_http_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "sessionclient_stub_http_requests_total") {
		t.Fatalf("unexpected /metrics response %d", rr.Code)
	}
}
