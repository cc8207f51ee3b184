package authstub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"searchkit/sessionclient/internal/authapi"
	"searchkit/sessionclient/internal/metrics"
)

const apiPrefix = "/api"

type AuthService interface {
	Login(username, password string) (Session, error)
	ValidateToken(token string) (Session, error)
	Logout(token string) error
	Profile(token string) (User, error)
	UpdateEmail(token, email string) error
	ActiveSessions() int
}

type AuditLogger interface {
	Log(actor, action, outcome, detail string) error
}

type RequestMetrics interface {
	Observe(route string, code int)
}

type Deps struct {
	Auth    AuthService
	Audit   AuditLogger
	Metrics RequestMetrics
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	httpServer *http.Server
}

func NewServer(addr string, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(deps),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	mux := http.NewServeMux()
	handle := func(route string, fn http.HandlerFunc) {
		mux.Handle(route, instrument(route, deps.Metrics, fn))
	}

	handle("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := map[string]any{"status": "ok"}
		if deps.Auth != nil {
			status["sessions"] = deps.Auth.ActiveSessions()
		}
		writeJSON(w, http.StatusOK, status)
	})
	if deps.Gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	ping := func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeOK(w, nil, "Auth service is running")
	}
	handle(apiPrefix, ping)
	handle(apiPrefix+"/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiPrefix+"/" {
			writeFailure(w, http.StatusNotFound, "route not found")
			return
		}
		ping(w, r)
	})

	registerAuthHandlers(handle, deps)
	registerProfileHandlers(handle, deps)

	return requestIDMiddleware(deps.Logger, mux)
}

func registerAuthHandlers(handle func(string, http.HandlerFunc), deps Deps) {
	handle(apiPrefix+"/auth/ldap/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if deps.Auth == nil {
			writeFailure(w, http.StatusServiceUnavailable, "auth service unavailable")
			return
		}

		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeFailure(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			writeFailure(w, http.StatusBadRequest, "username and password are required")
			return
		}

		session, err := deps.Auth.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				auditReq(deps.Audit, r, req.Username, "stub.login", "failed", "invalid credentials")
				writeFailure(w, http.StatusUnauthorized, "Invalid username or password")
				return
			}
			auditReq(deps.Audit, r, req.Username, "stub.login", "failed", err.Error())
			writeFailure(w, http.StatusInternalServerError, "login failed")
			return
		}
		auditReq(deps.Audit, r, session.Username, "stub.login", "success", "sid="+session.ID)

		writeOK(w, authapi.LoginDetails{
			Token:     session.Token,
			ExpiresAt: toTimestamp(session.ExpiresAt),
		}, "Welcome, "+session.Username)
	})

	handle(apiPrefix+"/auth/check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		writeOK(w, authapi.CheckDetails{ExpiresAt: toTimestamp(session.ExpiresAt)}, "")
	})

	handle(apiPrefix+"/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}
		if err := deps.Auth.Logout(session.Token); err != nil {
			auditReq(deps.Audit, r, session.Username, "stub.logout", "failed", "invalid token")
			writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		auditReq(deps.Audit, r, session.Username, "stub.logout", "success", "sid="+session.ID)
		writeOK(w, nil, "Logged out")
	})
}

func registerProfileHandlers(handle func(string, http.HandlerFunc), deps Deps) {
	handle(apiPrefix+"/user/profile", func(w http.ResponseWriter, r *http.Request) {
		session, ok := requireSession(w, r, deps.Auth)
		if !ok {
			return
		}

		switch r.Method {
		case http.MethodPost:
			u, err := deps.Auth.Profile(session.Token)
			if err != nil {
				writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}
			writeOK(w, profileDetails(u), "")
		case http.MethodPut:
			var req authapi.ProfileUpdate
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeFailure(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if req.FirstName != nil || req.LastName != nil {
				writeFailure(w, http.StatusBadRequest, "only email can be updated")
				return
			}
			if req.Email == nil {
				writeFailure(w, http.StatusBadRequest, "email is required")
				return
			}
			if err := deps.Auth.UpdateEmail(session.Token, *req.Email); err != nil {
				if errors.Is(err, ErrInvalidInput) {
					writeFailure(w, http.StatusBadRequest, "invalid email address")
					return
				}
				if errors.Is(err, ErrInvalidToken) {
					writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				auditReq(deps.Audit, r, session.Username, "stub.profile_update", "failed", err.Error())
				writeFailure(w, http.StatusInternalServerError, "profile update failed")
				return
			}
			auditReq(deps.Audit, r, session.Username, "stub.profile_update", "success", "sid="+session.ID)
			writeOK(w, nil, "Profile updated")
		default:
			writeFailure(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}

func requireSession(w http.ResponseWriter, r *http.Request, authSvc AuthService) (Session, bool) {
	if authSvc == nil {
		writeFailure(w, http.StatusServiceUnavailable, "auth service unavailable")
		return Session{}, false
	}
	token := strings.TrimSpace(r.Header.Get(authapi.TokenHeader))
	if token == "" {
		writeFailure(w, http.StatusUnauthorized, "missing "+authapi.TokenHeader+" header")
		return Session{}, false
	}
	session, err := authSvc.ValidateToken(token)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "Invalid or expired token")
		return Session{}, false
	}
	return session, true
}

func profileDetails(u User) authapi.ProfileDetails {
	d := authapi.ProfileDetails{
		IDs:       []int64{u.ID},
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		UpdatedAt: toTimestamp(u.UpdatedAt),
	}
	if u.Email != "" {
		email := u.Email
		d.Email = &email
	}
	return d
}

func toTimestamp(t time.Time) authapi.Timestamp {
	return authapi.Timestamp(float64(t.UnixMilli()) / 1000)
}

type envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeOK(w http.ResponseWriter, details any, message string) {
	writeJSON(w, http.StatusOK, envelope{Message: message, Details: details})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Error: true, Message: message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func instrument(route string, m RequestMetrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.Observe(route, rec.status)
	})
}

type requestIDKey struct{}

const requestIDHeader = "X-Request-Id"

func requestIDMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("request served",
			"rid", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func requestIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey{}).(string)
	return s
}

func auditReq(a AuditLogger, r *http.Request, actor, action, outcome, detail string) {
	if a == nil {
		return
	}
	parts := []string{"rid=" + requestIDFromContext(r.Context())}
	if detail = strings.TrimSpace(detail); detail != "" {
		parts = append(parts, detail)
	}
	_ = a.Log(actor, action, outcome, strings.Join(parts, " | "))
}
