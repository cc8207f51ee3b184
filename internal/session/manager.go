// Package session owns the client-side authentication state: the bearer
// token and the cached user profile. It keeps the persisted records in line
// with what the remote auth service says, reports every outcome through a
// notification sink and tells subscribers when the state changes.
//
// No operation returns an error. Failures end up as notifications and as
// local state that reads "not authenticated" or "stale but present".
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"searchkit/sessionclient/internal/authapi"
	"searchkit/sessionclient/internal/notify"
	"searchkit/sessionclient/internal/store"
)

// API is the subset of the remote auth service the manager talks to.
type API interface {
	Login(ctx context.Context, username, password string) authapi.Result[authapi.LoginDetails]
	Check(ctx context.Context, token string) authapi.Result[authapi.CheckDetails]
	Logout(ctx context.Context, token string) authapi.Result[authapi.Empty]
	Profile(ctx context.Context, token string) authapi.Result[authapi.ProfileDetails]
	UpdateProfile(ctx context.Context, token string, update authapi.ProfileUpdate) authapi.Result[authapi.Empty]
}

type AuditLogger interface {
	Log(actor, action, outcome, detail string) error
}

type Metrics interface {
	ObserveOperation(operation, outcome string)
	SetAuthenticated(ok bool)
	ObserveCallbacks(n int)
}

type Options struct {
	Sink    notify.Sink
	Audit   AuditLogger
	Metrics Metrics
	Logger  *slog.Logger
	// Callbacks are subscribed at construction time.
	Callbacks []func()
}

const (
	titleAuthentication = "Authentication"
	titleProfile        = "Profile details"
	titleProfileUpdate  = "Profile update"
	titleTokenCheck     = "Token check"
	titleTokenCheckFail = "Token check failure"
	titleServerLogout   = "Server logout"
	titleClientLogout   = "Client logout"

	msgAuthUnreachable    = "Could not reach the authentication service"
	msgAuthNoToken        = "Authentication response did not include a token"
	msgAuthSaveFailed     = "Error while saving your session"
	msgProfileUnreachable = "Failed to retrieve your profile details"
	msgUpdateUnreachable  = "Failed to update your profile details"
	msgQueryFailed        = "Query failed"
	msgLoggedOut          = "Successfully logged you out"
	msgRequestRejected    = "Request rejected"
)

// Manager is the single owner of the session records in its store. Create
// one per application and share it.
type Manager struct {
	store   store.Store
	api     API
	sink    notify.Sink
	audit   AuditLogger
	metrics Metrics
	log     *slog.Logger
	subs    *subscribers
}

func New(st store.Store, api API, opts Options) (*Manager, error) {
	if st == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if api == nil {
		return nil, fmt.Errorf("auth api is required")
	}

	m := &Manager{
		store:   st,
		api:     api,
		sink:    opts.Sink,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		log:     opts.Logger,
		subs:    newSubscribers(),
	}
	if m.sink == nil {
		m.sink = notify.Discard
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	for _, fn := range opts.Callbacks {
		if fn != nil {
			m.subs.add(fn)
		}
	}
	return m, nil
}

// Subscribe registers fn to run after every state change. The store is
// already updated when fn runs.
func (m *Manager) Subscribe(fn func()) Subscription {
	return m.subs.add(fn)
}

func (m *Manager) Unsubscribe(sub Subscription) {
	m.subs.remove(sub)
}

// IsAuthenticated reports the cached belief; it never calls the service.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	a, ok := m.readAuth(ctx)
	return ok && a.valid()
}

func (m *Manager) Status(ctx context.Context) Status {
	a, ok := m.readAuth(ctx)
	switch {
	case !ok:
		return StatusNoSession
	case a.valid():
		return StatusAuthenticated
	default:
		return StatusInvalidated
	}
}

// Authentication returns a copy of the stored authentication record.
func (m *Manager) Authentication(ctx context.Context) (AuthenticationRecord, bool) {
	a, ok := m.readAuth(ctx)
	if !ok {
		return AuthenticationRecord{}, false
	}
	return AuthenticationRecord{
		Authenticated: a.valid(),
		Token:         a.token(),
		ExpiresAt:     a.ExpiresAt,
	}, true
}

func (m *Manager) Profile(ctx context.Context) (ProfileRecord, bool) {
	var p ProfileRecord
	if !m.readJSON(ctx, KeyProfile, &p) {
		return ProfileRecord{}, false
	}
	return p, true
}

// Login exchanges credentials for a token. On success the token is stored,
// the profile is fetched and subscribers are notified.
func (m *Manager) Login(ctx context.Context, username, password string) bool {
	ctx = context.WithoutCancel(ctx)

	res := m.api.Login(ctx, username, password)
	switch {
	case res.Status == authapi.StatusUnreachable:
		m.log.Warn("login unreachable", "username", username, "err", res.Err)
		m.fail("login", username, titleAuthentication, msgAuthUnreachable, res.Status)
		return false
	case !res.OK():
		m.fail("login", username, titleAuthentication, orDefault(res.Message, msgRequestRejected), res.Status)
		return false
	case res.Details.Token == "":
		m.fail("login", username, titleAuthentication, msgAuthNoToken, authapi.StatusFailed)
		return false
	}

	rec := AuthenticationRecord{
		Authenticated: true,
		Token:         res.Details.Token,
		ExpiresAt:     res.Details.ExpiresAt,
	}
	if err := m.writeJSON(ctx, KeyAuthentication, rec); err != nil {
		m.log.Error("store authentication record", "err", err)
		m.fail("login", username, titleAuthentication, msgAuthSaveFailed, authapi.StatusFailed)
		return false
	}
	m.metrics.SetAuthenticated(true)

	m.refreshProfile(ctx, false)
	m.fire()
	m.sink.Notify(notify.Notification{Kind: notify.KindSuccess, Title: titleAuthentication, Message: res.Message})
	m.record("login", username, "success", "")
	return true
}

// RefreshProfile re-fetches the cached profile. A failed fetch keeps the
// existing profile.
func (m *Manager) RefreshProfile(ctx context.Context) bool {
	return m.refreshProfile(context.WithoutCancel(ctx), true)
}

// refreshProfile leaves the fan-out to the caller when fanOut is false.
func (m *Manager) refreshProfile(ctx context.Context, fanOut bool) bool {
	a, ok := m.readAuth(ctx)
	if !ok || a.token() == "" {
		return false
	}

	res := m.api.Profile(ctx, a.token())
	switch res.Status {
	case authapi.StatusOK:
	case authapi.StatusUnreachable:
		m.log.Warn("profile fetch unreachable", "err", res.Err)
		m.fail("profile", m.actor(ctx), titleProfile, msgProfileUnreachable, res.Status)
		return false
	default:
		m.fail("profile", m.actor(ctx), titleProfile, orDefault(res.Message, msgRequestRejected), res.Status)
		return false
	}

	p := profileFromDetails(res.Details)
	if err := m.writeJSON(ctx, KeyProfile, p); err != nil {
		m.log.Error("store profile record", "err", err)
		m.record("profile", p.Username, "failed", err.Error())
		return false
	}
	if fanOut {
		m.fire()
	}
	m.record("profile", p.Username, "success", "")
	return true
}

// CheckToken asks the service whether the stored token is still valid and
// updates the record either way. Without a valid local session it returns
// false without touching the network.
func (m *Manager) CheckToken(ctx context.Context) bool {
	ctx = context.WithoutCancel(ctx)

	a, ok := m.readAuth(ctx)
	if !ok || !a.valid() {
		return false
	}

	res := m.api.Check(ctx, a.token())
	if res.OK() {
		rec := AuthenticationRecord{
			Authenticated: true,
			Token:         a.token(),
			ExpiresAt:     res.Details.ExpiresAt,
		}
		if err := m.writeJSON(ctx, KeyAuthentication, rec); err != nil {
			m.log.Error("store refreshed authentication record", "err", err)
		}
		m.metrics.SetAuthenticated(true)
		m.fire()
		m.record("check", m.actor(ctx), "success", "")
		return true
	}

	// TODO: an expired (not revoked) token is dropped here without a server
	// logout; revisit once the service supports token renewal.
	if err := m.writeJSON(ctx, KeyAuthentication, AuthenticationRecord{}); err != nil {
		m.log.Error("store downgraded authentication record", "err", err)
	}
	m.metrics.SetAuthenticated(false)
	if res.Status == authapi.StatusUnreachable {
		m.log.Warn("token check unreachable", "err", res.Err)
		m.fail("check", m.actor(ctx), titleTokenCheckFail, msgQueryFailed, res.Status)
	} else {
		m.fail("check", m.actor(ctx), titleTokenCheck, orDefault(res.Message, msgRequestRejected), res.Status)
	}
	m.fire()
	return false
}

// Logout clears the local session. The server-side logout is best effort and
// never prevents local cleanup.
func (m *Manager) Logout(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)

	a, ok, err := m.readAuthEntry(ctx)
	if err != nil {
		// Without a readable token there is nothing to revoke remotely, but
		// the local records are still cleared.
		m.log.Warn("read authentication record for logout", "err", err)
	} else if !ok {
		return
	}
	actor := m.actor(ctx)

	if tok := a.token(); err == nil && tok != "" {
		res := m.api.Logout(ctx, tok)
		switch res.Status {
		case authapi.StatusOK:
		case authapi.StatusUnreachable:
			m.log.Warn("server logout unreachable", "err", res.Err)
			m.fail("server_logout", actor, titleServerLogout, msgAuthUnreachable, res.Status)
		default:
			m.fail("server_logout", actor, titleServerLogout, orDefault(res.Message, msgRequestRejected), res.Status)
		}
	}

	for _, key := range []string{KeyAuthentication, KeyProfile} {
		if err := m.store.Remove(ctx, key); err != nil {
			m.log.Error("remove session record", "key", key, "err", err)
		}
	}
	m.metrics.SetAuthenticated(false)
	m.sink.Notify(notify.Notification{Kind: notify.KindSuccess, Title: titleClientLogout, Message: msgLoggedOut})
	m.fire()
	m.record("logout", actor, "success", "")
}

// UpdateProfile sends edited profile fields and re-fetches the profile on
// success.
func (m *Manager) UpdateProfile(ctx context.Context, update authapi.ProfileUpdate) bool {
	ctx = context.WithoutCancel(ctx)

	a, ok := m.readAuth(ctx)
	if !ok || a.token() == "" {
		return false
	}

	res := m.api.UpdateProfile(ctx, a.token(), update)
	switch res.Status {
	case authapi.StatusOK:
	case authapi.StatusUnreachable:
		m.log.Warn("profile update unreachable", "err", res.Err)
		m.fail("profile_update", m.actor(ctx), titleProfileUpdate, msgUpdateUnreachable, res.Status)
		return false
	default:
		m.fail("profile_update", m.actor(ctx), titleProfileUpdate, orDefault(res.Message, msgRequestRejected), res.Status)
		return false
	}

	m.sink.Notify(notify.Notification{Kind: notify.KindSuccess, Title: titleProfileUpdate, Message: res.Message})
	m.record("profile_update", m.actor(ctx), "success", "")
	m.RefreshProfile(ctx)
	return true
}

func (m *Manager) fire() {
	fns := m.subs.snapshot()
	for _, fn := range fns {
		fn()
	}
	m.metrics.ObserveCallbacks(len(fns))
}

// fail reports a failed operation to the user, the audit trail and metrics.
func (m *Manager) fail(op, actor, title, message string, status authapi.Status) {
	m.sink.Notify(notify.Notification{Kind: notify.KindError, Title: title, Message: message})
	m.record(op, actor, status.String(), message)
}

func (m *Manager) record(op, actor, outcome, detail string) {
	m.metrics.ObserveOperation(op, outcome)
	m.log.Debug("session operation", "operation", op, "outcome", outcome)
	if m.audit == nil {
		return
	}
	auditOutcome := "success"
	if outcome != "success" {
		auditOutcome = "failed"
	}
	if err := m.audit.Log(actor, "session."+op, auditOutcome, detail); err != nil {
		m.log.Warn("write audit event", "err", err)
	}
}

func (m *Manager) actor(ctx context.Context) string {
	p, ok := m.Profile(ctx)
	if !ok {
		return ""
	}
	return p.Username
}

// readAuth reports whether an authentication record exists. A store error
// reads as absent.
func (m *Manager) readAuth(ctx context.Context) (storedAuth, bool) {
	a, ok, err := m.readAuthEntry(ctx)
	if err != nil {
		m.log.Warn("read authentication record", "err", err)
		return storedAuth{}, false
	}
	return a, ok
}

// readAuthEntry is readAuth with store errors surfaced. A record that exists
// but cannot be decoded is returned empty, which reads as invalid.
func (m *Manager) readAuthEntry(ctx context.Context) (storedAuth, bool, error) {
	b, ok, err := m.store.Get(ctx, KeyAuthentication)
	if err != nil {
		return storedAuth{}, false, err
	}
	if !ok {
		return storedAuth{}, false, nil
	}
	var a storedAuth
	if err := json.Unmarshal(b, &a); err != nil {
		m.log.Warn("decode authentication record", "err", err)
		return storedAuth{}, true, nil
	}
	return a, true, nil
}

func (m *Manager) readJSON(ctx context.Context, key string, v any) bool {
	b, ok, err := m.store.Get(ctx, key)
	if err != nil {
		m.log.Warn("read session record", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		m.log.Warn("decode session record", "key", key, "err", err)
		return false
	}
	return true
}

func (m *Manager) writeJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", key, err)
	}
	return m.store.Set(ctx, key, b)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string) {}
func (noopMetrics) SetAuthenticated(bool)           {}
func (noopMetrics) ObserveCallbacks(int)            {}
