package session

import (
	"searchkit/sessionclient/internal/authapi"
)

// Store keys owned by the manager. Other components may read them but must
// never write.
const (
	KeyAuthentication = "authentication"
	KeyProfile        = "profile"
)

type AuthenticationRecord struct {
	Authenticated bool              `json:"authenticated"`
	Token         string            `json:"token"`
	ExpiresAt     authapi.Timestamp `json:"expires_at"`
}

// ProfileRecord is cached for display only and is never an authorization
// signal.
type ProfileRecord struct {
	IDs       []int64           `json:"ids"`
	Username  string            `json:"username"`
	FirstName string            `json:"first_name"`
	LastName  string            `json:"last_name"`
	Email     string            `json:"email"`
	UpdatedAt authapi.Timestamp `json:"updated_at"`
}

// Status distinguishes an explicit logout (no record) from a failed check
// (record present but invalid). Both mean "not authenticated".
type Status int

const (
	StatusNoSession Status = iota
	StatusAuthenticated
	StatusInvalidated
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusInvalidated:
		return "invalidated"
	default:
		return "no-session"
	}
}

// storedAuth mirrors AuthenticationRecord with presence tracking so partial
// records can be told apart from explicit false/empty values.
type storedAuth struct {
	Authenticated *bool             `json:"authenticated"`
	Token         *string           `json:"token"`
	ExpiresAt     authapi.Timestamp `json:"expires_at"`
}

func (a storedAuth) valid() bool {
	return a.Authenticated != nil && *a.Authenticated && a.token() != ""
}

func (a storedAuth) token() string {
	if a.Token == nil {
		return ""
	}
	return *a.Token
}

func profileFromDetails(d authapi.ProfileDetails) ProfileRecord {
	p := ProfileRecord{
		IDs:       append([]int64(nil), d.IDs...),
		Username:  d.Username,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		UpdatedAt: d.UpdatedAt,
	}
	if d.Email != nil {
		p.Email = *d.Email
	}
	return p
}
