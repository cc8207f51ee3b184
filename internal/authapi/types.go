package authapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Timestamp is an instant in epoch seconds as sent by the auth service. It
// also decodes from a numeric string or an RFC 3339 string.
type Timestamp float64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = 0
		return nil
	}
	if len(b) == 0 || b[0] != '"' {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		*t = Timestamp(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = 0
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*t = Timestamp(f)
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	*t = Timestamp(float64(ts.UnixNano()) / 1e9)
	return nil
}

func (t Timestamp) Time() time.Time {
	sec, frac := math.Modf(float64(t))
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

func (t Timestamp) IsZero() bool { return t == 0 }

type LoginDetails struct {
	Token     string    `json:"token"`
	ExpiresAt Timestamp `json:"expires_at"`
}

type CheckDetails struct {
	ExpiresAt Timestamp `json:"expires_at"`
}

type ProfileDetails struct {
	IDs       []int64   `json:"ids"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     *string   `json:"email,omitempty"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// ProfileUpdate holds the editable profile fields. Nil fields are left out of
// the request body.
type ProfileUpdate struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
}

// Empty is the details type of calls whose success carries no payload.
type Empty struct{}
