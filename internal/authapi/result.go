package authapi

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Status int

const (
	// StatusOK means the service answered with an explicit error:false.
	StatusOK Status = iota
	// StatusFailed means the service answered but rejected the request.
	StatusFailed
	// StatusUnreachable means no usable response arrived.
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the normalized outcome of one auth service call.
type Result[T any] struct {
	Status  Status
	Details T
	// Message is the service-provided message, if any.
	Message string
	// Err describes why the call was unreachable.
	Err error
}

func (r Result[T]) OK() bool { return r.Status == StatusOK }

type envelope struct {
	Error   *bool           `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

func unreachable[T any](err error) Result[T] {
	return Result[T]{Status: StatusUnreachable, Err: err}
}

// normalize maps a raw response body onto Result. An unparseable body counts
// as unreachable; a parsed body without error:false counts as failed.
func normalize[T any](body []byte) Result[T] {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return unreachable[T](fmt.Errorf("decode response: %w", err))
	}
	if env.Error == nil || *env.Error {
		return Result[T]{Status: StatusFailed, Message: env.Message}
	}

	var details T
	if len(env.Details) > 0 && !bytes.Equal(env.Details, []byte("null")) {
		if err := json.Unmarshal(env.Details, &details); err != nil {
			msg := env.Message
			if msg == "" {
				msg = "malformed response details"
			}
			return Result[T]{Status: StatusFailed, Message: msg}
		}
	}
	return Result[T]{Status: StatusOK, Details: details, Message: env.Message}
}
