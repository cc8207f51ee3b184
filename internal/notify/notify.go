// Package notify carries human-readable outcome messages from session
// operations to whatever surfaces them to the user.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notification struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Sink receives notifications. Implementations must not block for long; they
// are called inline by session operations.
type Sink interface {
	Notify(n Notification)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(n Notification)

func (f SinkFunc) Notify(n Notification) { f(n) }

type discard struct{}

func (discard) Notify(Notification) {}

// Discard drops every notification.
var Discard Sink = discard{}

// Multi fans a notification out to every non-nil sink, in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Notify(n Notification) {
	for _, s := range m {
		s.Notify(n)
	}
}

// Log writes notifications to a structured logger. Errors are logged at warn
// level, everything else at info.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Notify(n Notification) {
	lvl := slog.LevelInfo
	if n.Kind == KindError || n.Kind == KindWarning {
		lvl = slog.LevelWarn
	}
	l.logger.Log(context.Background(), lvl, "notification", "kind", string(n.Kind), "title", n.Title, "message", n.Message)
}

// Recorder keeps every notification it receives. Useful for tests and for
// front ends that drain messages on their own schedule.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// Drain returns the recorded notifications and forgets them.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.all
	r.all = nil
	return out
}
