package session

import (
	"context"
	"time"
)

const defaultWatchInterval = 5 * time.Minute

// Watch reconciles the local session with the service: it checks the token
// immediately and then once per interval until ctx is done. A session that
// has already been invalidated costs nothing per tick.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	m.CheckToken(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.CheckToken(ctx)
		}
	}
}
