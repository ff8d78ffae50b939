package syncqueue

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Monitor tracks connectivity. Listeners run synchronously on the goroutine
// that changes the state, in subscription order.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	listeners []listener
	nextID    int
	logger    zerolog.Logger
}

type listener struct {
	id int
	fn func(online bool)
}

// NewMonitor returns a monitor in the given initial state.
func NewMonitor(online bool, logger zerolog.Logger) *Monitor {
	return &Monitor{online: online, logger: logger}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Set updates the state and notifies listeners when it changes.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, l := range m.listeners {
		fns = append(fns, l.fn)
	}
	m.mu.Unlock()

	m.logger.Info().Bool("online", online).Msg("connectivity changed")
	for _, fn := range fns {
		fn(online)
	}
}

// Subscribe registers fn and returns a function that removes it.
func (m *Monitor) Subscribe(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Check requests healthURL once and reports whether the backend answered
// with a status below 500.
func Check(ctx context.Context, client *http.Client, healthURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

// Watch checks healthURL every interval and updates the monitor until ctx is
// done. The first check runs immediately.
func (m *Monitor) Watch(ctx context.Context, client *http.Client, healthURL string, interval time.Duration) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok := Check(ctx, client, healthURL)
		if ctx.Err() != nil {
			return
		}
		m.Set(ok)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
