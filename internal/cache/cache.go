// Package cache holds the in-process caches behind read-side views.
package cache

import (
	"sync"
	"time"

	"budget/internal/log"
)

// Cleaner is a cache the Manager can sweep and report on.
type Cleaner interface {
	CleanExpired() int
	Stats() Stats
}

// Manager periodically drops expired entries from registered caches and
// logs their hit rates when stopped.
type Manager struct {
	mu      sync.Mutex
	caches  map[string]Cleaner
	logger  *log.Logger
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Discard()
	}
	return &Manager{
		caches: make(map[string]Cleaner),
		logger: logger.WithComponent(log.ComponentCache),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds c under name, replacing any cache already registered with
// that name.
func (m *Manager) Register(name string, c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches[name] = c
}

// StartCleanup sweeps every interval until Stop. Later calls are no-ops.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.loop(interval)
}

// CleanNow runs one sweep and returns the number of removed entries.
func (m *Manager) CleanNow() int {
	total := 0
	for _, c := range m.snapshot() {
		total += c.CleanExpired()
	}
	return total
}

func (m *Manager) snapshot() map[string]Cleaner {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Cleaner, len(m.caches))
	for name, c := range m.caches {
		out[name] = c
	}
	return out
}

func (m *Manager) loop(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.CleanNow(); n > 0 {
				m.logger.Debug("Expired cache entries removed", log.FieldCount, n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop halts the sweep loop and logs per-cache stats. Safe to call more
// than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
		for name, c := range m.snapshot() {
			st := c.Stats()
			m.logger.Info("Cache stats",
				"cache", name,
				"hits", st.Hits,
				"misses", st.Misses,
				"entries", st.Entries)
		}
	})
}
