package callstate

import (
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the single live registration with a Source. Only one handle
// is held at a time: Acquire releases the previous handle before
// registering again, and Release is safe to call any number of times.
type Manager struct {
	source Source
	logger *slog.Logger

	mu     sync.Mutex
	handle *Handle
}

// NewManager creates a Manager for the given source.
func NewManager(source Source, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source: source,
		logger: logger,
	}
}

// Acquire registers a new listener forwarding events to onEvent.
// A handle already held is released first.
func (m *Manager) Acquire(onEvent func(Event)) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	h, err := m.source.Register(onEvent)
	if err != nil {
		return nil, fmt.Errorf("acquire call state listener: %w", err)
	}
	m.handle = h

	m.logger.Debug("call state listener registered",
		slog.String("listener_id", h.ID()),
		slog.String("mechanism", string(h.Mechanism())),
	)
	return h, nil
}

// Release unregisters the held handle, if any.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.handle == nil {
		return
	}
	h := m.handle
	m.handle = nil
	m.source.Unregister(h)

	m.logger.Debug("call state listener unregistered",
		slog.String("listener_id", h.ID()),
		slog.String("mechanism", string(h.Mechanism())),
	)
}

// Held reports whether a live handle is currently owned.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// Handle returns the live handle, or nil when none is held.
func (m *Manager) Handle() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

// Mechanism returns the mechanism used by the underlying source.
func (m *Manager) Mechanism() Mechanism {
	return m.source.Mechanism()
}
