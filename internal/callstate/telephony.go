package callstate

import (
	"errors"
	"sync"
)

// ErrCallbackRegistered is returned when a callback is registered twice.
var ErrCallbackRegistered = errors.New("telephony callback already registered")

// ListenFlags selects which events a legacy listener receives.
type ListenFlags int

const (
	// ListenNone stops all events for a legacy listener.
	ListenNone ListenFlags = 0
	// ListenCallState delivers call state changes to a legacy listener.
	ListenCallState ListenFlags = 1 << 5
)

// PhoneStateListener is the legacy broad listener. It receives the call
// state together with the incoming number, when the platform reveals it.
type PhoneStateListener interface {
	OnCallStateChanged(state State, number string)
}

// StateCallback is the scoped capability listener available on newer
// platform versions. It never receives the incoming number.
type StateCallback interface {
	OnCallStateChanged(state State)
}

// Telephony is the platform boundary offering both registration mechanisms.
// Implementations deliver the current state to a listener as soon as it is
// registered, and then once per platform state change.
type Telephony interface {
	// Listen registers l for the given events. ListenNone unregisters it.
	Listen(l PhoneStateListener, flags ListenFlags)
	// RegisterCallback registers cb for call state changes.
	RegisterCallback(cb StateCallback) error
	// UnregisterCallback removes cb. Unknown callbacks are ignored.
	UnregisterCallback(cb StateCallback)
}

// Compile-time check that Simulator implements Telephony.
var _ Telephony = (*Simulator)(nil)

// Simulator is an in-process Telephony whose state is driven by SetState.
// Deliveries are serialized, so every listener observes changes in the
// order they were made.
type Simulator struct {
	deliverMu sync.Mutex

	mu        sync.Mutex
	state     State
	number    string
	legacy    map[PhoneStateListener]struct{}
	callbacks map[StateCallback]struct{}
}

// NewSimulator creates a Simulator in the idle state.
func NewSimulator() *Simulator {
	return &Simulator{
		state:     StateIdle,
		legacy:    make(map[PhoneStateListener]struct{}),
		callbacks: make(map[StateCallback]struct{}),
	}
}

// Listen implements Telephony.
func (s *Simulator) Listen(l PhoneStateListener, flags ListenFlags) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if flags&ListenCallState == 0 {
		delete(s.legacy, l)
		s.mu.Unlock()
		return
	}
	s.legacy[l] = struct{}{}
	state, number := s.state, s.number
	s.mu.Unlock()

	l.OnCallStateChanged(state, number)
}

// RegisterCallback implements Telephony.
func (s *Simulator) RegisterCallback(cb StateCallback) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if _, ok := s.callbacks[cb]; ok {
		s.mu.Unlock()
		return ErrCallbackRegistered
	}
	s.callbacks[cb] = struct{}{}
	state := s.state
	s.mu.Unlock()

	cb.OnCallStateChanged(state)
	return nil
}

// UnregisterCallback implements Telephony.
func (s *Simulator) UnregisterCallback(cb StateCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.callbacks, cb)
}

// SetState changes the simulated call state and notifies every listener.
// The number is only passed to legacy listeners.
func (s *Simulator) SetState(state State, number string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.state = state
	s.number = number
	legacy := make([]PhoneStateListener, 0, len(s.legacy))
	for l := range s.legacy {
		legacy = append(legacy, l)
	}
	callbacks := make([]StateCallback, 0, len(s.callbacks))
	for cb := range s.callbacks {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()

	for _, l := range legacy {
		l.OnCallStateChanged(state, number)
	}
	for _, cb := range callbacks {
		cb.OnCallStateChanged(state)
	}
}

// State returns the current simulated call state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ListenerCount returns the number of registered legacy listeners and
// callbacks.
func (s *Simulator) ListenerCount() (legacy, callbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.legacy), len(s.callbacks)
}
