package callstate

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Mechanism names the platform registration mechanism behind a Handle.
type Mechanism string

const (
	// MechanismLegacyListener uses the broad PhoneStateListener API.
	MechanismLegacyListener Mechanism = "legacy_listener"
	// MechanismCallback uses the scoped StateCallback API.
	MechanismCallback Mechanism = "telephony_callback"
)

// DefaultCallbackAPILevel is the first platform version offering the
// scoped callback mechanism.
const DefaultCallbackAPILevel = 31

// Handle is the ownership token for one live platform registration.
type Handle struct {
	id        string
	mechanism Mechanism
	owner     Source
	released  atomic.Bool
	detach    func()
}

func newHandle(owner Source, detach func()) *Handle {
	return &Handle{
		id:        "listener-" + uuid.NewString(),
		mechanism: owner.Mechanism(),
		owner:     owner,
		detach:    detach,
	}
}

// ownedBy reports whether h was registered through s.
func (h *Handle) ownedBy(s Source) bool {
	return h != nil && h.owner == s
}

// ID returns the unique identifier of the registration.
func (h *Handle) ID() string {
	return h.id
}

// Mechanism returns the platform mechanism the handle was registered with.
func (h *Handle) Mechanism() Mechanism {
	return h.mechanism
}

// Released reports whether the handle has been unregistered.
func (h *Handle) Released() bool {
	return h.released.Load()
}

// release detaches the platform listener once. Later calls are no-ops.
func (h *Handle) release() bool {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return false
	}
	h.detach()
	return true
}

// Source registers call event listeners with the platform.
type Source interface {
	// Register installs a platform listener that forwards normalized events
	// to onEvent, and returns the handle owning that registration.
	Register(onEvent func(Event)) (*Handle, error)

	// Unregister removes the registration behind h. Nil, released and
	// foreign handles are ignored.
	Unregister(h *Handle)

	// Mechanism returns the mechanism every registration of this source uses.
	Mechanism() Mechanism
}

// NewSource picks the registration mechanism once, from the platform API
// level: the scoped callback when apiLevel >= callbackAPILevel, the legacy
// listener otherwise.
func NewSource(t Telephony, apiLevel, callbackAPILevel int) Source {
	if callbackAPILevel <= 0 {
		callbackAPILevel = DefaultCallbackAPILevel
	}
	if apiLevel >= callbackAPILevel {
		return &callbackSource{telephony: t}
	}
	return &legacySource{telephony: t}
}

// legacySource registers through Telephony.Listen.
type legacySource struct {
	telephony Telephony
}

type legacyListener struct {
	onEvent func(Event)
}

func (l *legacyListener) OnCallStateChanged(state State, _ string) {
	l.onEvent(Normalize(state))
}

func (s *legacySource) Register(onEvent func(Event)) (*Handle, error) {
	l := &legacyListener{onEvent: onEvent}
	s.telephony.Listen(l, ListenCallState)
	return newHandle(s, func() {
		s.telephony.Listen(l, ListenNone)
	}), nil
}

func (s *legacySource) Unregister(h *Handle) {
	if !h.ownedBy(s) {
		return
	}
	h.release()
}

func (s *legacySource) Mechanism() Mechanism {
	return MechanismLegacyListener
}

// callbackSource registers through Telephony.RegisterCallback.
type callbackSource struct {
	telephony Telephony
}

type callbackListener struct {
	onEvent func(Event)
}

func (c *callbackListener) OnCallStateChanged(state State) {
	c.onEvent(Normalize(state))
}

func (s *callbackSource) Register(onEvent func(Event)) (*Handle, error) {
	cb := &callbackListener{onEvent: onEvent}
	if err := s.telephony.RegisterCallback(cb); err != nil {
		return nil, fmt.Errorf("register telephony callback: %w", err)
	}
	return newHandle(s, func() {
		s.telephony.UnregisterCallback(cb)
	}), nil
}

func (s *callbackSource) Unregister(h *Handle) {
	if !h.ownedBy(s) {
		return
	}
	h.release()
}

func (s *callbackSource) Mechanism() Mechanism {
	return MechanismCallback
}
