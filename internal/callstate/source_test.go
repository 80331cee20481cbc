package callstate

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// eventRecorder collects events delivered to a listener.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// mockTelephony implements Telephony for testing.
type mockTelephony struct {
	mock.Mock
}

func (m *mockTelephony) Listen(l PhoneStateListener, flags ListenFlags) {
	m.Called(l, flags)
}

func (m *mockTelephony) RegisterCallback(cb StateCallback) error {
	args := m.Called(cb)
	return args.Error(0)
}

func (m *mockTelephony) UnregisterCallback(cb StateCallback) {
	m.Called(cb)
}

func TestNewSource_SelectsMechanism(t *testing.T) {
	tests := []struct {
		name          string
		apiLevel      int
		callbackLevel int
		expected      Mechanism
	}{
		{"old platform uses legacy listener", 30, 31, MechanismLegacyListener},
		{"callback level uses callback", 31, 31, MechanismCallback},
		{"newer platform uses callback", 34, 31, MechanismCallback},
		{"zero callback level falls back to default", 30, 0, MechanismLegacyListener},
		{"zero callback level with new platform", DefaultCallbackAPILevel, 0, MechanismCallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSource(NewSimulator(), tt.apiLevel, tt.callbackLevel)
			assert.Equal(t, tt.expected, src.Mechanism())
		})
	}
}

func TestSource_RegisterDeliversNormalizedEvents(t *testing.T) {
	for _, apiLevel := range []int{29, 33} {
		sim := NewSimulator()
		src := NewSource(sim, apiLevel, 31)

		t.Run(string(src.Mechanism()), func(t *testing.T) {
			rec := &eventRecorder{}
			h, err := src.Register(rec.record)
			require.NoError(t, err)
			assert.Equal(t, src.Mechanism(), h.Mechanism())
			assert.True(t, strings.HasPrefix(h.ID(), "listener-"))

			sim.SetState(StateRinging, "555-0100")
			sim.SetState(StateOffHook, "555-0100")
			sim.SetState(StateIdle, "")

			assert.Equal(t, []Event{EventInactive, EventActive, EventActive, EventInactive}, rec.all())

			src.Unregister(h)
			assert.True(t, h.Released())

			sim.SetState(StateRinging, "")
			assert.Len(t, rec.all(), 4, "no events after unregister")

			legacy, callbacks := sim.ListenerCount()
			assert.Zero(t, legacy)
			assert.Zero(t, callbacks)
		})
	}
}

func TestSource_UnregisterIsIdempotent(t *testing.T) {
	tel := &mockTelephony{}
	tel.On("RegisterCallback", mock.Anything).Return(nil).Once()
	tel.On("UnregisterCallback", mock.Anything).Return().Once()

	src := NewSource(tel, 33, 31)
	h, err := src.Register(func(Event) {})
	require.NoError(t, err)

	src.Unregister(h)
	src.Unregister(h)
	src.Unregister(nil)

	tel.AssertExpectations(t)
}

func TestSource_UnregisterIgnoresForeignHandle(t *testing.T) {
	simA, simB := NewSimulator(), NewSimulator()
	a := NewSource(simA, 28, 31)
	b := NewSource(simB, 28, 31)

	h, err := a.Register(func(Event) {})
	require.NoError(t, err)

	b.Unregister(h)

	assert.False(t, h.Released())
	legacy, _ := simA.ListenerCount()
	assert.Equal(t, 1, legacy)

	a.Unregister(h)
	assert.True(t, h.Released())
	legacy, _ = simA.ListenerCount()
	assert.Zero(t, legacy)
}

func TestSource_LegacyUnregisterUsesListenNone(t *testing.T) {
	tel := &mockTelephony{}
	tel.On("Listen", mock.Anything, ListenCallState).Return().Once()
	tel.On("Listen", mock.Anything, ListenNone).Return().Once()

	src := NewSource(tel, 28, 31)
	h, err := src.Register(func(Event) {})
	require.NoError(t, err)
	src.Unregister(h)

	tel.AssertExpectations(t)
}

func TestSource_CallbackRegistrationError(t *testing.T) {
	platformErr := errors.New("security exception")
	tel := &mockTelephony{}
	tel.On("RegisterCallback", mock.Anything).Return(platformErr)

	src := NewSource(tel, 33, 31)
	h, err := src.Register(func(Event) {})
	require.Error(t, err)
	assert.ErrorIs(t, err, platformErr)
	assert.Nil(t, h)
}

func TestSimulator_DuplicateCallback(t *testing.T) {
	sim := NewSimulator()
	cb := &callbackListener{onEvent: func(Event) {}}

	require.NoError(t, sim.RegisterCallback(cb))
	assert.ErrorIs(t, sim.RegisterCallback(cb), ErrCallbackRegistered)
}
