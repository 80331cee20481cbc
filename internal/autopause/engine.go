// Package autopause decides when playback must pause because of a phone
// call. The Engine combines the "play in background" and "auto-pause
// during calls" settings into a gate, keeps a call state listener
// registered only while the gate is open and the read-phone-state
// permission is granted, and forwards every call event as a decision.
package autopause

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/maauso/callpause/internal/callstate"
	"github.com/maauso/callpause/internal/permission"
)

// ConditionKey is the key every decision of the engine carries.
const ConditionKey = "auto_pause_ongoing_call"

// DecisionFunc receives pause decisions: active is true while playback
// must stay paused for the condition named by key.
type DecisionFunc func(active bool, key string)

var errPermissionDenied = errors.New("read phone state permission denied")

// Engine is the auto-pause decision engine. One Run may be in progress at
// a time; the engine itself holds no state between runs.
type Engine struct {
	listeners  *callstate.Manager
	permission permission.Checker
	identity   permission.IdentityScope
	logger     *slog.Logger

	running atomic.Bool

	mu    sync.RWMutex
	state State
}

// Option configures an Engine.
type Option func(*Engine)

// WithIdentityScope runs the permission check and listener registration
// with the calling identity cleared through scope.
func WithIdentityScope(scope permission.IdentityScope) Option {
	return func(e *Engine) {
		e.identity = scope
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an Engine registering listeners through listeners.
// A nil checker denies the permission.
func NewEngine(listeners *callstate.Manager, checker permission.Checker, opts ...Option) *Engine {
	e := &Engine{
		listeners:  listeners,
		permission: checker,
		logger:     slog.Default(),
		state:      StateDisabled,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current monitoring state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Running reports whether a Run is in progress.
func (e *Engine) Running() bool {
	return e.running.Load()
}

func (e *Engine) setState(to State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !canTransition(e.state, to) {
		e.logger.Error("invalid auto-pause state transition",
			slog.String("from", string(e.state)),
			slog.String("to", string(to)),
		)
		return
	}
	e.state = to
}

func (e *Engine) granted(ctx context.Context) bool {
	return e.permission != nil && e.permission.Granted(ctx)
}

// Run evaluates the gate from the two setting streams until ctx is done.
// It blocks; when it returns, any listener it registered has been released
// and, if monitoring was enabled, a final inactive decision was delivered.
//
// Decisions are delivered on the goroutine calling Run. A closed stream
// freezes its input at the last value received.
func (e *Engine) Run(ctx context.Context, playInBackground, autoPauseDuringCalls <-chan bool, onDecision DecisionFunc) {
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Error("auto-pause engine already running")
		return
	}
	defer e.running.Store(false)

	if onDecision == nil {
		onDecision = func(bool, string) {}
	}

	r := &run{
		engine: e,
		ctx:    ctx,
		decide: onDecision,
		calls:  newMailbox[callEvent](),
		grants: newMailbox[bool](),
	}

	if w, ok := e.permission.(permission.Watcher); ok {
		stop := w.Watch(r.grants.push)
		defer stop()
	}
	defer r.teardown()

	e.logger.Debug("auto-pause engine started",
		slog.String("mechanism", string(e.listeners.Mechanism())),
	)

	a, b := playInBackground, autoPauseDuringCalls
	for {
		select {
		case <-ctx.Done():
			return

		case v, ok := <-a:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				e.logger.Warn("setting stream closed, gate frozen", slog.String("input", "play_in_background"))
				a = nil
				continue
			}
			if open, changed := r.gate.setA(v); changed {
				r.onGate(open)
			}

		case v, ok := <-b:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				e.logger.Warn("setting stream closed, gate frozen", slog.String("input", "auto_pause_during_calls"))
				b = nil
				continue
			}
			if open, changed := r.gate.setB(v); changed {
				r.onGate(open)
			}

		case <-r.grants.ready():
			for _, granted := range r.grants.drain() {
				r.onPermission(granted)
			}

		case <-r.calls.ready():
			for _, ev := range r.calls.drain() {
				r.onCall(ev)
			}
		}
	}
}

// callEvent is a call event tagged with the registration that produced it.
type callEvent struct {
	generation uint64
	event      callstate.Event
}

// run holds the state of one Run. All methods are called from the Run
// goroutine.
type run struct {
	engine *Engine
	ctx    context.Context
	decide DecisionFunc

	gate gate
	// generation identifies the current registration; events carrying an
	// older generation come from a released listener and are dropped.
	generation uint64

	calls  *mailbox[callEvent]
	grants *mailbox[bool]
}

func (r *run) onGate(open bool) {
	r.engine.logger.Debug("auto-pause gate changed", slog.Bool("open", open))
	if open {
		r.activate()
		return
	}
	r.deactivate("gate closed")
}

// activate checks the permission and registers a listener. A denied
// permission or a failed registration deactivates instead.
func (r *run) activate() {
	e := r.engine
	if e.State() == StateEnabled {
		return
	}

	r.generation++
	gen := r.generation

	var handle *callstate.Handle
	err := permission.RunCleared(e.identity, func() error {
		if !e.granted(r.ctx) {
			return errPermissionDenied
		}
		h, err := e.listeners.Acquire(func(ev callstate.Event) {
			r.calls.push(callEvent{generation: gen, event: ev})
		})
		handle = h
		return err
	})
	if err != nil {
		if errors.Is(err, errPermissionDenied) {
			e.logger.Info("auto-pause unavailable, permission denied",
				slog.String("permission", permission.ReadPhoneState),
			)
			r.deactivate("permission denied")
			return
		}
		e.logger.Warn("failed to register call state listener",
			slog.String("error", err.Error()),
		)
		r.deactivate("registration failed")
		return
	}

	e.setState(StateEnabled)
	e.logger.Info("auto-pause enabled",
		slog.String("listener_id", handle.ID()),
		slog.String("mechanism", string(handle.Mechanism())),
	)
}

// deactivate releases any listener and emits the inactive decision.
func (r *run) deactivate(reason string) {
	e := r.engine
	r.generation++
	e.listeners.Release()

	if e.State() == StateEnabled {
		e.setState(StateDisabled)
		e.logger.Info("auto-pause disabled", slog.String("reason", reason))
	}
	r.decide(false, ConditionKey)
}

func (r *run) onPermission(granted bool) {
	if !r.gate.open() {
		return
	}
	state := r.engine.State()
	switch {
	case granted && state == StateDisabled:
		r.activate()
	case !granted && state == StateEnabled:
		r.deactivate("permission revoked")
	}
}

func (r *run) onCall(ev callEvent) {
	if ev.generation != r.generation || r.engine.State() != StateEnabled {
		r.engine.logger.Debug("dropping call event from released listener",
			slog.String("event", ev.event.String()),
		)
		return
	}
	r.decide(ev.event == callstate.EventActive, ConditionKey)
}

// teardown ends the run: an enabled engine is disabled with a final
// inactive decision; a disabled one only makes sure nothing is held.
func (r *run) teardown() {
	if r.engine.State() == StateEnabled {
		r.deactivate("scope ended")
		return
	}
	r.engine.listeners.Release()
}
