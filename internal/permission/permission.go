// Package permission answers whether call state may be observed, and
// provides the scoped identity context the check and registration run in.
package permission

import (
	"context"
	"sync"
)

// ReadPhoneState is the runtime permission gating call state observation.
const ReadPhoneState = "android.permission.READ_PHONE_STATE"

// Checker reports whether the read-phone-state permission is granted.
// Results must reflect the current grant; callers never cache them.
type Checker interface {
	Granted(ctx context.Context) bool
}

// Watcher is implemented by checkers that can push grant changes.
type Watcher interface {
	// Watch calls fn with the new grant on every change until cancel is called.
	Watch(fn func(granted bool)) (cancel func())
}

// Compile-time checks that Toggle implements Checker and Watcher.
var (
	_ Checker = (*Toggle)(nil)
	_ Watcher = (*Toggle)(nil)
)

// Toggle is an in-memory permission whose grant is changed with Set.
type Toggle struct {
	notifyMu sync.Mutex

	mu       sync.RWMutex
	granted  bool
	watchers map[int]func(bool)
	nextID   int
}

// NewToggle creates a Toggle with the given initial grant.
func NewToggle(granted bool) *Toggle {
	return &Toggle{
		granted:  granted,
		watchers: make(map[int]func(bool)),
	}
}

// Granted implements Checker.
func (t *Toggle) Granted(_ context.Context) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.granted
}

// Set changes the grant. Watchers are notified, in order, only when the
// grant actually changes.
func (t *Toggle) Set(granted bool) {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()

	t.mu.Lock()
	if t.granted == granted {
		t.mu.Unlock()
		return
	}
	t.granted = granted
	watchers := make([]func(bool), 0, len(t.watchers))
	for _, fn := range t.watchers {
		watchers = append(watchers, fn)
	}
	t.mu.Unlock()

	for _, fn := range watchers {
		fn(granted)
	}
}

// Watch implements Watcher.
func (t *Toggle) Watch(fn func(granted bool)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.watchers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.watchers, id)
		})
	}
}
