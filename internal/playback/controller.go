// Package playback tracks the conditions that currently require audio to
// be paused and publishes each decision to subscribers.
package playback

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Decision is one pause signal received from a condition source.
type Decision struct {
	// Key names the condition, e.g. "auto_pause_ongoing_call".
	Key string `json:"key"`
	// Active is true when the condition requires playback to pause.
	Active bool `json:"active"`
	// Paused is the overall playback state after applying the decision.
	Paused bool `json:"paused"`
	// At is when the decision was received.
	At time.Time `json:"at"`
}

// Controller pauses playback while at least one condition is active.
// It is safe for concurrent use.
type Controller struct {
	mu         sync.RWMutex
	conditions map[string]struct{}
	subs       map[int]chan Decision
	nextID     int
	logger     *slog.Logger
}

// NewController creates a Controller with no active conditions.
func NewController(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		conditions: make(map[string]struct{}),
		subs:       make(map[int]chan Decision),
		logger:     logger,
	}
}

// OnDecision applies a condition change. Its signature matches the
// decision callback of condition sources.
func (c *Controller) OnDecision(active bool, key string) {
	c.mu.Lock()
	wasPaused := len(c.conditions) > 0
	if active {
		c.conditions[key] = struct{}{}
	} else {
		delete(c.conditions, key)
	}
	paused := len(c.conditions) > 0

	d := Decision{Key: key, Active: active, Paused: paused, At: time.Now()}
	for id, ch := range c.subs {
		select {
		case ch <- d:
		default:
			c.logger.Debug("dropping decision for slow subscriber",
				slog.Int("subscriber", id),
				slog.String("key", key),
			)
		}
	}
	c.mu.Unlock()

	switch {
	case paused && !wasPaused:
		c.logger.Info("playback paused", slog.String("condition", key))
	case !paused && wasPaused:
		c.logger.Info("playback resumed", slog.String("condition", key))
	}
}

// Paused reports whether any condition is active.
func (c *Controller) Paused() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.conditions) > 0
}

// Conditions returns the active condition keys in sorted order.
func (c *Controller) Conditions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.conditions))
	for k := range c.conditions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Subscribe returns a channel receiving every subsequent decision, and a
// function that ends the subscription and closes the channel. Decisions
// are dropped when the buffer is full.
func (c *Controller) Subscribe(buffer int) (<-chan Decision, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Decision, buffer)

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

// Subscribers returns the number of open subscriptions.
func (c *Controller) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}
