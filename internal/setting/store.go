package setting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/maauso/callpause/internal/storage"
)

// ErrUnknownSetting is returned for keys the store was not declared with.
var ErrUnknownSetting = errors.New("unknown setting")

// DefaultSnapshotKey is the storage key settings are persisted under.
const DefaultSnapshotKey = "settings.json"

// Store holds the current value of every declared setting.
// It is safe for concurrent use.
type Store struct {
	persistMu sync.Mutex

	mu       sync.RWMutex
	declared map[string]Setting
	values   map[string]bool
	subs     map[string]map[*subscriber]struct{}

	backend     storage.Storage
	snapshotKey string
	logger      *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPersistence saves a snapshot of all values to backend under key after
// every change. Load restores it.
func WithPersistence(backend storage.Storage, key string) Option {
	return func(s *Store) {
		if key == "" {
			key = DefaultSnapshotKey
		}
		s.backend = backend
		s.snapshotKey = key
	}
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore creates a Store declaring the given settings at their defaults.
func NewStore(settings []Setting, opts ...Option) *Store {
	s := &Store{
		declared: make(map[string]Setting, len(settings)),
		values:   make(map[string]bool, len(settings)),
		subs:     make(map[string]map[*subscriber]struct{}),
		logger:   slog.Default(),
	}
	for _, st := range settings {
		s.declared[st.Key] = st
		s.values[st.Key] = st.Default
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load restores values from the persisted snapshot. A missing snapshot
// leaves the defaults in place; snapshot keys that are not declared are
// ignored.
func (s *Store) Load(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	r, err := s.backend.Load(ctx, s.snapshotKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Info("no settings snapshot, using defaults",
				slog.String("snapshot_key", s.snapshotKey),
			)
			return nil
		}
		return fmt.Errorf("load settings snapshot: %w", err)
	}
	defer r.Close()

	var snapshot map[string]bool
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode settings snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, v := range snapshot {
		if _, ok := s.declared[key]; !ok {
			s.logger.Warn("ignoring undeclared setting in snapshot",
				slog.String("key", key),
			)
			continue
		}
		s.setLocked(key, v)
	}
	return nil
}

// Get returns the current value of key.
func (s *Store) Get(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	return v, nil
}

// All returns a copy of every setting value.
func (s *Store) All() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Keys returns the declared keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.declared))
	for k := range s.declared {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set writes value to key and notifies its observers. Every write is
// emitted, including writes of an unchanged value. When persistence is
// configured the snapshot is saved before Set returns; a save failure is
// returned but the new value stays in effect.
func (s *Store) Set(ctx context.Context, key string, value bool) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	if _, ok := s.declared[key]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
	s.setLocked(key, value)
	snapshot := make(map[string]bool, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.Unlock()

	s.logger.Debug("setting changed",
		slog.String("key", key),
		slog.Bool("value", value),
	)

	if s.backend == nil {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode settings snapshot: %w", err)
	}
	if err := s.backend.Save(ctx, s.snapshotKey, bytes.NewReader(data)); err != nil {
		s.logger.Error("failed to persist settings",
			slog.String("snapshot_key", s.snapshotKey),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("save settings snapshot: %w", err)
	}
	return nil
}

func (s *Store) setLocked(key string, value bool) {
	s.values[key] = value
	for sub := range s.subs[key] {
		sub.offer(value)
	}
}

// Observe returns a stream of st's value: the current value first, then
// the value after every write. A setting that was not declared is
// declared with st.Default.
//
// The stream ends when ctx is done or when stop is called, whichever comes
// first. stop removes the subscription and closes the channel before it
// returns; it may be called more than once.
//
// A slow reader never blocks writers; it receives the latest value it has
// not yet read, so writes that follow each other before the reader catches
// up are coalesced and a quick false/true toggle can arrive as true alone.
func (s *Store) Observe(ctx context.Context, st Setting) (values <-chan bool, stop func()) {
	sub := newSubscriber()

	s.mu.Lock()
	if _, ok := s.declared[st.Key]; !ok {
		s.declared[st.Key] = st
		s.values[st.Key] = st.Default
	}
	if s.subs[st.Key] == nil {
		s.subs[st.Key] = make(map[*subscriber]struct{})
	}
	s.subs[st.Key][sub] = struct{}{}
	sub.offer(s.values[st.Key])
	s.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[st.Key], sub)
			close(sub.ch)
		})
	}
	stopAfter := context.AfterFunc(ctx, unsubscribe)

	return sub.ch, func() {
		stopAfter()
		unsubscribe()
	}
}

// subscriber is a one-slot mailbox keeping only the newest value.
// offer is only called with the store lock held.
type subscriber struct {
	ch chan bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan bool, 1)}
}

func (sub *subscriber) offer(v bool) {
	for {
		select {
		case sub.ch <- v:
			return
		default:
		}
		select {
		case <-sub.ch:
		default:
		}
	}
}

// Subscribers returns the number of open streams for key.
func (s *Store) Subscribers(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[key])
}
