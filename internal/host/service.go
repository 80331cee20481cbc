// Package host binds the auto-pause engine to the hosting service's
// foreground window: the engine runs while the host is in the foreground
// and is torn down completely when it leaves.
package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maauso/callpause/internal/autopause"
	"github.com/maauso/callpause/internal/setting"
)

// Service runs one engine scope per foreground period.
// It is safe for concurrent use.
type Service struct {
	store      *setting.Store
	engine     *autopause.Engine
	onDecision autopause.DecisionFunc
	logger     *slog.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	unsubscribe []func()
}

// NewService creates a Service feeding engine from store and delivering
// decisions to onDecision.
func NewService(store *setting.Store, engine *autopause.Engine, onDecision autopause.DecisionFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:      store,
		engine:     engine,
		onDecision: onDecision,
		logger:     logger,
	}
}

// Foreground starts a new engine scope with fresh setting subscriptions.
// It returns false if a scope is already active.
func (s *Service) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return false
	}

	// The streams stay open until the engine has returned; Background
	// closes them itself.
	playInBackground, stopA := s.store.Observe(context.Background(), setting.PlayInBackground)
	autoPause, stopB := s.store.Observe(context.Background(), setting.AutoPauseDuringCalls)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.engine.Run(ctx, playInBackground, autoPause, s.onDecision)
	}()

	s.cancel = cancel
	s.done = done
	s.unsubscribe = []func(){stopA, stopB}
	s.logger.Info("host entered foreground")
	return true
}

// Background ends the active scope. It blocks until the engine has torn
// down and both setting subscriptions are closed. It returns
// false if no scope was active.
func (s *Service) Background() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}

	s.cancel()
	<-s.done
	for _, stop := range s.unsubscribe {
		stop()
	}
	s.cancel = nil
	s.done = nil
	s.unsubscribe = nil

	s.logger.Info("host left foreground")
	return true
}

// Stop is Background for shutdown paths.
func (s *Service) Stop() {
	s.Background()
}

// Active reports whether an engine scope is running.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// EngineState returns the engine's monitoring state.
func (s *Service) EngineState() autopause.State {
	return s.engine.State()
}
