package pgmanager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/qorix-group/inc-lifecycle-sub000/internal/obslog"
)

// DefaultShutdownTimeout bounds how long Shutdowner.Shutdown waits for
// every registered hook before giving up.
const DefaultShutdownTimeout = 10 * time.Second

// Shutdowner runs registered shutdown hooks in LIFO order within a bounded
// timeout, the way the teacher's GracefulShutdown (kernel/utils/
// graceful.go) runs its shutdownFn slice, but collects every hook's error
// with multierr instead of a pre-sized buffered error channel.
type Shutdowner struct {
	mu      sync.Mutex
	hooks   []func(context.Context) error
	timeout time.Duration
	log     *obslog.Logger
}

// NewShutdowner builds a Shutdowner. timeout <= 0 selects
// DefaultShutdownTimeout.
func NewShutdowner(timeout time.Duration, log *obslog.Logger) *Shutdowner {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	if log == nil {
		log = obslog.New("pgmanager.shutdown")
	}
	return &Shutdowner{timeout: timeout, log: log}
}

// Register appends a shutdown hook. Hooks run in reverse registration
// order (LIFO), so a daemon registers its components in the order it
// brought them up (queue/reaper, then the Control-Client handler, then
// metrics) and gets them torn down in the opposite order.
func (s *Shutdowner) Register(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Shutdown runs every registered hook one after another in LIFO order,
// bounded by the configured timeout, and returns the combined error of
// every hook that failed (nil if all succeeded within the deadline).
func (s *Shutdowner) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	hooks := append([]func(context.Context) error(nil), s.hooks...)
	s.mu.Unlock()

	s.log.Info("starting graceful shutdown", obslog.Int("hooks", len(hooks)))

	shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		errsMu sync.Mutex
		errs   error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := len(hooks) - 1; i >= 0; i-- {
			if err := hooks[i](shutdownCtx); err != nil {
				s.log.Error("shutdown hook failed", obslog.Int("index", i), obslog.Err(err))
				errsMu.Lock()
				errs = multierr.Append(errs, err)
				errsMu.Unlock()
			}
		}
	}()

	select {
	case <-done:
		s.log.Info("graceful shutdown complete")
		return errs
	case <-shutdownCtx.Done():
		s.log.Warn("graceful shutdown timed out")
		return multierr.Append(errs, shutdownCtx.Err())
	}
}
