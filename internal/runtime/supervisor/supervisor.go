// Package supervisor runs named goroutines under one cancelable context,
// recovering panics and remembering the first failure.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	logx "motionbot/pkg/logx"
)

type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	cancelOnErr bool

	wg       sync.WaitGroup
	started  atomic.Uint64
	running  atomic.Int64
	firstErr atomic.Pointer[error]

	waitOnce sync.Once
	drained  chan struct{}
}

type Option func(*Supervisor)

// Counters is a point-in-time view of the goroutine counts.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first failure.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	s := &Supervisor{log: logx.Nop(), drained: make(chan struct{})}
	s.ctx, s.cancel = context.WithCancel(parent)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context and returns without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded failure.
func (s *Supervisor) Err() error {
	if p := s.firstErr.Load(); p != nil {
		return *p
	}
	return nil
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.running.Load(), Started: s.started.Load()}
}

// Go runs fn in its own goroutine. A panic or a non-cancel error is
// recorded as the supervisor failure.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Add(1)
	s.running.Add(1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Add(-1)

		log := s.log.With(logx.String("goroutine", name))
		log.Debug("goroutine started")
		err := safeCall(s.ctx, fn)
		var pe *panicError
		switch {
		case errors.As(err, &pe):
			log.Error("goroutine panicked", logx.Any("panic", pe.value), logx.String("stack", pe.stack))
			s.fail(fmt.Errorf("panic in %s: %v", name, pe.value))
		case err != nil && !errors.Is(err, context.Canceled):
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		log.Debug("goroutine stopped")
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

type RestartOption func(*restartPolicy)

type restartPolicy struct {
	min, max      time.Duration
	limit         int // 0 = unlimited
	stopWhenClean bool
}

// WithRestartBackoff sets the first and the largest delay between runs.
func WithRestartBackoff(min, max time.Duration) RestartOption {
	return func(p *restartPolicy) {
		if min > 0 {
			p.min = min
		}
		if max > 0 {
			p.max = max
		}
	}
}

// WithMaxRestarts gives up after n restarts. The first run does not count.
func WithMaxRestarts(n int) RestartOption { return func(p *restartPolicy) { p.limit = n } }

// WithStopOnCleanExit ends the loop when fn returns nil. On by default.
func WithStopOnCleanExit(enabled bool) RestartOption {
	return func(p *restartPolicy) { p.stopWhenClean = enabled }
}

// stableRun resets the backoff when a run lasted at least this long.
const stableRun = 30 * time.Second

// GoRestart keeps fn running, restarting it after errors or panics with
// jittered exponential backoff until the context ends.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	if fn == nil {
		return
	}
	p := restartPolicy{min: 250 * time.Millisecond, max: 30 * time.Second, stopWhenClean: true}
	for _, opt := range opts {
		opt(&p)
	}
	p.max = max(p.max, p.min)

	s.Go0(name+".restart", func(ctx context.Context) {
		delay := p.min
		for restarts := 1; ; restarts++ {
			began := time.Now()
			err := safeCall(ctx, fn)
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				if p.stopWhenClean {
					return
				}
				err = errors.New("exited")
			}
			if p.limit > 0 && restarts > p.limit {
				s.log.Error("goroutine gave up after restarts",
					logx.String("goroutine", name), logx.Int("restarts", restarts), logx.Err(err))
				s.fail(fmt.Errorf("%s: %w", name, err))
				return
			}
			if time.Since(began) >= stableRun {
				delay = p.min
			}

			wait := delay + jitter(delay)
			s.log.Warn("goroutine restarting",
				logx.String("goroutine", name), logx.Duration("backoff", wait), logx.Err(err))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			delay = min(delay*2, p.max)
		}
	})
}

// jitter returns up to 20% of d.
func jitter(d time.Duration) time.Duration {
	if n := int64(d) / 5; n > 0 {
		return time.Duration(rand.Int64N(n + 1))
	}
	return 0
}

type panicError struct {
	value any
	stack string
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v\n%s", e.value, e.stack) }

func safeCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: string(debug.Stack())}
		}
	}()
	return fn(ctx)
}

// Stop cancels the context and waits for every goroutine.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until all goroutines return or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.drained)
		}()
	})
	select {
	case <-s.drained:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.firstErr.CompareAndSwap(nil, &err)
	if s.cancelOnErr {
		s.cancel()
	}
}
