// Package gate decides whether a motion event becomes a Telegram notification.
//
// One call to OnMotionEvent is one event from the motion daemon. The gate takes
// a non-blocking exclusive lock, enforces a persisted cooldown, dedups against
// the last photo sent and then sends "text, then newest photo" to a Sink.
// Many processes may call it at once; at most one of them notifies.
package gate

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"motionbot/internal/media"
	"motionbot/internal/storage"
	logx "motionbot/pkg/logx"
)

// Locker is a non-blocking exclusive lock. TryLock returns (false, nil) when
// somebody else holds it.
type Locker interface {
	TryLock() (bool, error)
	Unlock() error
}

// Finder returns the newest candidate photo.
type Finder interface {
	Latest(ctx context.Context) (media.Item, bool, error)
}

// Sink delivers a notification.
type Sink interface {
	SendText(ctx context.Context, text string) error
	SendPhoto(ctx context.Context, path, caption string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Outcome is the result of one OnMotionEvent call.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeLockBusy
	OutcomeCooldown
	OutcomeNoPhoto
	OutcomeDuplicate
	OutcomeSent
	// OutcomePartial means at least one of the two sends failed. State was still persisted.
	OutcomePartial
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLockBusy:
		return "lock_busy"
	case OutcomeCooldown:
		return "cooldown"
	case OutcomeNoPhoto:
		return "no_photo"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeSent:
		return "sent"
	case OutcomePartial:
		return "partial"
	default:
		return "failed"
	}
}

// Notified reports whether a send was attempted and state was advanced.
func (o Outcome) Notified() bool { return o == OutcomeSent || o == OutcomePartial }

type Options struct {
	// Cooldown is the minimum time between notifications. 0 disables it.
	Cooldown time.Duration
	// Message is sent as text before the photo.
	Message string
	// Caption is attached to the photo; empty sends the photo bare.
	Caption string
	// SendTimeout bounds each of the two sends. 0 means no extra bound.
	SendTimeout time.Duration
}

type Deps struct {
	Lock   Locker
	State  storage.StateStore
	Finder Finder
	Sink   Sink
	Clock  Clock
	Log    logx.Logger
}

// Gate is immutable after New and safe for concurrent use; exclusion comes from Lock.
type Gate struct {
	opt Options
	d   Deps
}

func New(opt Options, d Deps) (*Gate, error) {
	if d.Lock == nil || d.State == nil || d.Finder == nil || d.Sink == nil {
		return nil, errors.New("gate: lock, state, finder and sink are required")
	}
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if opt.Cooldown < 0 {
		opt.Cooldown = 0
	}
	return &Gate{opt: opt, d: d}, nil
}

// OnMotionEvent handles one motion event. It never returns an error: every
// failure is logged and reported through the Outcome. The lock is released on
// every path, including a panic inside a collaborator.
func (g *Gate) OnMotionEvent(ctx context.Context) (out Outcome) {
	log := g.d.Log.With(logx.String("comp", "gate"))

	ok, err := g.d.Lock.TryLock()
	if err != nil {
		log.Error("lock failed", logx.Err(err))
		return OutcomeFailed
	}
	if !ok {
		log.Info("lock held by another process; skipping")
		return OutcomeLockBusy
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("motion event panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			out = OutcomeFailed
		}
		if err := g.d.Lock.Unlock(); err != nil {
			log.Warn("unlock failed", logx.Err(err))
		}
	}()

	out = g.locked(ctx, log)
	log.Info("motion event handled", logx.String("outcome", out.String()))
	return out
}

func (g *Gate) locked(ctx context.Context, log logx.Logger) Outcome {
	now := g.d.Clock.Now()

	st, err := g.d.State.Load(ctx)
	if err != nil {
		// Whatever did parse is kept; an unreadable timestamp counts as "never notified".
		log.Warn("gate state unreadable; treating as first run", logx.Err(err))
		if errors.Is(err, storage.ErrCorruptState) {
			st.LastNotification = time.Time{}
		} else {
			st = storage.State{}
		}
	}

	elapsed := now.Sub(st.LastNotification)
	if st.LastNotification.IsZero() {
		elapsed = now.Sub(time.Unix(0, 0))
	}
	if elapsed < g.opt.Cooldown {
		log.Info("cooldown active", logx.Duration("elapsed", elapsed), logx.Duration("cooldown", g.opt.Cooldown))
		return OutcomeCooldown
	}

	photo, found, err := g.d.Finder.Latest(ctx)
	if err != nil {
		log.Error("photo lookup failed", logx.Err(err))
		return OutcomeFailed
	}
	if !found {
		log.Warn("no photos found to send")
		return OutcomeNoPhoto
	}
	if photo.Path == st.LastPhoto {
		log.Info("latest photo already sent; skipping", logx.String("photo", photo.Path))
		return OutcomeDuplicate
	}

	textErr := g.send(ctx, func(ctx context.Context) error { return g.d.Sink.SendText(ctx, g.opt.Message) })
	if textErr != nil {
		log.Error("text send failed", logx.Err(textErr))
	}
	photoErr := g.send(ctx, func(ctx context.Context) error { return g.d.Sink.SendPhoto(ctx, photo.Path, g.opt.Caption) })
	if photoErr != nil {
		log.Error("photo send failed", logx.String("photo", photo.Path), logx.Err(photoErr))
	}

	// Persisted even when a send failed: the attempt consumed this cooldown window.
	next := storage.State{LastNotification: now, LastPhoto: photo.Path}
	if err := g.d.State.Save(ctx, next); err != nil {
		log.Error("gate state write failed", logx.Err(err))
	}

	if textErr != nil || photoErr != nil {
		return OutcomePartial
	}
	log.Debug("notification sent", logx.String("photo", photo.Path))
	return OutcomeSent
}

func (g *Gate) send(ctx context.Context, fn func(ctx context.Context) error) error {
	if g.opt.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opt.SendTimeout)
		defer cancel()
	}
	if err := fn(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s: %w", g.opt.SendTimeout, err)
		}
		return err
	}
	return nil
}
