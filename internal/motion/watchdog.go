package motion

import (
	"context"
	"sync"

	logx "motionbot/pkg/logx"
)

// Watchdog remembers whether motion is supposed to be running (because an
// operator started it from chat) and alerts once per outage when it is not.
type Watchdog struct {
	ctl    Controller
	notify func(ctx context.Context, text string) error
	log    logx.Logger

	mu      sync.Mutex
	want    bool
	alerted bool
}

const WatchdogAlert = "Warning: motion stopped unexpectedly."

func NewWatchdog(ctl Controller, notify func(ctx context.Context, text string) error, log logx.Logger) *Watchdog {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watchdog{ctl: ctl, notify: notify, log: log.With(logx.String("comp", "motion.watchdog"))}
}

// Expect records the operator's intent after a successful /start (true) or /stop (false).
func (w *Watchdog) Expect(running bool) {
	w.mu.Lock()
	w.want = running
	w.alerted = false
	w.mu.Unlock()
}

func (w *Watchdog) Expected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.want
}

// Check is the scheduled job body.
func (w *Watchdog) Check(ctx context.Context) error {
	if !w.Expected() {
		return nil
	}
	running, err := w.ctl.Running(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if running {
		if w.alerted {
			w.log.Info("motion is running again")
		}
		w.alerted = false
		w.mu.Unlock()
		return nil
	}
	if w.alerted {
		w.mu.Unlock()
		return nil
	}
	w.alerted = true
	w.mu.Unlock()

	w.log.Warn("motion expected running but is not")
	if w.notify == nil {
		return nil
	}
	return w.notify(ctx, WatchdogAlert)
}
