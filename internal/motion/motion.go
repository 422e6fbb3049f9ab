// Package motion starts, stops and inspects the motion daemon, and takes
// on-demand webcam snapshots.
package motion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"motionbot/internal/config"
	logx "motionbot/pkg/logx"
)

var (
	ErrUnsupported = errors.New("motion: backend unsupported on this platform")
	ErrStartFailed = errors.New("motion: start failed")
)

// StartResult describes what Start did.
type StartResult struct {
	AlreadyRunning bool
	// Output is the combined launcher output, trimmed. Process backend only.
	Output string
}

// Controller manages the motion daemon.
type Controller interface {
	// Start launches the daemon unless it is already running.
	Start(ctx context.Context) (StartResult, error)
	// Stop terminates the daemon and reports how many processes (or units) were stopped.
	Stop(ctx context.Context) (int, error)
	Running(ctx context.Context) (bool, error)
}

// New builds the controller selected by cfg.Backend.
func New(cfg config.MotionConfig, log logx.Logger) (Controller, error) {
	switch cfg.Backend {
	case "", "process":
		return NewProcess(ProcessOptions{
			Binary:       cfg.Binary,
			ConfigPath:   cfg.ConfigPath,
			Name:         cfg.ProcessName,
			StartTimeout: cfg.StartTimeoutDuration(),
			StopGrace:    cfg.StopGraceDuration(),
		}, log), nil
	case "systemd":
		return NewSystemd(cfg.Unit, log), nil
	default:
		return nil, fmt.Errorf("motion: unknown backend %q", cfg.Backend)
	}
}

// Closer is implemented by controllers that hold a connection.
type Closer interface{ Close() error }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
