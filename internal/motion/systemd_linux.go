//go:build linux

package motion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	logx "motionbot/pkg/logx"
)

// Systemd controls motion through a systemd unit over D-Bus.
// The connection is opened lazily and re-opened after errors.
type Systemd struct {
	unit string
	log  logx.Logger

	mu   sync.Mutex
	conn *dbus.Conn
}

func NewSystemd(unit string, log logx.Logger) *Systemd {
	if unit == "" {
		unit = "motion.service"
	}
	if !strings.Contains(unit, ".") {
		unit += ".service"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Systemd{unit: unit, log: log.With(logx.String("comp", "motion.systemd"))}
}

func (s *Systemd) connect(ctx context.Context) (*dbus.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil && s.conn.Connected() {
		return s.conn, nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	s.conn = conn
	return conn, nil
}

func (s *Systemd) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

// activeState returns ActiveState, or "not-found" for a missing unit.
func (s *Systemd) activeState(ctx context.Context) (string, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return "", err
	}
	units, err := conn.ListUnitsByNamesContext(ctx, []string{s.unit})
	if err != nil {
		return "", fmt.Errorf("failed to get status for %s: %w", s.unit, err)
	}
	for _, u := range units {
		if u.Name != s.unit {
			continue
		}
		if u.LoadState == "not-found" {
			return "not-found", nil
		}
		return u.ActiveState, nil
	}
	return "not-found", nil
}

func (s *Systemd) Running(ctx context.Context) (bool, error) {
	st, err := s.activeState(ctx)
	return st == "active" || st == "reloading", err
}

// runJob issues a start/stop job and waits for systemd to report its result.
func (s *Systemd) runJob(ctx context.Context, op string, call func(*dbus.Conn, chan<- string) (int, error)) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	ch := make(chan string, 1)
	if _, err := call(conn, ch); err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, s.unit, err)
	}
	select {
	case res := <-ch:
		if res != "done" {
			return fmt.Errorf("failed to %s %s: job %s", op, s.unit, res)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", op, s.unit, ctx.Err())
	}
}

func (s *Systemd) Start(ctx context.Context) (StartResult, error) {
	st, err := s.activeState(ctx)
	if err != nil {
		return StartResult{}, err
	}
	switch st {
	case "active", "reloading", "activating":
		return StartResult{AlreadyRunning: true}, nil
	case "not-found":
		return StartResult{}, fmt.Errorf("%w: unit %s not found", ErrStartFailed, s.unit)
	}
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.runJob(ctx, "start", func(c *dbus.Conn, ch chan<- string) (int, error) {
		return c.StartUnitContext(ctx, s.unit, "replace", ch)
	})
	if err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	s.log.Info("unit started", logx.String("unit", s.unit))
	return StartResult{}, nil
}

func (s *Systemd) Stop(ctx context.Context) (int, error) {
	running, err := s.Running(ctx)
	if err != nil || !running {
		return 0, err
	}
	ctx, cancel := withTimeout(ctx, 30*time.Second)
	defer cancel()
	err = s.runJob(ctx, "stop", func(c *dbus.Conn, ch chan<- string) (int, error) {
		return c.StopUnitContext(ctx, s.unit, "replace", ch)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("unit stopped", logx.String("unit", s.unit))
	return 1, nil
}
