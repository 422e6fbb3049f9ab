//go:build !linux

package motion

import (
	"context"

	logx "motionbot/pkg/logx"
)

// Systemd is unavailable outside Linux; every call returns ErrUnsupported.
type Systemd struct{ unit string }

func NewSystemd(unit string, _ logx.Logger) *Systemd { return &Systemd{unit: unit} }

func (s *Systemd) Close() error { return nil }

func (s *Systemd) Running(context.Context) (bool, error) { return false, ErrUnsupported }

func (s *Systemd) Start(context.Context) (StartResult, error) { return StartResult{}, ErrUnsupported }

func (s *Systemd) Stop(context.Context) (int, error) { return 0, ErrUnsupported }
