package motion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	logx "motionbot/pkg/logx"
)

type ProcessOptions struct {
	Binary     string
	ConfigPath string
	// Name is matched exactly against the process name (comm on Linux).
	Name         string
	StartTimeout time.Duration
	StopGrace    time.Duration
}

// Process runs motion as a plain child process and finds it again by name.
type Process struct {
	opt ProcessOptions
	log logx.Logger

	procs procTable
	self  int32
	poll  time.Duration
}

func NewProcess(opt ProcessOptions, log logx.Logger) *Process {
	if opt.Binary == "" {
		opt.Binary = "motion"
	}
	if opt.Name == "" {
		opt.Name = filepath.Base(opt.Binary)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Process{
		opt:   opt,
		log:   log.With(logx.String("comp", "motion.process")),
		procs: hostProcs{},
		self:  int32(os.Getpid()),
		poll:  100 * time.Millisecond,
	}
}

// PIDs returns the ids of every process whose name equals the configured name.
func (p *Process) PIDs(ctx context.Context) ([]int32, error) {
	list, err := p.procs.List(ctx)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrUnsupported
		}
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var pids []int32
	for _, pr := range list {
		if pr.PID != p.self && pr.Name == p.opt.Name {
			pids = append(pids, pr.PID)
		}
	}
	slices.Sort(pids)
	return pids, nil
}

func (p *Process) Running(ctx context.Context) (bool, error) {
	pids, err := p.PIDs(ctx)
	return len(pids) > 0, err
}

// Start launches "<binary> -c <config>". motion normally daemonizes, so the
// launcher exits quickly; if it is still alive after StartTimeout it is
// assumed to be running in the foreground and left alone.
func (p *Process) Start(ctx context.Context) (StartResult, error) {
	if running, err := p.Running(ctx); err != nil {
		return StartResult{}, err
	} else if running {
		return StartResult{AlreadyRunning: true}, nil
	}

	var args []string
	if p.opt.ConfigPath != "" {
		args = append(args, "-c", p.opt.ConfigPath)
	}
	// Not CommandContext: the daemon must outlive the request that started it.
	cmd := exec.Command(p.opt.Binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// A forked daemon may inherit the pipes; do not wait on it.
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return StartResult{}, fmt.Errorf("%w: %v", ErrStartFailed, err)
	}
	p.log.Info("motion launched", logx.Int("pid", cmd.Process.Pid), logx.String("binary", p.opt.Binary))

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timeout := p.opt.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		res := StartResult{Output: strings.TrimSpace(out.String())}
		if res.Output != "" {
			p.log.Info("motion output", logx.String("output", res.Output))
		}
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrStartFailed, err)
		}
		return res, nil
	case <-timer.C:
		p.log.Info("motion launcher still running; assuming foreground mode", logx.Duration("after", timeout))
		return StartResult{}, nil
	case <-ctx.Done():
		return StartResult{}, ctx.Err()
	}
}

// Stop terminates every matching process and kills whatever is left after
// StopGrace.
func (p *Process) Stop(ctx context.Context) (int, error) {
	pids, err := p.PIDs(ctx)
	if err != nil || len(pids) == 0 {
		return 0, err
	}

	var errs []error
	for _, pid := range pids {
		if err := p.procs.Signal(ctx, pid, false); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("terminate %d: %w", pid, err))
			continue
		}
		p.log.Info("stopped motion process", logx.Int("pid", int(pid)))
	}

	deadline := time.Now().Add(p.opt.StopGrace)
	for time.Now().Before(deadline) && p.anyAlive(ctx, pids) {
		select {
		case <-ctx.Done():
			return len(pids), ctx.Err()
		case <-time.After(p.poll):
		}
	}
	for _, pid := range pids {
		if !p.procs.Alive(ctx, pid) {
			continue
		}
		p.log.Warn("motion ignored SIGTERM; killing", logx.Int("pid", int(pid)))
		if err := p.procs.Signal(ctx, pid, true); err != nil && !errors.Is(err, os.ErrProcessDone) {
			errs = append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	return len(pids), errors.Join(errs...)
}

func (p *Process) anyAlive(ctx context.Context, pids []int32) bool {
	return slices.ContainsFunc(pids, func(pid int32) bool { return p.procs.Alive(ctx, pid) })
}
