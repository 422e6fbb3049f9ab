package motion

import (
	"context"
	"errors"
	"os"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"
)

type procInfo struct {
	PID  int32
	Name string
}

// procTable is the slice of the host process table the controller needs.
type procTable interface {
	List(ctx context.Context) ([]procInfo, error)
	Alive(ctx context.Context, pid int32) bool
	// Signal terminates pid, or kills it when force is set. A process that
	// is already gone yields os.ErrProcessDone.
	Signal(ctx context.Context, pid int32, force bool) error
}

// hostProcs reads the real process table through gopsutil.
type hostProcs struct{}

func (hostProcs) List(ctx context.Context) ([]procInfo, error) {
	ps, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]procInfo, 0, len(ps))
	for _, p := range ps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			// exited while listing
			continue
		}
		out = append(out, procInfo{PID: p.Pid, Name: name})
	}
	return out, nil
}

func (hostProcs) Alive(ctx context.Context, pid int32) bool {
	ok, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && ok
}

func (hostProcs) Signal(ctx context.Context, pid int32, force bool) error {
	p, err := process.NewProcessWithContext(ctx, pid)
	if errors.Is(err, process.ErrorProcessNotRunning) {
		return os.ErrProcessDone
	}
	if err != nil {
		return err
	}
	if force {
		err = p.KillWithContext(ctx)
	} else {
		err = p.TerminateWithContext(ctx)
	}
	if errors.Is(err, syscall.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}
