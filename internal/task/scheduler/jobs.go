package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "motionbot/pkg/logx"
)

var ErrNotFound = errors.New("scheduler: schedule not found")

// entry is one registered job and its run statistics. Its triggers never
// overlap: a trigger that fires while the job runs is counted as skipped.
type entry struct {
	name    string
	spec    string // cron expression or "@every <d>"
	timeout time.Duration
	job     Job
	id      cron.EntryID // 0 while the service is stopped

	mu      sync.Mutex
	running bool
	runs    uint64
	skipped uint64
	failed  uint64
	lastRun time.Time
	lastDur time.Duration
	lastErr string
}

func (e *entry) info() ScheduleInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ScheduleInfo{
		Name: e.name, Spec: e.spec, Timeout: e.timeout,
		Runs: e.runs, Skipped: e.skipped, Failed: e.failed,
		LastRun: e.lastRun, LastDur: e.lastDur, LastErr: e.lastErr,
		Running: e.running,
	}
}

// AddSchedule parses schedule (see ParseSchedule) and registers job under
// name, replacing any job of the same name.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) (string, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return "", err
	}
	if ps.Kind == SpecInterval {
		return s.AddInterval(name, ps.Every, timeout, job)
	}
	return s.AddCron(name, ps.Cron, timeout, job)
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	if _, err := cronParser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}
	return s.add(&entry{name: name, spec: spec, timeout: timeout, job: job})
}

func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", fmt.Errorf("schedule %s: %w", name, errNonPositive)
	}
	return s.add(&entry{name: name, spec: "@every " + every.String(), timeout: timeout, job: job})
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, at string, timeout time.Duration, job Job) (string, error) {
	h, m, err := parseHHMM(at)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) add(e *entry) (string, error) {
	if e.name = strings.TrimSpace(e.name); e.name == "" {
		return "", errors.New("name required")
	}
	if e.job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(e.name)
	s.entries = append(s.entries, e)
	if s.c == nil {
		return e.name, nil
	}
	if err := s.registerLocked(e); err != nil {
		s.log.Error("schedule register failed", logx.String("name", e.name), logx.String("spec", e.spec), logx.Err(err))
		return e.name, err
	}
	fields := []logx.Field{logx.String("name", e.name), logx.String("spec", e.spec), logx.Duration("timeout", e.timeout)}
	if next := s.upcomingLocked(e.id, 3); next != "" {
		fields = append(fields, logx.String("next", next))
	}
	s.log.Debug("schedule registered", fields...)
	return e.name, nil
}

// Remove unregisters name and reports whether it existed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	removed := s.removeLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeLocked(name string) bool {
	n := len(s.entries)
	s.entries = slices.DeleteFunc(s.entries, func(e *entry) bool {
		if e.name != name {
			return false
		}
		if s.c != nil && e.id != 0 {
			s.c.Remove(e.id)
		}
		return true
	})
	return len(s.entries) != n
}

// RunNow runs the named job synchronously with its timeout. A run already
// in progress makes it a counted skip.
func (s *Service) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *entry
	for _, e := range s.entries {
		if e.name == name {
			target = e
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s.run(ctx, target)
}

// registerLocked hands e to the running cron.
func (s *Service) registerLocked(e *entry) error {
	base := s.base
	fn := cron.FuncJob(func() { _ = s.run(base, e) })
	if every, ok := everyOf(e.spec); ok {
		sched, delay := newStaggered(every, time.Now().In(s.loc))
		e.id = s.c.Schedule(sched, fn)
		s.log.Trace("interval first run delayed", logx.String("name", e.name), logx.Duration("delay", delay))
		return nil
	}
	id, err := s.c.AddJob(e.spec, fn)
	if err != nil {
		return err
	}
	e.id = id
	return nil
}

func (s *Service) run(ctx context.Context, e *entry) error {
	e.mu.Lock()
	if e.running {
		e.skipped++
		e.mu.Unlock()
		s.log.Debug("schedule trigger skipped; previous run still active", logx.String("schedule", e.name))
		return nil
	}
	e.running = true
	e.mu.Unlock()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	began := time.Now()
	err := callJob(ctx, e.job)
	took := time.Since(began)

	e.mu.Lock()
	e.running = false
	e.runs++
	e.lastRun, e.lastDur, e.lastErr = began, took, ""
	if err != nil {
		e.failed++
		e.lastErr = err.Error()
	}
	e.mu.Unlock()

	if err != nil {
		s.log.Warn("job failed", logx.String("schedule", e.name), logx.Duration("took", took), logx.Err(err))
		return err
	}
	s.log.Debug("job done", logx.String("schedule", e.name), logx.Duration("took", took))
	return nil
}

func callJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return job(ctx)
}

// upcomingLocked lists the next n trigger times of a cron entry. It only
// does the work when debug logging is on.
func (s *Service) upcomingLocked(id cron.EntryID, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || s.c == nil || id == 0 {
		return ""
	}
	sched := s.c.Entry(id).Schedule
	if sched == nil {
		return ""
	}
	t := time.Now().In(s.loc)
	times := make([]string, 0, n)
	for range n {
		if t = sched.Next(t); t.IsZero() {
			break
		}
		times = append(times, t.Format(time.DateTime))
	}
	return strings.Join(times, ", ")
}
