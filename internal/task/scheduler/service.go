package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "motionbot/pkg/logx"
)

// cronParser accepts 5-field and 6-field (with seconds) specs plus descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Config struct {
	Enabled bool
	// Timezone is an IANA name such as "Europe/Berlin". Empty means Local.
	Timezone string
}

type Job func(ctx context.Context) error

// Service triggers registered jobs while started. Registrations survive
// Stop and are re-armed by the next Start.
type Service struct {
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	loc     *time.Location
	entries []*entry // registration order

	// set while running
	c      *cron.Cron
	base   context.Context
	cancel context.CancelFunc
}

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, loc: time.Local, log: log.With(logx.String("comp", "scheduler"))}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply installs cfg. A running service is re-armed when the timezone
// changes and stopped when cfg disables it. Enabling again needs Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	tzChanged := strings.TrimSpace(s.cfg.Timezone) != strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg
	running := s.c != nil
	if running && cfg.Enabled && tzChanged {
		<-s.c.Stop().Done()
		s.armLocked()
		s.log.Info("service restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
	}
	s.mu.Unlock()

	if running && !cfg.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	}
}

// Start arms every registered job. Job contexts derive from ctx.
// It does nothing when the service is disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.c != nil:
		return
	case !s.cfg.Enabled:
		s.log.Info("scheduler disabled")
		return
	}
	s.base, s.cancel = context.WithCancel(ctx)
	s.armLocked()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.entries)))
}

// armLocked builds a fresh cron in the configured timezone, registers
// every entry and starts it.
func (s *Service) armLocked() {
	s.loc = s.location()
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	for _, e := range s.entries {
		if err := s.registerLocked(e); err != nil {
			s.log.Error("schedule register failed", logx.String("name", e.name), logx.String("spec", e.spec), logx.Err(err))
		}
	}
	s.c.Start()
}

// Stop disarms the jobs, cancels the running ones and waits for them
// until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	began := time.Now()
	s.mu.Lock()
	c, cancel := s.c, s.cancel
	s.c, s.cancel = nil, nil
	for _, e := range s.entries {
		e.id = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for jobs")
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(began)))
}

func (s *Service) location() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// ScheduleInfo describes one registered job.
type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time

	Runs    uint64
	Skipped uint64
	Failed  uint64
	LastRun time.Time
	LastDur time.Duration
	LastErr string
	Running bool
}

type Snapshot struct {
	Enabled   bool
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tz := s.cfg.Timezone
	if tz == "" {
		tz = s.loc.String()
	}
	out := Snapshot{Enabled: s.cfg.Enabled, Running: s.c != nil, Timezone: tz}
	for _, e := range s.entries {
		info := e.info()
		if s.c != nil && e.id != 0 {
			ce := s.c.Entry(e.id)
			info.Next, info.Prev = ce.Next, ce.Prev
		}
		out.Schedules = append(out.Schedules, info)
	}
	return out
}

// cronLogger sends robfig/cron's own logging to logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			out = append(out, logx.Any(k, kv[i+1]))
		}
	}
	return out
}
