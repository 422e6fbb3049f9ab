package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	logx "motionbot/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     SpecKind
		source   string
		duration time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: SpecCron, source: "cron"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, source: "cron"},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: SpecCron, source: "cron"},
		{name: "duration", raw: "10m", kind: SpecInterval, source: "duration", duration: 10 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, source: "duration", duration: 45 * time.Second},
		{name: "every hhmm", raw: "every:00:50", kind: SpecInterval, source: "hhmm", duration: 50 * time.Minute},
		{name: "hhmm", raw: "01:30", kind: SpecInterval, source: "hhmm", duration: 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind || got.Source != tt.source {
				t.Fatalf("got %+v", got)
			}
			if tt.kind == SpecInterval && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "-5m", "00:00", "01:75", "interval:"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Errorf("ParseSchedule(%q): expected error", raw)
		}
	}
	if err := ValidateSchedule("61 * * * *"); err == nil {
		t.Errorf("ValidateSchedule accepted an out-of-range minute")
	}
	if err := ValidateSchedule("@daily"); err != nil {
		t.Errorf("ValidateSchedule(@daily) = %v", err)
	}
}

func newService(enabled bool) *Service {
	return New(Config{Enabled: enabled}, logx.Nop())
}

func TestRunNowRecordsOutcome(t *testing.T) {
	s := newService(false)
	fail := errors.New("disk gone")
	calls := 0
	if _, err := s.AddSchedule("media.retention", "@daily", time.Second, func(ctx context.Context) error {
		calls++
		if calls == 2 {
			return fail
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := s.RunNow(ctx, "media.retention"); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(ctx, "media.retention"); !errors.Is(err, fail) {
		t.Fatalf("err = %v", err)
	}
	if err := s.RunNow(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	snap := s.Snapshot()
	if len(snap.Schedules) != 1 {
		t.Fatalf("schedules = %+v", snap.Schedules)
	}
	it := snap.Schedules[0]
	if it.Runs != 2 || it.Failed != 1 || it.LastErr != "disk gone" || it.Spec != "@daily" {
		t.Fatalf("info = %+v", it)
	}
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := newService(false)
	release := make(chan struct{})
	started := make(chan struct{})
	_, _ = s.AddInterval("slow", time.Minute, 0, func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- s.RunNow(context.Background(), "slow") }()
	<-started
	if err := s.RunNow(context.Background(), "slow"); err != nil {
		t.Fatalf("skipped run err = %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	it := s.Snapshot().Schedules[0]
	if it.Runs != 1 || it.Skipped != 1 || it.Running {
		t.Fatalf("info = %+v", it)
	}
}

func TestJobTimeoutAndPanic(t *testing.T) {
	s := newService(false)
	_, _ = s.AddInterval("hang", time.Minute, 20*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	_, _ = s.AddInterval("boom", time.Minute, 0, func(ctx context.Context) error { panic("kaput") })

	if err := s.RunNow(context.Background(), "hang"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("hang err = %v", err)
	}
	if err := s.RunNow(context.Background(), "boom"); err == nil || !strings.Contains(err.Error(), "panic: kaput") {
		t.Fatalf("boom err = %v", err)
	}
}

func TestAddReplacesAndRemove(t *testing.T) {
	s := newService(false)
	_, _ = s.AddSchedule("job", "1h", 0, func(context.Context) error { return nil })
	_, _ = s.AddSchedule("job", "0 3 * * *", 0, func(context.Context) error { return nil })
	if got := s.Snapshot().Schedules; len(got) != 1 || got[0].Spec != "0 3 * * *" {
		t.Fatalf("schedules = %+v", got)
	}
	if _, err := s.AddCron("bad", "61 * * * *", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid cron error")
	}
	if _, err := s.AddDaily("daily", "25:00", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected invalid HH:MM error")
	}
	if !s.Remove("job") || s.Remove("job") {
		t.Fatalf("Remove should report true once")
	}
	if len(s.Snapshot().Schedules) != 0 {
		t.Fatalf("schedules left after Remove")
	}
}

func TestStartTriggersIntervalJobs(t *testing.T) {
	s := newService(true)
	var runs atomic.Int32
	_, _ = s.AddInterval("tick", time.Second, time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	s.Start(context.Background())
	if !s.Snapshot().Running {
		t.Fatalf("service not running after Start")
	}

	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("interval job never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Snapshot().Running {
		t.Fatalf("service still running after Stop")
	}
}

func TestDisabledServiceDoesNotStart(t *testing.T) {
	s := newService(false)
	s.Start(context.Background())
	if s.Snapshot().Running {
		t.Fatalf("disabled service started")
	}
	s.Apply(Config{Enabled: true, Timezone: "UTC"})
	s.Start(context.Background())
	snap := s.Snapshot()
	if !snap.Running || snap.Timezone != "UTC" {
		t.Fatalf("snapshot = %+v", snap)
	}
	s.Apply(Config{Enabled: false})
	if s.Snapshot().Running {
		t.Fatalf("Apply(disabled) should stop the service")
	}
}
