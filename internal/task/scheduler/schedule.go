package scheduler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a schedule string resolved to a cron expression or an interval.
//
// Accepted forms:
//   - cron: "*/5 * * * *", "0 3 * * *", "@daily", "@every 55m"
//   - Go duration: "55m", "2h30m"
//   - HH:MM interval: "00:50" (50 minutes), "02:30"
//
// The prefixes "cron:", "interval:" and "every:" force a kind.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
	// Source is how the spec was written: "cron", "duration" or "hhmm".
	Source string
}

var errNonPositive = errors.New("interval must be > 0")

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errors.New("schedule required")
	}
	if kind, rest, ok := strings.Cut(s, ":"); ok {
		switch strings.ToLower(kind) {
		case "cron":
			if rest = strings.TrimSpace(rest); rest == "" {
				return ParsedSpec{}, errors.New("cron schedule required after 'cron:'")
			}
			return ParsedSpec{Kind: SpecCron, Cron: rest, Source: "cron"}, nil
		case "interval", "every":
			return parseInterval(rest)
		}
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if ps, err := parseInterval(s); err == nil || errors.Is(err, errNonPositive) || strings.Contains(s, ":") {
		return ps, err
	}
	return ParsedSpec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '0 3 * * *', HH:MM like '02:30', or duration like '55m')", raw)
}

// ValidateSchedule parses raw and, for cron specs, the expression itself.
func ValidateSchedule(raw string) error {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := cronParser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}
	return nil
}

// parseInterval reads "HH:MM" or a Go duration.
func parseInterval(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, errors.New("interval required")
	}
	ps := ParsedSpec{Kind: SpecInterval, Source: "duration"}
	if hh, mm, ok := strings.Cut(v, ":"); ok {
		h, herr := strconv.Atoi(hh)
		m, merr := strconv.Atoi(mm)
		if herr != nil || merr != nil || len(mm) != 2 || h < 0 || len(hh) > 3 {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM)", v)
		}
		if m > 59 {
			return ParsedSpec{}, fmt.Errorf("invalid minutes in %q", v)
		}
		ps.Every, ps.Source = time.Duration(h)*time.Hour+time.Duration(m)*time.Minute, "hhmm"
	} else {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m')", v)
		}
		ps.Every = d
	}
	if ps.Every <= 0 {
		return ParsedSpec{}, errNonPositive
	}
	return ps, nil
}

// parseHHMM reads a wall-clock time of day.
func parseHHMM(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if hour, err = strconv.Atoi(hh); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if minute, err = strconv.Atoi(mm); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// everyOf extracts d from "@every d".
func everyOf(spec string) (time.Duration, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(spec), "@every")
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(rest))
	return d, err == nil && d > 0
}

const maxFirstRunDelay = 30 * time.Second

// staggered is an interval schedule whose first run is pushed back by a
// random delay, so jobs registered together do not all fire at once.
type staggered struct {
	every cron.Schedule
	first time.Time
}

func newStaggered(every time.Duration, now time.Time) (*staggered, time.Duration) {
	var delay time.Duration
	if n := min(every, maxFirstRunDelay); n > 0 {
		delay = rand.N(n)
	}
	return &staggered{every: cron.Every(every), first: now.Add(every + delay)}, delay
}

func (s *staggered) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.every.Next(t)
}
