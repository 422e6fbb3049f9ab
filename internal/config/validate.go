package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"motionbot/internal/task/scheduler"
)

// ErrMissingCredentials is returned when no bot token or chat id is configured.
var ErrMissingCredentials = errors.New("telegram token and chat id are required (set BOT_TOKEN and TELEGRAM_ID)")

// Validate checks the whole document and joins every problem it finds.
func (c *Config) Validate() error { return c.validate(true) }

func (c *Config) validate(requireCreds bool) error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if requireCreds && (strings.TrimSpace(c.Telegram.Token) == "" || c.Telegram.ChatID == 0) {
		errs = append(errs, ErrMissingCredentials)
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", c.Telegram.PollTimeout},
		{"telegram.send_timeout", c.Telegram.SendTimeout},
		{"motion.start_timeout", c.Motion.StartTimeout},
		{"motion.stop_grace", c.Motion.StopGrace},
		{"snapshot.timeout", c.Snapshot.Timeout},
		{"media.retention", c.Media.Retention},
		{"gate.cooldown", c.Gate.Cooldown},
		{"gate.send_timeout", c.Gate.SendTimeout},
		{"storage.busy_timeout", c.Storage.BusyTimeout},
	}
	for _, d := range durations {
		_, err := ParseDurationField(d.path, d.raw)
		add(err)
	}

	switch c.Motion.Backend {
	case "process", "systemd":
	default:
		errs = append(errs, fmt.Errorf("motion.backend: unknown backend %q (want process|systemd)", c.Motion.Backend))
	}
	switch c.Storage.Driver {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q (want file|sqlite|memory)", c.Storage.Driver))
	}

	for _, lv := range []struct{ path, raw string }{
		{"logging.level", c.Logging.Level},
		{"logging.telegram.min_level", c.Logging.Telegram.MinLevel},
	} {
		if lv.raw == "" {
			continue
		}
		switch strings.ToUpper(strings.TrimSpace(lv.raw)) {
		case "TRACE", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown level %q", lv.path, lv.raw))
		}
	}

	for _, sc := range []struct{ path, raw string }{
		{"media.retention_schedule", c.Media.RetentionSchedule},
		{"motion.watchdog", c.Motion.Watchdog},
	} {
		if strings.TrimSpace(sc.raw) == "" {
			continue
		}
		if err := scheduler.ValidateSchedule(sc.raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sc.path, err))
		}
	}

	if tz := c.Scheduler.Timezone; tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}
