package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Accessors below assume Validate() already passed; invalid values fall back to defaults.

func (g GateConfig) CooldownDuration() time.Duration {
	d, _ := ParseDurationOrDefault("gate.cooldown", g.Cooldown, DefaultCooldown)
	return d
}

func (g GateConfig) SendTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("gate.send_timeout", g.SendTimeout, DefaultSendTimeout)
	return d
}

func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.poll_timeout", t.PollTimeout, DefaultPollTimeout)
	return d
}

func (t TelegramConfig) SendTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("telegram.send_timeout", t.SendTimeout, DefaultSendTimeout)
	return d
}

func (m MotionConfig) StartTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("motion.start_timeout", m.StartTimeout, DefaultStartTimeout)
	return d
}

func (m MotionConfig) StopGraceDuration() time.Duration {
	d, _ := ParseDurationOrDefault("motion.stop_grace", m.StopGrace, DefaultStopGrace)
	return d
}

func (s SnapshotConfig) TimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("snapshot.timeout", s.Timeout, DefaultSnapTimeout)
	return d
}

// RetentionDuration returns 0 when pruning is disabled.
func (m MediaConfig) RetentionDuration() time.Duration {
	d, _ := ParseDurationField("media.retention", m.Retention)
	return d
}

func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	d, _ := ParseDurationOrDefault("storage.busy_timeout", s.BusyTimeout, DefaultBusyTimeout)
	return d
}
