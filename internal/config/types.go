package config

import (
	"path/filepath"
	"time"

	"motionbot/internal/storage"
)

// Config is the single configuration document shared by the bot and motionctl.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Motion    MotionConfig    `json:"motion"`
	Snapshot  SnapshotConfig  `json:"snapshot"`
	Media     MediaConfig     `json:"media"`
	Gate      GateConfig      `json:"gate"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type TelegramConfig struct {
	// Token may also come from BOT_TOKEN.
	Token string `json:"token"`
	// ChatID is the chat that receives motion alerts. May also come from TELEGRAM_ID.
	ChatID int64 `json:"chat_id"`
	// OwnerUserIDs may run owner-only commands. Empty means ChatID only.
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
	SendTimeout  string  `json:"send_timeout,omitempty"`
	RatePerSec   int     `json:"rate_per_sec,omitempty"`
	// APIURL overrides https://api.telegram.org (self-hosted bot API server).
	APIURL string `json:"api_url,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// MotionConfig controls how the motion daemon is started and inspected.
//
// Backend values:
//   - "process": exec the binary and scan /proc (default)
//   - "systemd": start/stop a systemd unit over D-Bus
type MotionConfig struct {
	Backend      string `json:"backend,omitempty"`
	Binary       string `json:"binary,omitempty"`
	ConfigPath   string `json:"config_path,omitempty"`
	ProcessName  string `json:"process_name,omitempty"`
	Unit         string `json:"unit,omitempty"`
	StartTimeout string `json:"start_timeout,omitempty"`
	StopGrace    string `json:"stop_grace,omitempty"`
	// Watchdog is a schedule ("1m", "*/5 * * * *"). Empty disables it.
	Watchdog string `json:"watchdog,omitempty"`
}

type SnapshotConfig struct {
	Binary     string `json:"binary,omitempty"`
	Resolution string `json:"resolution,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

type MediaConfig struct {
	Dir      string   `json:"dir"`
	PhotoExt []string `json:"photo_ext,omitempty"`
	VideoExt []string `json:"video_ext,omitempty"`
	// Retention deletes media older than this. "0s" or empty disables pruning.
	Retention         string `json:"retention,omitempty"`
	RetentionSchedule string `json:"retention_schedule,omitempty"`
}

type GateConfig struct {
	Cooldown    string `json:"cooldown,omitempty"`
	Message     string `json:"message,omitempty"`
	LockPath    string `json:"lock_path,omitempty"`
	SendTimeout string `json:"send_timeout,omitempty"`
	// LogPath is used by `motionctl notify` when logging.file is disabled,
	// because motion discards the stdout of event scripts.
	LogPath string `json:"log_path,omitempty"`
}

// StorageConfig controls where gate state and the audit log live.
//
// Example:
//
//	"storage": { "driver": "file", "dir": "/home/pi/motion-state" }
type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Dir         string `json:"dir,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

type SchedulerConfig struct {
	// Enabled defaults to true when omitted.
	Enabled  *bool  `json:"enabled,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

func (s SchedulerConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

const (
	DefaultCooldown     = 10 * time.Second
	DefaultSendTimeout  = 20 * time.Second
	DefaultPollTimeout  = 10 * time.Second
	DefaultStartTimeout = 10 * time.Second
	DefaultStopGrace    = 3 * time.Second
	DefaultSnapTimeout  = 15 * time.Second
	DefaultBusyTimeout  = 5 * time.Second

	DefaultGateMessage = "Motion detected! Last photo captured:"
	DefaultGateLogPath = "/tmp/motion_notification.log"
)

// ApplyDefaults fills omitted fields. It never overrides explicit values.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = 1
	}

	m := &c.Motion
	m.Backend = orStr(m.Backend, "process")
	m.Binary = orStr(m.Binary, "motion")
	m.ProcessName = orStr(m.ProcessName, "motion")
	m.Unit = orStr(m.Unit, "motion.service")

	s := &c.Snapshot
	s.Binary = orStr(s.Binary, "fswebcam")
	s.Resolution = orStr(s.Resolution, "640x480")
	s.Prefix = orStr(s.Prefix, "01-")

	md := &c.Media
	md.Dir = orStr(md.Dir, "./pics")
	if len(md.PhotoExt) == 0 {
		md.PhotoExt = []string{".jpg"}
	}
	if len(md.VideoExt) == 0 {
		md.VideoExt = []string{".mkv"}
	}
	md.RetentionSchedule = orStr(md.RetentionSchedule, "@daily")

	c.Storage.Driver = orStr(c.Storage.Driver, "file")
	c.Storage.Dir = orStr(c.Storage.Dir, "./state")

	g := &c.Gate
	g.Message = orStr(g.Message, DefaultGateMessage)
	g.LockPath = orStr(g.LockPath, filepath.Join(c.Storage.Dir, storage.NotificationFile+".lock"))
	g.LogPath = orStr(g.LogPath, DefaultGateLogPath)
}

// Owners returns the owner list, falling back to the alert chat.
func (c *Config) Owners() []int64 {
	if len(c.Telegram.OwnerUserIDs) > 0 {
		return append([]int64(nil), c.Telegram.OwnerUserIDs...)
	}
	if c.Telegram.ChatID != 0 {
		return []int64{c.Telegram.ChatID}
	}
	return nil
}

func orStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
