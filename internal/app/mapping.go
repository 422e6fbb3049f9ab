package app

import (
	"motionbot/internal/config"
	"motionbot/internal/storage"
	"motionbot/internal/task/scheduler"
	"motionbot/internal/transport/telegram/adapter"
	logx "motionbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Dir:         cfg.Storage.Dir,
		BusyTimeout: cfg.Storage.BusyTimeoutDuration(),
	}
}

// mapLogConfig routes Telegram log lines to the alert chat.
func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File: logx.FileConfig{
			Enabled:    l.File.Enabled,
			Path:       l.File.Path,
			MaxSizeMB:  l.File.MaxSizeMB,
			MaxBackups: l.File.MaxBackups,
			MaxAgeDays: l.File.MaxAgeDays,
			Compress:   l.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ChatID:     cfg.Telegram.ChatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.IsEnabled(),
		Timezone: cfg.Scheduler.Timezone,
	}
}

func mapAdapterConfig(cfg *config.Config) adapter.Config {
	return adapter.Config{
		Token:       cfg.Telegram.Token,
		APIURL:      cfg.Telegram.APIURL,
		PollTimeout: cfg.Telegram.PollTimeoutDuration(),
		SendTimeout: cfg.Telegram.SendTimeoutDuration(),
		RatePerSec:  cfg.Telegram.RatePerSec,
		SafeSend:    true,
	}
}

// GateLogConfig is the logging setup for one motionctl invocation. Motion
// discards the stdout of event scripts, so a file sink at gate.log_path is
// used unless logging.file is configured. The Telegram sink is never used.
func GateLogConfig(cfg *config.Config) logx.Config {
	lc := mapLogConfig(cfg)
	lc.Telegram.Enabled = false
	if !lc.File.Enabled {
		lc.File = logx.FileConfig{Enabled: true, Path: cfg.Gate.LogPath}
	}
	return lc
}
