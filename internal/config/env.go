package config

import (
	"strconv"
	"strings"
)

const (
	EnvToken  = "BOT_TOKEN"
	EnvChatID = "TELEGRAM_ID"
)

// applyEnv lets BOT_TOKEN and TELEGRAM_ID override the file, matching how the
// motion event scripts have always been configured.
// A TELEGRAM_ID that is not an integer is ignored here and caught by Validate.
func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvChatID)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
}
