package storage

import (
	"fmt"
	"strings"

	logx "motionbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	case "none":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
