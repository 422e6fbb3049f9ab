package motion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"motionbot/internal/config"
	logx "motionbot/pkg/logx"
)

// Snapshotter captures a single frame with fswebcam.
type Snapshotter struct {
	Binary     string
	Resolution string
	Prefix     string
	Dir        string
	Timeout    time.Duration
	Log        logx.Logger

	now func() time.Time
}

func NewSnapshotter(cfg config.SnapshotConfig, mediaDir string, log logx.Logger) *Snapshotter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Snapshotter{
		Binary:     cfg.Binary,
		Resolution: cfg.Resolution,
		Prefix:     cfg.Prefix,
		Dir:        mediaDir,
		Timeout:    cfg.TimeoutDuration(),
		Log:        log.With(logx.String("comp", "snapshot")),
	}
}

// Path returns where a snapshot taken at t is stored: <dir>/<prefix>YYYYMMDDhhmmss.jpg.
func (s *Snapshotter) Path(t time.Time) string {
	return filepath.Join(s.Dir, s.Prefix+t.Format("20060102150405")+".jpg")
}

// Capture runs "<binary> -r <resolution> <path>" and checks that the file appeared.
func (s *Snapshotter) Capture(ctx context.Context) (string, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	path := s.Path(now())
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", err
	}

	ctx, cancel := withTimeout(ctx, s.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.Binary, "-r", s.Resolution, path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	s.Log.Info("taking snapshot", logx.String("path", path))
	runErr := cmd.Run()
	if msg := strings.TrimSpace(out.String()); msg != "" {
		s.Log.Debug("fswebcam output", logx.String("output", msg))
	}

	// fswebcam exits 0 even when the device is busy, so the file is the real signal.
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		if runErr != nil {
			return "", fmt.Errorf("snapshot: %w", runErr)
		}
		return "", fmt.Errorf("snapshot file not found after capture: %s", path)
	}
	return path, nil
}
