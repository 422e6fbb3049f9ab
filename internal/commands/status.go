package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"motionbot/internal/storage"
	"motionbot/internal/transport/telegram/router"
	logx "motionbot/pkg/logx"
)

func (h *Handlers) cmdStatus(ctx context.Context, req *router.Request) error {
	now := h.d.Now()
	cooldown := h.d.Cooldown
	if req.Config != nil {
		cooldown = req.Config.Gate.CooldownDuration()
	}

	lines := make([]string, 0, 8)

	motionLine := "unknown"
	if running, err := h.d.Motion.Running(ctx); err != nil {
		req.Logger.Warn("status: motion check failed", logx.Err(err))
	} else if running {
		motionLine = "running"
	} else {
		motionLine = "not running"
	}
	lines = append(lines, "Motion: "+motionLine)
	if h.d.Watchdog != nil {
		wd := "idle"
		if h.d.Watchdog.Expected() {
			wd = "armed"
		}
		lines = append(lines, "Watchdog: "+wd)
	}

	st, err := h.d.State.Load(ctx)
	if err != nil {
		req.Logger.Warn("status: state load failed", logx.Err(err))
		if errors.Is(err, storage.ErrCorruptState) {
			st.LastNotification = time.Time{}
		} else {
			st = storage.State{}
		}
	}
	lines = append(lines, "Last notification: "+FormatWhen(st.LastNotification, now))
	last := "none"
	if st.LastPhoto != "" {
		last = filepath.Base(st.LastPhoto)
	}
	lines = append(lines, "Last photo sent: "+last)
	lines = append(lines, "Cooldown: "+FormatCooldown(cooldown, st.LastNotification, now))

	for _, m := range []struct {
		label string
		f     MediaFinder
	}{{"Photos", h.d.Photos}, {"Videos", h.d.Videos}} {
		if m.f == nil {
			continue
		}
		s, err := m.f.Count(ctx)
		if err != nil {
			req.Logger.Warn("status: media count failed", logx.Err(err))
			lines = append(lines, m.label+": unknown")
			continue
		}
		lines = append(lines, m.label+": "+s.String())
	}

	reply(ctx, req, strings.Join(lines, "\n"))
	return nil
}

// FormatWhen renders t as a local timestamp with a relative age, or "never".
func FormatWhen(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%s)", t.Local().Format(time.DateTime), humanize.RelTime(t, now, "ago", "from now"))
}

// FormatCooldown mirrors the gate: a notification is allowed once
// now - last >= cooldown.
func FormatCooldown(cooldown time.Duration, last, now time.Time) string {
	var elapsed time.Duration
	if last.IsZero() {
		elapsed = cooldown
	} else {
		elapsed = now.Sub(last)
	}
	if elapsed >= cooldown {
		return cooldown.String() + ", ready"
	}
	return fmt.Sprintf("%s, %s left", cooldown, (cooldown - elapsed).Round(time.Second))
}
