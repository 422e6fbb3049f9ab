// Package commands holds the chat command handlers of the motion bot.
package commands

import (
	"context"
	"time"

	"motionbot/internal/media"
	"motionbot/internal/motion"
	"motionbot/internal/storage"
	"motionbot/internal/transport/telegram/router"
	logx "motionbot/pkg/logx"
)

// Replies sent to the chat. They are fixed; details only go to the log.
const (
	ReplyAlreadyRunning = "Motion is already running."
	ReplyStarted        = "Motion detection started successfully."
	ReplyStartFailed    = "Failed to start motion detection."
	ReplyStartError     = "Error: Failed to start motion detection."
	ReplyStopped        = "Motion detection stopped."
	ReplyStopError      = "Error: Could not stop motion detection."
	ReplyRunning        = "Motion is running."
	ReplyNotRunning     = "Motion is not running."
	ReplyCheckError     = "Error: Could not check motion status."
	ReplyNoPhotos       = "No photos captured."
	ReplyNoVideos       = "No videos captured."
	ReplyPhotoError     = "Error: Could not send photo."
	ReplyVideoError     = "Error: Could not send video."
	ReplyMediaError     = "Error: Could not read the media directory."
	ReplySnapOK         = "Snapshot taken successfully!"
	ReplySnapFailed     = "Error: Snapshot capture failed."
	ReplySnapError      = "Error: Could not capture snapshot."
)

// MediaFinder is the part of media.Finder the handlers use.
type MediaFinder interface {
	Latest(ctx context.Context) (media.Item, bool, error)
	Count(ctx context.Context) (media.Stats, error)
}

type Snapshotter interface {
	Capture(ctx context.Context) (string, error)
}

type Deps struct {
	Motion   motion.Controller
	Snap     Snapshotter
	Watchdog *motion.Watchdog // optional
	Photos   MediaFinder
	Videos   MediaFinder
	State    storage.StateStore
	// Cooldown is used by /status when the request carries no config.
	Cooldown time.Duration
	Now      func() time.Time
	Log      logx.Logger
}

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Handlers{d: d}
}

// Commands returns the route table registered with the router.
func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Route:       "start",
			Description: "start motion detection",
			Usage:       "/start",
			Access:      router.AccessOwnerOnly,
			Audit:       true,
			Timeout:     time.Minute,
			Handle:      h.cmdStart,
		},
		{
			Route:       "stop",
			Description: "stop motion detection",
			Usage:       "/stop",
			Access:      router.AccessOwnerOnly,
			Audit:       true,
			Timeout:     time.Minute,
			Handle:      h.cmdStop,
		},
		{
			Route:       "check",
			Description: "is motion running?",
			Usage:       "/check",
			Access:      router.AccessOwnerOnly,
			Handle:      h.cmdCheck,
		},
		{
			Route:       "lastphoto",
			Aliases:     []string{"photo"},
			Description: "send the latest photo",
			Usage:       "/lastphoto",
			Access:      router.AccessOwnerOnly,
			Timeout:     2 * time.Minute,
			Handle:      h.cmdLastPhoto,
		},
		{
			Route:       "lastvideo",
			Aliases:     []string{"video"},
			Description: "send the latest video",
			Usage:       "/lastvideo",
			Access:      router.AccessOwnerOnly,
			Timeout:     5 * time.Minute,
			Handle:      h.cmdLastVideo,
		},
		{
			Route:       "snap",
			Description: "take a snapshot now",
			Usage:       "/snap",
			Access:      router.AccessOwnerOnly,
			Audit:       true,
			Timeout:     2 * time.Minute,
			Handle:      h.cmdSnap,
		},
		{
			Route:       "status",
			Description: "motion, notification and media status",
			Usage:       "/status",
			Access:      router.AccessEveryone,
			Handle:      h.cmdStatus,
		},
	}
}

// reply sends text and logs (but does not return) a transport failure, so the
// handler's own error stays the one recorded.
func reply(ctx context.Context, req *router.Request, text string) {
	if err := req.Reply(ctx, text); err != nil {
		req.Logger.Warn("reply failed", logx.String("text", text), logx.Err(err))
	}
}
