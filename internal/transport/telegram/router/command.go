package router

import (
	"context"
	"time"

	"motionbot/internal/config"
	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// Fixed replies sent by the router itself.
const (
	ReplyUnknown      = "Unknown command. Try /help"
	ReplyUnauthorized = "Unauthorized."
	ReplyBusy         = "Busy, try again."
)

// Command is one entry of the command table.
type Command struct {
	// Route is a space-separated path, e.g. "status" or "state reset".
	Route string
	// Aliases are extra single-word names reachable from the root.
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Timeout bounds the handler. Zero means no limit.
	Timeout time.Duration
	// Audit appends one storage.AuditEntry per invocation.
	Audit  bool
	Handle HandlerFunc
}

// Request is what a handler sees of one incoming command.
type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	Command      string
	// Args are the positional arguments; flags are split out.
	Args      []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Sender kit.Sender
	// Config is the config current when the command arrived. May be nil.
	Config *config.Config
	Logger logx.Logger

	audit       bool
	auditTarget string
}

var plainText = &kit.SendOptions{DisablePreview: true}

// Reply sends plain text to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, plainText)
	return err
}

func (r *Request) ReplyHTML(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
	return err
}

func (r *Request) ReplyPhoto(ctx context.Context, path, caption string) error {
	_, err := r.Sender.SendPhoto(ctx, r.Chat, path, caption)
	return err
}

func (r *Request) ReplyVideo(ctx context.Context, path, caption string) error {
	_, err := r.Sender.SendVideo(ctx, r.Chat, path, caption)
	return err
}

// SetAuditTarget names what an audited command acted on, such as a file.
func (r *Request) SetAuditTarget(target string) { r.auditTarget = target }
