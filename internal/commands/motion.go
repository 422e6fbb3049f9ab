package commands

import (
	"context"
	"errors"
	"os/exec"
	"strconv"

	"motionbot/internal/motion"
	"motionbot/internal/transport/telegram/router"
	logx "motionbot/pkg/logx"
)

func (h *Handlers) cmdStart(ctx context.Context, req *router.Request) error {
	res, err := h.d.Motion.Start(ctx)
	if res.Output != "" {
		req.Logger.Info("motion output", logx.String("output", res.Output))
	}
	switch {
	case err == nil && res.AlreadyRunning:
		req.SetAuditTarget("already_running")
		h.expect(true)
		reply(ctx, req, ReplyAlreadyRunning)
		return nil
	case err == nil:
		h.expect(true)
		reply(ctx, req, ReplyStarted)
		return nil
	case errors.Is(err, motion.ErrStartFailed):
		reply(ctx, req, ReplyStartFailed)
	default:
		reply(ctx, req, ReplyStartError)
	}
	return err
}

func (h *Handlers) cmdStop(ctx context.Context, req *router.Request) error {
	h.expect(false)
	n, err := h.d.Motion.Stop(ctx)
	req.SetAuditTarget("stopped=" + strconv.Itoa(n))
	if err != nil {
		reply(ctx, req, ReplyStopError)
		return err
	}
	req.Logger.Info("motion stopped", logx.Int("count", n))
	reply(ctx, req, ReplyStopped)
	return nil
}

func (h *Handlers) cmdCheck(ctx context.Context, req *router.Request) error {
	running, err := h.d.Motion.Running(ctx)
	if err != nil {
		reply(ctx, req, ReplyCheckError)
		return err
	}
	if running {
		reply(ctx, req, ReplyRunning)
	} else {
		req.Logger.Warn("motion is not running")
		reply(ctx, req, ReplyNotRunning)
	}
	return nil
}

func (h *Handlers) cmdSnap(ctx context.Context, req *router.Request) error {
	path, err := h.d.Snap.Capture(ctx)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			reply(ctx, req, ReplySnapError)
		} else {
			reply(ctx, req, ReplySnapFailed)
		}
		return err
	}
	req.SetAuditTarget(path)
	reply(ctx, req, ReplySnapOK)
	if err := req.ReplyPhoto(ctx, path, ""); err != nil {
		reply(ctx, req, ReplyPhotoError)
		return err
	}
	return nil
}

func (h *Handlers) expect(running bool) {
	if h.d.Watchdog != nil {
		h.d.Watchdog.Expect(running)
	}
}
