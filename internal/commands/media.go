package commands

import (
	"context"

	"motionbot/internal/transport/telegram/router"
	logx "motionbot/pkg/logx"
)

func (h *Handlers) cmdLastPhoto(ctx context.Context, req *router.Request) error {
	return h.sendLatest(ctx, req, h.d.Photos, ReplyNoPhotos, ReplyPhotoError, req.ReplyPhoto)
}

func (h *Handlers) cmdLastVideo(ctx context.Context, req *router.Request) error {
	return h.sendLatest(ctx, req, h.d.Videos, ReplyNoVideos, ReplyVideoError, req.ReplyVideo)
}

func (h *Handlers) sendLatest(ctx context.Context, req *router.Request, f MediaFinder, none, failed string, send func(ctx context.Context, path, caption string) error) error {
	it, ok, err := f.Latest(ctx)
	if err != nil {
		reply(ctx, req, ReplyMediaError)
		return err
	}
	if !ok {
		req.Logger.Warn("no media found")
		reply(ctx, req, none)
		return nil
	}
	req.Logger.Info("sending media", logx.String("path", it.Path), logx.Int64("size", it.Size))
	if err := send(ctx, it.Path, it.Caption(h.d.Now())); err != nil {
		reply(ctx, req, failed)
		return err
	}
	return nil
}
