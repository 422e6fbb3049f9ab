package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

// ErrorKind classifies a failed API call.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindFlood is HTTP 429; the server says how long to wait.
	KindFlood
	// KindNetwork covers transport failures where the request may not have reached Telegram.
	KindNetwork
	// KindAPI is any other error reported by Telegram (bad request, forbidden, ...).
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFlood:
		return "flood"
	case KindNetwork:
		return "network"
	default:
		return "api"
	}
}

// Classify returns the kind of err and, for floods, the server's retry-after.
func Classify(err error) (ErrorKind, time.Duration) {
	if err == nil {
		return KindNone, 0
	}
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return KindFlood, time.Duration(fe.RetryAfter) * time.Second
	}
	var (
		ne net.Error
		ue *url.Error
	)
	if errors.As(err, &ne) || errors.As(err, &ue) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return KindNetwork, 0
	}
	return KindAPI, 0
}

// call runs one API request under the rate limiter and the send timeout.
// telebot has no context support, so a cancelled ctx abandons the request;
// the HTTP client timeout still bounds it.
func (a *Adapter) call(ctx context.Context, fn func() (*tele.Message, error)) (*tele.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.SendTimeout)
		defer cancel()
	}
	if err := a.lim.Wait(ctx); err != nil {
		return nil, err
	}
	type result struct {
		msg *tele.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := fn()
		ch <- result{m, err}
	}()
	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send applies the safe-send policy when enabled: one retry after a flood
// (waiting retry_after) or a network error (waiting NetworkRetryDelay).
func (a *Adapter) send(ctx context.Context, op string, fn func() (*tele.Message, error)) (*tele.Message, error) {
	msg, err := a.call(ctx, fn)
	if err == nil || !a.cfg.SafeSend {
		return msg, err
	}
	kind, wait := Classify(err)
	switch kind {
	case KindFlood:
		a.log.Warn("rate limited; retrying", logx.String("op", op), logx.Duration("retry_after", wait))
	case KindNetwork:
		wait = a.cfg.NetworkRetryDelay
		a.log.Warn("network error; retrying", logx.String("op", op), logx.Duration("wait", wait), logx.Err(err))
	default:
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, errors.Join(err, ctx.Err())
	case <-time.After(wait):
	}
	msg, err = a.call(ctx, fn)
	if err != nil {
		a.log.Error("send failed after retry", logx.String("op", op), logx.Err(err))
	}
	return msg, err
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt != nil {
		so.ParseMode = tele.ParseMode(opt.ParseMode)
		so.DisableWebPagePreview = opt.DisablePreview
		so.DisableNotification = opt.Silent
	}
	return so
}

func ref(to kit.ChatTarget, m *tele.Message) kit.MessageRef {
	r := kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID}
	if m != nil {
		r.MessageID = m.ID
	}
	return r
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	parseMode := ""
	if opt != nil {
		parseMode = opt.ParseMode
	}
	chunks := splitTelegramText(text, telegramTextLimit, parseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.send(ctx, "sendMessage", func() (*tele.Message, error) {
			return a.bot.Send(chat, chunk, sendOptions(to, opt))
		})
		if err != nil {
			return first, fmt.Errorf("sendMessage: %w", err)
		}
		if i == 0 {
			first = ref(to, msg)
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, path, caption string) (kit.MessageRef, error) {
	return a.sendFile(ctx, "sendPhoto", to, path, func() tele.Sendable {
		return &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	})
}

func (a *Adapter) SendVideo(ctx context.Context, to kit.ChatTarget, path, caption string) (kit.MessageRef, error) {
	return a.sendFile(ctx, "sendVideo", to, path, func() tele.Sendable {
		return &tele.Video{File: tele.FromDisk(path), Caption: caption}
	})
}

// sendFile builds a fresh Sendable per attempt; telebot mutates it after upload.
func (a *Adapter) sendFile(ctx context.Context, op string, to kit.ChatTarget, path string, build func() tele.Sendable) (kit.MessageRef, error) {
	if _, err := os.Stat(path); err != nil {
		return kit.MessageRef{}, fmt.Errorf("%s: %w", op, err)
	}
	chat := &tele.Chat{ID: to.ChatID}
	msg, err := a.send(ctx, op, func() (*tele.Message, error) {
		return a.bot.Send(chat, build(), sendOptions(to, nil))
	})
	if err != nil {
		return kit.MessageRef{}, fmt.Errorf("%s %s: %w", op, path, err)
	}
	return ref(to, msg), nil
}
