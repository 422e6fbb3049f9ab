package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"time"

	"motionbot/internal/storage"
	logx "motionbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that mw[0] runs first.
func Chain(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for _, wrap := range slices.Backward(mw) {
		h = wrap(h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// requestLogger prefers the per-request logger carrying the request id.
func requestLogger(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// MWPanicRecover turns a handler panic into an error.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestLogger(log, req).Error("panic recovered", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("panic: %v", r)
			}()
			return next(ctx, req)
		}
	}
}

// slowRequest promotes successful request logs from debug to info.
const slowRequest = 750 * time.Millisecond

// MWRequestLog logs each request with its duration.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := time.Since(began)

			l := requestLogger(log, req).With(logx.Duration("dur", took))
			switch {
			case err != nil:
				l.Warn("request failed", logx.Err(err))
			case took >= slowRequest:
				l.Info("request ok")
			default:
				l.Debug("request ok")
			}
			return err
		}
	}
}

// AuditSink receives one entry per audited command.
type AuditSink interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

const auditWriteTimeout = 5 * time.Second

// MWAudit records the outcome of commands marked Audit. The write uses a
// context detached from the handler's so a timeout does not lose the entry.
func MWAudit(sink AuditSink, log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if sink == nil {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			if req == nil || !req.audit {
				return next(ctx, req)
			}
			began := time.Now()
			err := next(ctx, req)

			entry := storage.AuditEntry{
				At:            began,
				ActorID:       req.FromID,
				ActorUsername: req.FromUsername,
				ChatID:        req.Chat.ChatID,
				Action:        req.Command,
				Target:        req.auditTarget,
				OK:            err == nil,
				TookMS:        time.Since(began).Milliseconds(),
			}
			if err != nil {
				entry.Error = err.Error()
			}
			actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
			defer cancel()
			if werr := sink.AppendAudit(actx, entry); werr != nil {
				log.Warn("audit append failed", logx.String("cmd", req.Command), logx.Err(werr))
			}
			return err
		}
	}
}
