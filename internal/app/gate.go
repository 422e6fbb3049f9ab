package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"motionbot/internal/config"
	"motionbot/internal/gate"
	"motionbot/internal/lock"
	"motionbot/internal/media"
	"motionbot/internal/storage"
	kit "motionbot/internal/transport"
	"motionbot/internal/transport/telegram/adapter"
	logx "motionbot/pkg/logx"
)

// GateRuntime is one short-lived notification gate plus the resources it owns.
type GateRuntime struct {
	Gate  *gate.Gate
	Store storage.Store

	chatID int64
	log    logx.Logger
}

// BuildGate wires a gate for a single motion event: file lock, persisted
// state, photo finder and a send-only Telegram client. Sends are not retried.
func BuildGate(cfg *config.Config, log logx.Logger) (*GateRuntime, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return buildGate(cfg, log, nil)
}

// buildGate accepts an explicit sender so tests can avoid the network.
func buildGate(cfg *config.Config, log logx.Logger, sender kit.Sender) (*GateRuntime, error) {
	store, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	if sender == nil {
		ac := mapAdapterConfig(cfg)
		ac.Offline = true
		ac.SafeSend = false
		ac.SendTimeout = cfg.Gate.SendTimeoutDuration()
		ad, err := adapter.New(ac, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sender = ad
	}

	g, err := gate.New(gate.Options{
		Cooldown:    cfg.Gate.CooldownDuration(),
		Message:     cfg.Gate.Message,
		SendTimeout: cfg.Gate.SendTimeoutDuration(),
	}, gate.Deps{
		Lock:   gateLock(cfg),
		State:  store,
		Finder: media.NewFinder(cfg.Media.Dir, cfg.Media.PhotoExt...),
		Sink:   gate.TransportSink{Sender: sender, To: kit.ChatTarget{ChatID: cfg.Telegram.ChatID}},
		Log:    log,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return &GateRuntime{Gate: g, Store: store, chatID: cfg.Telegram.ChatID, log: log}, nil
}

// memoryLocks backs the memory driver. Its state never leaves the process,
// so neither does the lock.
var memoryLocks = lock.NewRegistry()

func gateLock(cfg *config.Config) gate.Locker {
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Driver), "memory") {
		return memoryLocks.Handle(cfg.Gate.LockPath)
	}
	return lock.NewFile(cfg.Gate.LockPath)
}

// OpenStore opens the configured state and audit store.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	return storage.Open(mapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
}

// Notify runs the gate once and records anything that reached Telegram in the audit log.
func (r *GateRuntime) Notify(ctx context.Context) gate.Outcome {
	start := time.Now()
	out := r.Gate.OnMotionEvent(ctx)
	if !out.Notified() {
		return out
	}
	entry := storage.AuditEntry{
		At:     start,
		ChatID: r.chatID,
		Action: "notify",
		Target: out.String(),
		OK:     out == gate.OutcomeSent,
		TookMS: time.Since(start).Milliseconds(),
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := r.Store.AppendAudit(actx, entry); err != nil && !errors.Is(err, storage.ErrDisabled) {
		r.log.Debug("audit append failed", logx.Err(err))
	}
	return out
}

func (r *GateRuntime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
