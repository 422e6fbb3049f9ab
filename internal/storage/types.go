package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	// ErrCorruptState is returned (wrapped) by Load when a stored value cannot be parsed.
	// The returned State still carries every value that did parse.
	ErrCorruptState = errors.New("corrupt gate state")
)

// Config configures storage.
type Config struct {
	Driver      string
	Dir         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is what the notification gate remembers between invocations.
// The zero value means "never notified": LastNotification is treated as epoch 0.
type State struct {
	LastNotification time.Time `json:"last_notification"`
	LastPhoto        string    `json:"last_photo,omitempty"`
}

// StateStore is the narrow interface the gate depends on.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// Store is the full persistence API used by the bot and motionctl.
type Store interface {
	StateStore
	// Reset forgets the gate state so the next motion event notifies immediately.
	Reset(ctx context.Context) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	// RecentAudit returns up to n entries, newest first.
	RecentAudit(ctx context.Context, n int) ([]AuditEntry, error)
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            bool      `json:"ok"`
	Error         string    `json:"error,omitempty"`
	TookMS        int64     `json:"took_ms,omitempty"`
}
