package storage

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. Safe for concurrent use.
type Memory struct {
	mu    sync.Mutex
	st    State
	audit []AuditEntry

	loads, saves int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.st, nil
}

func (m *Memory) Save(ctx context.Context, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.st = st
	return nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = State{}
	return nil
}

// Ops returns how many times Load and Save were called.
func (m *Memory) Ops() (loads, saves int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads, m.saves
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	m.mu.Lock()
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.audit, n), nil
}

func (m *Memory) Close() error { return nil }

func newestFirst(in []AuditEntry, n int) []AuditEntry {
	if n <= 0 || n > len(in) {
		n = len(in)
	}
	out := make([]AuditEntry, 0, n)
	for i := len(in) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, in[i])
	}
	return out
}
