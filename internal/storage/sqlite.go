package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "motionbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// SQLiteFile is the database name inside storage.dir.
const SQLiteFile = "motionbot.db"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("storage.dir is required for sqlite driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		filepath.Join(dir, SQLiteFile), busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	var (
		secs  float64
		photo string
	)
	err := s.db.QueryRowContext(ctx, `SELECT last_notification, last_photo FROM gate_state WHERE id = 1`).Scan(&secs, &photo)
	if errors.Is(err, sql.ErrNoRows) {
		return State{}, nil
	}
	if err != nil {
		return State{}, err
	}
	st := State{LastPhoto: photo}
	if st.LastNotification, err = fromUnixSeconds(secs); err != nil {
		return st, fmt.Errorf("%w: gate_state.last_notification: %v", ErrCorruptState, err)
	}
	return st, nil
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	var secs float64
	if !st.LastNotification.IsZero() {
		secs = float64(st.LastNotification.UnixMicro()) / 1e6
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_state(id, last_notification, last_photo) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_notification = excluded.last_notification, last_photo = excluded.last_photo`,
		secs, st.LastPhoto,
	)
	return err
}

func (s *sqliteStore) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM gate_state`)
	return err
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	ok := 0
	if e.OK {
		ok = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor_id, actor_username, chat_id, action, target, ok, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		e.At.UTC().Format(time.RFC3339Nano), e.ActorID, nullStr(e.ActorUsername), e.ChatID,
		e.Action, nullStr(e.Target), ok, nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqliteStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	if n <= 0 {
		n = -1 // no LIMIT
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, actor_id, actor_username, chat_id, action, target, ok, err, took_ms
		 FROM audit ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e                  AuditEntry
			at                 string
			user, target, errS sql.NullString
			ok                 int
		)
		if err := rows.Scan(&at, &e.ActorID, &user, &e.ChatID, &e.Action, &target, &ok, &errS, &e.TookMS); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.ActorUsername, e.Target, e.Error = user.String, target.String, errS.String
		e.OK = ok != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
