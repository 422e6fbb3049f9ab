package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	logx "motionbot/pkg/logx"
)

// File names inside the state directory. The first two are shared with the
// older shell and python event scripts, so an existing state dir keeps working.
const (
	NotificationFile = "motion_last_notification.txt"
	PhotoFile        = "motion_last_photo_sent.txt"
	AuditFile        = "audit.jsonl"
)

// fileStore keeps the gate state in two small text files:
//   - motion_last_notification.txt: unix seconds as a decimal float
//   - motion_last_photo_sent.txt:   path of the last photo sent
//
// Writes are atomic (temp file + rename). Cross-process exclusion is the
// caller's job (the gate holds its flock while it reads and writes).
type fileStore struct {
	log logx.Logger
	dir string

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, errors.New("storage.dir is required for file driver")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) path(name string) string { return filepath.Join(s.dir, name) }

func (s *fileStore) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st State
	var errs []error
	if raw, ok, err := readTrimmed(s.path(NotificationFile)); err != nil {
		errs = append(errs, err)
	} else if ok {
		t, err := ParseUnixSeconds(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrCorruptState, NotificationFile, err))
		} else {
			st.LastNotification = t
		}
	}
	if raw, ok, err := readTrimmed(s.path(PhotoFile)); err != nil {
		errs = append(errs, err)
	} else if ok {
		st.LastPhoto = raw
	}
	return st, errors.Join(errs...)
}

func (s *fileStore) Save(ctx context.Context, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path(NotificationFile), FormatUnixSeconds(st.LastNotification)); err != nil {
		return err
	}
	return writeAtomic(s.path(PhotoFile), st.LastPhoto)
}

func (s *fileStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range []string{NotificationFile, PhotoFile} {
		if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// AppendAudit appends one JSON line. O_APPEND keeps concurrent writers from
// interleaving within a line.
func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path(AuditFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(b, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (s *fileStore) RecentAudit(ctx context.Context, n int) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path(AuditFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var all []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			s.log.Debug("skipping bad audit line", logx.Err(err))
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return newestFirst(all, n), nil
}

func (s *fileStore) Close() error { return nil }

// readTrimmed returns ("", false, nil) when the file does not exist.
func readTrimmed(path string) (string, bool, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(string(b)), true, nil
}

func writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// FormatUnixSeconds renders t the way Python's str(time.time()) does.
// The zero time is written as "0".
func FormatUnixSeconds(t time.Time) string {
	if t.IsZero() {
		return "0"
	}
	return strconv.FormatFloat(float64(t.UnixMicro())/1e6, 'f', -1, 64)
}

// maxUnixSeconds (year 33658) keeps the microsecond count well inside an int64.
const maxUnixSeconds = 1e12

// ParseUnixSeconds parses a decimal seconds value with microsecond precision.
// An empty string or "0" yields the zero time.
func ParseUnixSeconds(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return time.Time{}, err
	}
	return fromUnixSeconds(f)
}

func fromUnixSeconds(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("out of range: %v", f)
	}
	if f == 0 {
		return time.Time{}, nil
	}
	return time.UnixMicro(int64(math.Round(f * 1e6))), nil
}
