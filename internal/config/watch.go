package config

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "motionbot/pkg/logx"
)

const (
	// settleDelay lets a burst of events from one save collapse into one reload.
	settleDelay     = 250 * time.Millisecond
	watchBackoffMin = 250 * time.Millisecond
	watchBackoffMax = 5 * time.Second
)

const reloadOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod

// Watch reloads the config whenever the file changes, until ctx ends.
// The directory is watched so editors that replace the file are seen.
// A broken watcher is recreated with jittered backoff.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir, file := filepath.Dir(m.path), filepath.Base(m.path)

	backoff := watchBackoffMin
	for {
		w, err := newDirWatcher(dir)
		if err == nil {
			backoff = watchBackoffMin
			m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))
			err = m.follow(ctx, w, file)
			_ = w.Close()
		}
		if ctx.Err() != nil {
			return nil
		}
		m.log.Warn("config watcher failed; restarting", logx.String("dir", dir), logx.Err(err))

		wait := backoff + rand.N(backoff/2+1)
		backoff = min(backoff*2, watchBackoffMax)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

var errWatcherClosed = errors.New("watcher closed")

// follow handles events until ctx ends (nil) or the watcher breaks.
func (m *Manager) follow(ctx context.Context, w *fsnotify.Watcher, file string) error {
	settle := time.NewTimer(time.Hour)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-settle.C:
			m.reload()
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if ev.Op&reloadOps != 0 && strings.EqualFold(filepath.Base(ev.Name), file) {
				settle.Reset(settleDelay)
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok:
				return errWatcherClosed
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				settle.Reset(settleDelay)
			case err != nil:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}

// reload parses the file again and publishes it when it differs from the
// current config. An invalid file keeps the current config.
func (m *Manager) reload() {
	next, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload failed; keeping previous config", logx.String("path", m.path), logx.Err(err))
		return
	}
	m.mu.RLock()
	same := m.hash != 0 && m.hash == fingerprint(next)
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}
	prev := m.swap(next)
	m.publish(next)
	m.log.Info("config reloaded", logx.String("path", m.path), logx.Any("changed", Diff(prev, next)))
}
