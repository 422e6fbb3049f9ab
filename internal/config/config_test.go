package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"motionbot/internal/storage"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func newTestManager(path string, env map[string]string) *Manager {
	m := NewManager(path)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestParseYAMLAppliesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.yaml", `
telegram:
  token: "123:abc"
  chat_id: 42
media:
  dir: /srv/pics
gate:
  cooldown: 30s
`)
	cfg, err := newTestManager(p, nil).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Media.Dir != "/srv/pics" {
		t.Fatalf("media.dir = %q", cfg.Media.Dir)
	}
	if got := cfg.Gate.CooldownDuration(); got != 30*time.Second {
		t.Fatalf("cooldown = %v", got)
	}
	if got := cfg.Gate.SendTimeoutDuration(); got != DefaultSendTimeout {
		t.Fatalf("send timeout = %v", got)
	}
	if cfg.Motion.Backend != "process" || cfg.Storage.Driver != "file" {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Motion, cfg.Storage)
	}
	if want := filepath.Join("./state", storage.NotificationFile+".lock"); cfg.Gate.LockPath != want {
		t.Fatalf("lock path = %q, want %q", cfg.Gate.LockPath, want)
	}
	if cfg.Gate.Message != DefaultGateMessage {
		t.Fatalf("message = %q", cfg.Gate.Message)
	}
	if owners := cfg.Owners(); len(owners) != 1 || owners[0] != 42 {
		t.Fatalf("owners = %v", owners)
	}
}

func TestParseTOML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.toml", `
[telegram]
token = "t"
chat_id = 7
owner_user_ids = [1, 2]

[storage]
driver = "sqlite"
dir = "/var/lib/motionbot"
`)
	cfg, err := newTestManager(p, nil).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Dir != "/var/lib/motionbot" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if owners := cfg.Owners(); len(owners) != 2 {
		t.Fatalf("owners = %v", owners)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"file","chat_id":1}}`)
	cfg, err := newTestManager(p, map[string]string{EnvToken: "env", EnvChatID: "-100"}).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "env" || cfg.Telegram.ChatID != -100 {
		t.Fatalf("telegram = %+v", cfg.Telegram)
	}
}

func TestEnvOnlyWithoutFile(t *testing.T) {
	cfg, err := newTestManager("", map[string]string{EnvToken: "x", EnvChatID: "5"}).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.ChatID != 5 || cfg.Media.Dir != "./pics" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestMissingCredentials(t *testing.T) {
	m := newTestManager("", nil)
	if _, err := m.Parse(); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err = %v, want ErrMissingCredentials", err)
	}
	m.SetOffline(true)
	if _, err := m.Parse(); err != nil {
		t.Fatalf("offline Parse: %v", err)
	}
}

func TestRejectsUnknownFieldsAndBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"unknown.json":  `{"telegram":{"token":"t","chat_id":1},"bogus":true}`,
		"trailing.json": `{"telegram":{"token":"t","chat_id":1}}{}`,
		"backend.json":  `{"telegram":{"token":"t","chat_id":1},"motion":{"backend":"docker"}}`,
		"duration.json": `{"telegram":{"token":"t","chat_id":1},"gate":{"cooldown":"ten"}}`,
		"negative.json": `{"telegram":{"token":"t","chat_id":1},"gate":{"cooldown":"-1s"}}`,
		"level.json":    `{"telegram":{"token":"t","chat_id":1},"logging":{"level":"loud"}}`,
		"schedule.json": `{"telegram":{"token":"t","chat_id":1},"motion":{"watchdog":"61 * * * *"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := writeFile(t, dir, name, body)
			if _, err := newTestManager(p, nil).Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestDiff(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "t"}}
	b := &Config{Telegram: TelegramConfig{Token: "t"}, Gate: GateConfig{Cooldown: "5s"}}
	got := Diff(a, b)
	if strings.Join(got, ",") != "gate" {
		t.Fatalf("Diff = %v", got)
	}
	if len(Diff(nil, b)) != 8 {
		t.Fatalf("Diff(nil) = %v", Diff(nil, b))
	}
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"t","chat_id":1}}`)
	m := newTestManager(p, nil)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"telegram":{"token":"t","chat_id":1},"gate":{"cooldown":"1m"}}`)

	select {
	case cfg := <-ch:
		if cfg.Gate.CooldownDuration() != time.Minute {
			t.Fatalf("cooldown = %v", cfg.Gate.CooldownDuration())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	cancel()
	<-done
}
