package router

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"motionbot/internal/storage"
	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

type sent struct {
	chat kit.ChatTarget
	kind string
	text string
	opt  *kit.SendOptions
}

type fakeSender struct {
	out  chan sent
	mu   sync.Mutex
	menu [][]kit.BotCommand
}

func newFakeSender() *fakeSender { return &fakeSender{out: make(chan sent, 64)} }

func (f *fakeSender) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.out <- sent{chat: to, kind: "text", text: text, opt: opt}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) SendPhoto(_ context.Context, to kit.ChatTarget, path, caption string) (kit.MessageRef, error) {
	f.out <- sent{chat: to, kind: "photo", text: path}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) SendVideo(_ context.Context, to kit.ChatTarget, path, caption string) (kit.MessageRef, error) {
	f.out <- sent{chat: to, kind: "video", text: path}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeSender) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	f.mu.Lock()
	f.menu = append(f.menu, cmds)
	f.mu.Unlock()
	return nil
}

func (f *fakeSender) next(t *testing.T) sent {
	t.Helper()
	select {
	case s := <-f.out:
		return s
	case <-time.After(3 * time.Second):
		t.Fatalf("no reply")
		return sent{}
	}
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
}

func (a *fakeAudit) AppendAudit(_ context.Context, e storage.AuditEntry) error {
	a.mu.Lock()
	a.entries = append(a.entries, e)
	a.mu.Unlock()
	return nil
}

const owner = 42

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 100, FromID: from, FromUsername: "u", Text: text}}
}

func startManager(t *testing.T, cmds []Command) (*CommandManager, *fakeSender, chan kit.Update) {
	t.Helper()
	fs := newFakeSender()
	m := NewCommandManager(logx.Nop(), fs, nil, []int64{owner})
	m.SetWorkers(2)
	m.SetRegistry(cmds)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m, fs, updates
}

func echo(route string, access Access) Command {
	return Command{
		Route:       route,
		Description: "echo " + route,
		Access:      access,
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, req.Command+"|"+strings.Join(req.Args, ","))
		},
	}
}

func TestDispatchAccessAndUnknown(t *testing.T) {
	_, fs, updates := startManager(t, []Command{
		echo("status", AccessEveryone),
		echo("stop", AccessOwnerOnly),
	})

	updates <- msg(7, "/status now")
	if got := fs.next(t).text; got != "status|now" {
		t.Fatalf("status reply = %q", got)
	}
	updates <- msg(7, "/stop")
	if got := fs.next(t).text; got != ReplyUnauthorized {
		t.Fatalf("non-owner reply = %q", got)
	}
	updates <- msg(owner, "/stop@motion_bot")
	if got := fs.next(t).text; got != "stop|" {
		t.Fatalf("owner reply = %q", got)
	}
	updates <- msg(owner, "/bogus")
	if got := fs.next(t).text; got != ReplyUnknown {
		t.Fatalf("unknown reply = %q", got)
	}
}

func TestDispatchIgnoresPlainText(t *testing.T) {
	_, fs, updates := startManager(t, []Command{echo("status", AccessEveryone)})
	updates <- msg(owner, "hello there")
	updates <- msg(owner, "/status")
	if got := fs.next(t).text; got != "status|" {
		t.Fatalf("first reply = %q, plain text should be ignored", got)
	}
}

func TestSubcommandsAndAliases(t *testing.T) {
	reset := echo("state reset", AccessOwnerOnly)
	reset.Aliases = []string{"rs"}
	_, fs, updates := startManager(t, []Command{reset, echo("state show", AccessEveryone)})

	for _, text := range []string{"/state reset --force", "/state_reset --force", "/rs --force"} {
		updates <- msg(owner, text)
		if got := fs.next(t).text; got != "state reset|" {
			t.Fatalf("%s -> %q", text, got)
		}
	}

	updates <- msg(owner, "/state")
	s := fs.next(t)
	if s.opt == nil || s.opt.ParseMode != "HTML" || !strings.Contains(s.text, "/state reset") {
		t.Fatalf("group help = %+v", s)
	}
}

func TestHelpListsCommands(t *testing.T) {
	_, fs, updates := startManager(t, []Command{echo("check", AccessOwnerOnly), echo("status", AccessEveryone)})
	updates <- msg(7, "/help")
	got := fs.next(t).text
	for _, want := range []string{"/check", "/status", "/help", "🔒"} {
		if !strings.Contains(got, want) {
			t.Fatalf("help missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "/status") > strings.Index(got, "/check") {
		t.Fatalf("owner-only commands should be listed last:\n%s", got)
	}

	updates <- msg(7, "/help check")
	if got := fs.next(t).text; !strings.Contains(got, "echo check") || !strings.Contains(got, "owner only") {
		t.Fatalf("detail help = %s", got)
	}
}

func TestAuditAndPanicRecovery(t *testing.T) {
	audit := &fakeAudit{}
	fs := newFakeSender()
	m := NewCommandManager(logx.Nop(), fs, nil, []int64{owner})
	m.SetAuditSink(audit)
	m.SetWorkers(1)
	m.SetRegistry([]Command{
		{
			Route:  "snap",
			Access: AccessOwnerOnly,
			Audit:  true,
			Handle: func(ctx context.Context, req *Request) error {
				req.SetAuditTarget("/pics/01.jpg")
				_ = req.Reply(ctx, "ok")
				return errors.New("camera busy")
			},
		},
		{
			Route:  "boom",
			Access: AccessEveryone,
			Handle: func(ctx context.Context, req *Request) error { panic("kaput") },
		},
		echo("status", AccessEveryone),
	})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 4)
	done := make(chan struct{})
	go func() {
		_ = m.DispatchLoop(ctx, updates)
		close(done)
	}()

	updates <- msg(owner, "/snap")
	fs.next(t)
	updates <- msg(owner, "/boom")
	updates <- msg(owner, "/status")
	if got := fs.next(t).text; got != "status|" {
		t.Fatalf("worker did not survive panic, got %q", got)
	}
	cancel()
	<-done

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %+v", audit.entries)
	}
	e := audit.entries[0]
	if e.Action != "snap" || e.OK || e.Error != "camera busy" || e.Target != "/pics/01.jpg" || e.ActorID != owner || e.ChatID != 100 {
		t.Fatalf("audit entry = %+v", e)
	}
}

func TestSetOwnersHotReload(t *testing.T) {
	m, fs, updates := startManager(t, []Command{echo("stop", AccessOwnerOnly)})
	m.SetOwners([]int64{7})
	updates <- msg(owner, "/stop")
	if got := fs.next(t).text; got != ReplyUnauthorized {
		t.Fatalf("old owner reply = %q", got)
	}
	updates <- msg(7, "/stop")
	if got := fs.next(t).text; got != "stop|" {
		t.Fatalf("new owner reply = %q", got)
	}
}

func TestMenuPushedOnRegistry(t *testing.T) {
	fs := newFakeSender()
	m := NewCommandManager(logx.Nop(), fs, nil, nil)
	m.SetRegistry([]Command{echo("snap", AccessOwnerOnly), echo("state reset", AccessOwnerOnly)})

	deadline := time.Now().Add(3 * time.Second)
	for {
		fs.mu.Lock()
		n := len(fs.menu)
		fs.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("menu not pushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	var names []string
	for _, c := range fs.menu[0] {
		names = append(names, c.Command)
	}
	want := []string{"help", "snap", "state", "state_reset"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("menu = %v, want %v", names, want)
	}
}

func TestTokenizeAndFlags(t *testing.T) {
	toks := tokenizeCommandLine(`/snap "front door" --res=1280x720 -v x\ y`)
	if want := []string{"/snap", "front door", "--res=1280x720", "-v", "x y"}; !reflect.DeepEqual(toks, want) {
		t.Fatalf("tokens = %q", toks)
	}
	pos, flags, bools := parseFlags([]string{"a", "--n", "5", "--force", "-xy", "-k=v"})
	if !reflect.DeepEqual(pos, []string{"a"}) || flags["n"] != "5" || flags["k"] != "v" || !bools["force"] || !bools["x"] || !bools["y"] {
		t.Fatalf("pos=%v flags=%v bools=%v", pos, flags, bools)
	}
}

func TestMenuName(t *testing.T) {
	cases := map[string]string{
		"Last-Photo":            "last_photo",
		"state reset":           "state_reset",
		"__x__":                 "x",
		"9lives":                "cmd_9lives",
		"héllo":                 "hllo",
		"":                      "",
		strings.Repeat("a", 40): strings.Repeat("a", 32),
	}
	for in, want := range cases {
		if got := menuName(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
