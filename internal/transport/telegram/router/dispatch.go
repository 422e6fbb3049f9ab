package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"motionbot/internal/config"
	"motionbot/internal/runtime/supervisor"
	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

const (
	jobQueueSize = 256
	menuTimeout  = 10 * time.Second
	drainTimeout = 3 * time.Second
)

// CommandManager routes chat commands to handlers on a worker pool.
type CommandManager struct {
	log    logx.Logger
	sender kit.Sender
	cfgm   *config.Manager
	audit  AuditSink

	workers int

	mu     sync.RWMutex
	root   *cmdNode
	alias  map[string]*cmdNode // single word -> leaf
	owners []int64
	appSup *supervisor.Supervisor
	jobs   chan func() // nil unless DispatchLoop runs
}

// NewCommandManager builds a router replying through sender. cfgm may be nil,
// in which case requests carry a nil Config.
func NewCommandManager(log logx.Logger, sender kit.Sender, cfgm *config.Manager, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		log:     log,
		sender:  sender,
		cfgm:    cfgm,
		workers: max(2, runtime.NumCPU()),
		root:    newRoot(),
		alias:   map[string]*cmdNode{},
		owners:  slices.Clone(owners),
	}
}

func (m *CommandManager) SetAuditSink(sink AuditSink) { m.audit = sink }

// SetAppSupervisor runs background work such as menu updates under sup.
func (m *CommandManager) SetAppSupervisor(sup *supervisor.Supervisor) {
	m.mu.Lock()
	m.appSup = sup
	m.mu.Unlock()
}

// SetWorkers sets the pool size. It must be called before DispatchLoop.
func (m *CommandManager) SetWorkers(n int) {
	if n > 0 {
		m.workers = n
	}
}

// SetOwners replaces the users allowed to run owner-only commands.
func (m *CommandManager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

// SetRegistry replaces the command table and adds /help. When the sender
// keeps a command menu, the new menu is pushed in the background.
func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(slices.Clone(cmds), Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "list commands",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.ReplyHTML(ctx, m.helpText(req.Args))
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	setAlias := func(name string, leaf *cmdNode, override bool) {
		if _, taken := alias[name]; name != "" && (override || !taken) {
			alias[name] = leaf
		}
	}
	var table []Command
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		table = append(table, c)
		leaf := root.insert(route, c)

		// "state reset" is also reachable as /state_reset for the menu.
		// A one-word route never aliases itself or subcommands would be shadowed.
		if name, ok := routeMenuName(route); ok && (len(route) > 1 || name != route[0]) {
			setAlias(name, leaf, false)
		}
		for _, a := range c.Aliases {
			if a = strings.TrimSpace(a); a == "" || strings.Contains(a, " ") {
				continue
			}
			setAlias(a, leaf, true)
			setAlias(menuName(a), leaf, false)
		}
	}

	m.mu.Lock()
	m.root, m.alias = root, alias
	sup := m.appSup
	m.mu.Unlock()

	if up, ok := m.sender.(kit.CommandMenuUpdater); ok {
		m.pushMenu(sup, up, menuCommands(root, table))
	}
}

func (m *CommandManager) pushMenu(sup *supervisor.Supervisor, up kit.CommandMenuUpdater, menu []kit.BotCommand) {
	push := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, menuTimeout)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, menu); err != nil {
			m.log.Warn("command menu update failed", logx.Err(err))
		}
	}
	if sup == nil {
		go push(context.Background())
		return
	}
	sup.Go0("telegram.menu.update", push)
}

// DispatchLoop routes updates until ctx ends or updates is closed.
// Handlers run on the worker pool. When every worker is busy and the queue
// is full the user gets ReplyBusy.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	jobs := make(chan func(), jobQueueSize)
	sup := supervisor.New(ctx, supervisor.WithLogger(m.log.With(logx.String("comp", "telegram.router"))))
	for i := range m.workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			m.work(c, i, jobs)
			return nil
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	m.mu.Lock()
	m.jobs = jobs
	m.mu.Unlock()
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers), logx.Int("job_queue_cap", jobQueueSize))

	defer func() {
		m.mu.Lock()
		m.jobs = nil
		m.mu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind == kit.UpdateMessage && up.Message != nil {
				m.route(ctx, up.Message)
			}
		}
	}
}

func (m *CommandManager) work(ctx context.Context, id int, jobs <-chan func()) {
	run := func(job func()) {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in command job", logx.Int("worker", id), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		job()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-jobs:
			run(job)
		}
	}
}

// route resolves a "/word sub args" message to a command.
func (m *CommandManager) route(ctx context.Context, msg *kit.Message) {
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	tokens := tokenizeCommandLine(text)
	if len(tokens) == 0 {
		return
	}
	word, _, _ := strings.Cut(strings.TrimPrefix(tokens[0], "/"), "@")
	word = strings.ToLower(word)
	args := tokens[1:]
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	root, alias := m.root, m.alias
	m.mu.RUnlock()

	if leaf := alias[word]; leaf != nil && leaf.cmd != nil {
		m.submit(ctx, msg, *leaf.cmd, args)
		return
	}
	node, ok := root.child(word)
	if !ok {
		m.reply(ctx, chat, ReplyUnknown, nil)
		return
	}
	node, sub, rest := node.descend(args)
	if node.cmd == nil {
		// A group without its own handler answers with its help.
		path := append([]string{word}, sub...)
		m.reply(ctx, chat, m.helpText(path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}
	m.submit(ctx, msg, *node.cmd, rest)
}

func (m *CommandManager) reply(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) {
	if _, err := m.sender.SendText(ctx, to, text, opt); err != nil {
		m.log.Warn("router reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

// submit checks access and queues the handler wrapped in the middleware chain.
func (m *CommandManager) submit(ctx context.Context, msg *kit.Message, cmd Command, args []string) {
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	owner := slices.Contains(m.owners, msg.FromID)
	jobs := m.jobs
	m.mu.RUnlock()

	if cmd.Access == AccessOwnerOnly && !owner {
		m.log.Warn("unauthorized command", logx.Int64("from_id", msg.FromID), logx.String("cmd", cmd.Route))
		m.reply(ctx, chat, ReplyUnauthorized, nil)
		return
	}

	rid := newReqID()
	pos, flags, bools := parseFlags(args)
	req := &Request{
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      cmd.Route,
		Args:         pos,
		Flags:        flags,
		BoolFlags:    bools,
		ReqID:        rid,
		Sender:       m.sender,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Route),
		),
		audit: cmd.Audit,
	}
	if m.cfgm != nil {
		req.Config = m.cfgm.Get()
	}

	h := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWAudit(m.audit, m.log),
		MWTimeout(cmd.Timeout),
	)
	select {
	case jobs <- func() { _ = h(ctx, req) }:
	default:
		m.reply(ctx, chat, ReplyBusy, nil)
	}
}
