// Package app wires the long-running chat bot and the one-shot notification gate.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"motionbot/internal/commands"
	"motionbot/internal/config"
	"motionbot/internal/media"
	"motionbot/internal/motion"
	"motionbot/internal/runtime/supervisor"
	"motionbot/internal/storage"
	"motionbot/internal/task/scheduler"
	kit "motionbot/internal/transport"
	"motionbot/internal/transport/telegram/adapter"
	"motionbot/internal/transport/telegram/router"
	logx "motionbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	root  logx.Logger
	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter  *adapter.Adapter
	motion   motion.Controller
	watchdog *motion.Watchdog
	sched    *scheduler.Service

	cmds *commands.Handlers
	cmdm *router.CommandManager

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(mapLogConfig(cfg), nil)
	fail := func(err error) (*App, error) {
		_ = logs.Close()
		return nil, err
	}

	ad, err := adapter.New(mapAdapterConfig(cfg), root)
	if err != nil {
		return fail(err)
	}
	logs.SetSender(ad)

	store, err := OpenStore(cfg, root)
	if err != nil {
		return fail(fmt.Errorf("storage: %w", err))
	}

	ctl, err := motion.New(cfg.Motion, root)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}

	a := &App{
		cfgm:    cfgm,
		root:    root,
		log:     root.With(logx.String("comp", "app")),
		logs:    logs,
		store:   store,
		adapter: ad,
		motion:  ctl,
		sched:   scheduler.New(mapSchedulerConfig(cfg), root),
		updates: make(chan kit.Update, 256),
	}
	a.watchdog = motion.NewWatchdog(ctl, a.alert, root)
	a.cmds = commands.New(commands.Deps{
		Motion:   ctl,
		Snap:     motion.NewSnapshotter(cfg.Snapshot, cfg.Media.Dir, root),
		Watchdog: a.watchdog,
		Photos:   media.NewFinder(cfg.Media.Dir, cfg.Media.PhotoExt...),
		Videos:   media.NewFinder(cfg.Media.Dir, cfg.Media.VideoExt...),
		State:    store,
		Cooldown: cfg.Gate.CooldownDuration(),
		Log:      root.With(logx.String("comp", "handlers")),
	})
	a.cmdm = router.NewCommandManager(root.With(logx.String("comp", "commands")), ad, cfgm, cfg.Owners())
	a.cmdm.SetAuditSink(store)
	return a, nil
}

// alert sends watchdog warnings to the alert chat of the current config.
func (a *App) alert(ctx context.Context, text string) error {
	to := kit.ChatTarget{ChatID: a.cfgm.Get().Telegram.ChatID}
	_, err := a.adapter.SendText(ctx, to, text, nil)
	return err
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.root.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.cmdm.SetAppSupervisor(a.sup)
	a.cmdm.SetRegistry(a.cmds.Commands())

	cfg := a.cfgm.Get()
	syncJobs(a.sched, cfg, a.watchdog.Check, a.root.With(logx.String("comp", "jobs")))
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := cfg
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = coalesce(sub, newCfg)
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("motion_backend", cfg.Motion.Backend),
		logx.String("storage", cfg.Storage.Driver),
		logx.String("media_dir", cfg.Media.Dir),
	)
	return nil
}

// coalesce keeps only the latest config pending in sub.
func coalesce(sub <-chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer, ok := <-sub:
			if !ok {
				return cfg
			}
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(c context.Context, prev, next *config.Config) {
	changed := config.Diff(prev, next)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if rr := restartRequired(prev, next); len(rr) > 0 {
		a.log.Warn("config changed; restart required for these sections to take effect",
			logx.String("sections", strings.Join(rr, ",")))
	}

	a.logs.Apply(mapLogConfig(next))
	a.cmdm.SetOwners(next.Owners())

	wasEnabled := a.sched.Enabled()
	a.sched.Apply(mapSchedulerConfig(next))
	switch nowEnabled := next.Scheduler.IsEnabled(); {
	case wasEnabled && !nowEnabled:
		a.log.Info("scheduler disabled via config")
	case !wasEnabled && nowEnabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(c)
	}
	syncJobs(a.sched, next, a.watchdog.Check, a.root.With(logx.String("comp", "jobs")))

	a.log.Info("config applied", logx.String("changed", strings.Join(changed, ",")))
}

// restartRequired lists changed sections the running bot cannot apply live.
// Logging, owners, the alert chat, gate settings, schedules and retention are live.
func restartRequired(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	p, n := *prev, *next
	for _, c := range []*config.Config{&p, &n} {
		c.Logging = config.LoggingConfig{}
		c.Telegram.ChatID = 0
		c.Telegram.OwnerUserIDs = nil
		c.Motion.Watchdog = ""
		c.Media.Retention = ""
		c.Media.RetentionSchedule = ""
		c.Gate = config.GateConfig{}
		c.Scheduler = config.SchedulerConfig{}
	}
	return config.Diff(&p, &n)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.stopStep(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.stopStep(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	// Handlers may still be writing audit entries; drain them before closing storage.
	a.stopStep(ctx, "supervisor", 3*time.Second, a.sup.Wait)
	a.stopStep(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	a.stopStep(ctx, "motion", time.Second, func(context.Context) error {
		if cl, ok := a.motion.(motion.Closer); ok {
			return cl.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// stopStep runs one shutdown step for at most limit, never past ctx's
// deadline. A step that overruns is left behind and logged when it ends.
func (a *App) stopStep(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	log := a.log.With(logx.String("step", name))
	began := time.Now()
	sctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(sctx)
	}()

	select {
	case err := <-done:
		took := time.Since(began)
		switch {
		case err != nil:
			log.Warn("stop step error", logx.Err(err), logx.Duration("took", took))
		case took >= 500*time.Millisecond:
			log.Info("stop step slow", logx.Duration("took", took))
		default:
			log.Debug("stop step done", logx.Duration("took", took))
		}
	case <-sctx.Done():
		log.Warn("stop step deadline reached (continuing)", logx.Err(sctx.Err()))
		go func() {
			err := <-done
			log.Info("stop step finished after deadline", logx.Err(err), logx.Duration("took", time.Since(began)))
		}()
	}
}
