// Package adapter implements the chat transport on top of telebot.
package adapter

import (
	"cmp"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	rtsup "motionbot/internal/runtime/supervisor"
	kit "motionbot/internal/transport"
	logx "motionbot/pkg/logx"
)

const DefaultAPIURL = "https://api.telegram.org"

var errSendOnly = errors.New("telegram adapter is send-only (offline)")

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (self-hosted server or tests).
	APIURL      string
	PollTimeout time.Duration
	// SendTimeout bounds one API call when the caller's context has no deadline.
	SendTimeout time.Duration
	// RatePerSec limits outgoing API calls. <=0 means 1.
	RatePerSec int
	// Offline skips getMe and never polls.
	Offline bool
	// SafeSend retries once on flood and network errors.
	SafeSend bool
	// NetworkRetryDelay is the wait before retrying a network error. 0 means 5s.
	NetworkRetryDelay time.Duration
	HTTPClient        *http.Client
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 20 * time.Second
	}
	c.RatePerSec = max(c.RatePerSec, 1)
	if c.NetworkRetryDelay <= 0 {
		c.NetworkRetryDelay = 5 * time.Second
	}
	c.APIURL = cmp.Or(strings.TrimRight(strings.TrimSpace(c.APIURL), "/"), DefaultAPIURL)
	if c.HTTPClient == nil {
		// A long poll keeps its request open for PollTimeout.
		c.HTTPClient = &http.Client{Timeout: max(c.PollTimeout+10*time.Second, c.SendTimeout)}
	}
	return c
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
	lim *rate.Limiter

	// out is where inbound updates go while polling.
	out     atomic.Pointer[chan<- kit.Update]
	dropped atomic.Uint64

	mu  sync.Mutex
	sup *rtsup.Supervisor // non-nil while polling

	menuMu   sync.Mutex
	menuHash uint64
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	cfg = cfg.withDefaults()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.APIURL,
		Poller:  &tele.LongPoller{Timeout: cfg.PollTimeout},
		Client:  cfg.HTTPClient,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg: cfg,
		log: log.With(logx.String("comp", "telegram.adapter")),
		bot: bot,
		lim: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
	if !cfg.Offline {
		bot.Handle(tele.OnText, a.onText)
	}
	return a, nil
}

// onText turns an incoming text message into a kit.Update. It never blocks
// the poller: when the consumer lags the update is counted and dropped.
func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Chat == nil {
		return nil
	}
	out := a.out.Load()
	if out == nil {
		return nil
	}
	msg := &kit.Message{ID: m.ID, ChatID: m.Chat.ID, ThreadID: m.ThreadID, Text: m.Text}
	if s := m.Sender; s != nil {
		msg.FromID, msg.FromUsername = s.ID, s.Username
	}
	select {
	case *out <- kit.Update{Kind: kit.UpdateMessage, Message: msg}:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// Start polls for updates until ctx ends or Stop is called.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	if a.cfg.Offline {
		return errSendOnly
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sup != nil {
		return nil
	}
	a.out.Store(&out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	a.sup.Go0("updates.drop_report", func(c context.Context) {
		a.reportDrops(c, cap(out))
	})
	a.sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})
	// bot.Start blocks until bot.Stop; an early return is restarted.
	a.sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	return nil
}

func (a *Adapter) reportDrops(ctx context.Context, capacity int) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		if n := a.dropped.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", capacity))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop ends polling. It waits at most two seconds, bounded by ctx, since a
// pending getUpdates may not notice the cancel.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	a.sup = nil
	a.out.Store(nil)
	a.mu.Unlock()
	if sup == nil {
		return nil
	}

	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.dropped.Load()))
	sup.Cancel()
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	switch err := sup.Wait(wctx); {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		a.log.Warn("telegram stop timed out", logx.Err(err))
	case err != nil:
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}
