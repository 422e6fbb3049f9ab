package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "motionbot/internal/transport"
)

const (
	chatQueueSize = 256
	chatMaxText   = 3500
	chatMaxValue  = 600
	chatSendLimit = 10 * time.Second
)

// chatSink forwards log lines at or above a level to a Telegram chat.
// Writes never block: lines are dropped when the limiter refuses them
// or the queue is full.
type chatSink struct {
	queue chan chatLine

	mu      sync.Mutex
	sender  kit.Sender
	to      kit.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter

	start  sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type chatLine struct {
	to   kit.ChatTarget
	text string
}

func newChatSink(sender kit.Sender) *chatSink {
	return &chatSink{queue: make(chan chatLine, chatQueueSize), sender: sender}
}

func (c *chatSink) configure(cfg TelegramConfig) {
	perSec := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.to = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	c.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
	c.mu.Unlock()

	c.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.drain(ctx)
		}()
	})
}

func (c *chatSink) setSender(s kit.Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

func (c *chatSink) close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) drain(ctx context.Context) {
	for {
		var line chatLine
		select {
		case <-ctx.Done():
			return
		case line = <-c.queue:
		}
		c.mu.Lock()
		sender := c.sender
		c.mu.Unlock()
		if sender == nil {
			continue
		}
		sctx, cancel := context.WithTimeout(ctx, chatSendLimit)
		_, _ = sender.SendText(sctx, line.to, line.text, &kit.SendOptions{DisablePreview: true, Silent: true})
		cancel()
	}
}

func (c *chatSink) Write(p []byte) (int, error) { return c.WriteLevel(zerolog.InfoLevel, p) }

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to, ready := c.to, c.sender != nil && c.limiter != nil
	pass := ready && to.ChatID != 0 && level >= c.min && c.limiter.Allow()
	c.mu.Unlock()
	if !pass {
		return len(p), nil
	}
	if text := chatText(p); text != "" {
		select {
		case c.queue <- chatLine{to: to, text: text}:
		default:
		}
	}
	return len(p), nil
}

// chatText renders one JSON log line as "[LEVEL] message" followed by
// one "- key=value" line per field, sorted by key.
func chatText(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var fields map[string]any
	if json.Unmarshal([]byte(raw), &fields) != nil {
		return clip(raw, chatMaxText)
	}

	var b strings.Builder
	if lvl, _ := fields[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := fields[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	delete(fields, zerolog.TimestampFieldName)
	delete(fields, zerolog.LevelFieldName)
	delete(fields, zerolog.MessageFieldName)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(fields[k]), chatMaxValue))
	}
	return clip(b.String(), chatMaxText)
}

func clip(s string, n int) string {
	switch {
	case n <= 0 || len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}
