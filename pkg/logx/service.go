package logx

import (
	"cmp"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	kit "motionbot/internal/transport"
)

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Telegram TelegramConfig
}

// FileConfig controls the rotating JSON file sink.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type TelegramConfig struct {
	Enabled    bool
	ChatID     int64
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const (
	defaultLogPath    = "./motionbot.log"
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
	defaultMaxAgeDays = 14
)

// Service owns the log sinks. Loggers obtained from it follow Apply.
type Service struct {
	mu   sync.Mutex
	file *lumberjack.Logger
	chat *chatSink

	root atomic.Pointer[zerolog.Logger]
}

// New builds a Service configured by cfg and its root Logger.
// sender may be nil and attached later with SetSender.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{chat: newChatSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

func (s *Service) SetSender(sender kit.Sender) { s.chat.setSender(sender) }

// Close stops the chat forwarder and closes the log file.
func (s *Service) Close() error {
	s.chat.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Apply rebuilds the sink set from cfg. It is safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter())
	}
	if fc := cfg.File; fc.Enabled {
		s.file = &lumberjack.Logger{
			Filename:   cmp.Or(strings.TrimSpace(fc.Path), defaultLogPath),
			MaxSize:    positiveOr(fc.MaxSizeMB, defaultMaxSizeMB),
			MaxBackups: positiveOr(fc.MaxBackups, defaultMaxBackups),
			MaxAge:     positiveOr(fc.MaxAgeDays, defaultMaxAgeDays),
			Compress:   fc.Compress,
		}
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}
	if cfg.Telegram.Enabled {
		s.chat.configure(cfg.Telegram)
		sinks = append(sinks, s.chat)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
