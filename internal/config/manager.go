package config

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"slices"
	"sync"

	logx "motionbot/pkg/logx"
)

// Manager owns the current Config. The bot also uses it to watch the file
// and hand validated reloads to subscribers.
type Manager struct {
	path   string
	getenv func(string) string
	// offline accepts configs without Telegram credentials, for tools that
	// never talk to the Bot API.
	offline bool
	log     logx.Logger

	mu   sync.RWMutex
	cfg  *Config
	hash uint64 // of cfg; editors often emit several events per save

	subsMu sync.Mutex
	subs   []chan *Config
}

// NewManager reads path on Load. An empty path means defaults plus the
// environment.
func NewManager(path string) *Manager {
	return &Manager{path: path, getenv: os.Getenv, log: logx.Nop()}
}

func (m *Manager) SetLogger(log logx.Logger) { m.log = log }

func (m *Manager) SetOffline(v bool) { m.offline = v }

// Parse builds a Config from the file, the environment and the defaults,
// then validates it. The current config is left untouched.
func (m *Manager) Parse() (*Config, error) {
	cfg := new(Config)
	if m.path != "" {
		data, err := os.ReadFile(m.path)
		if err != nil {
			return nil, err
		}
		if err := decodeFile(m.path, data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", m.path, err)
		}
	}
	applyEnv(cfg, m.getenv)
	cfg.ApplyDefaults()
	if err := cfg.validate(!m.offline); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load parses and installs the config.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.swap(cfg)
	return cfg, nil
}

// swap installs cfg and returns the one it replaced.
func (m *Manager) swap(cfg *Config) *Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.cfg
	m.cfg, m.hash = cfg, fingerprint(cfg)
	return prev
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Subscribe returns a channel receiving every accepted reload.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *Manager) Unsubscribe(ch chan *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	if i := slices.Index(m.subs, ch); i >= 0 && ch != nil {
		m.subs = slices.Delete(m.subs, i, i+1)
		close(ch)
	}
}

// publish never blocks. A subscriber whose buffer is full loses its
// oldest pending config so the newest one always gets through.
func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
