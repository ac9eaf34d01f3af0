package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads and validates the server config, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Engine.EventWorkers == 0 {
		c.Engine.EventWorkers = 32
	}
	if c.Engine.RuleWorkers == 0 {
		c.Engine.RuleWorkers = 16
	}
	if c.Engine.QueueDepth == 0 {
		c.Engine.QueueDepth = 10000
	}
	if c.Engine.EventTimeoutMs == 0 {
		c.Engine.EventTimeoutMs = 5000
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.Driver == "sqlite" && c.Store.DSN == "" {
		c.Store.DSN = "autorule.db"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "events.>"
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = "autorule"
	}
	if c.NATS.NotifySubject == "" {
		c.NATS.NotifySubject = "notifications"
	}
	if c.Retention.RecordMaxAgeDays == 0 {
		c.Retention.RecordMaxAgeDays = 30
	}
	if c.Retention.SweepIntervalMinutes == 0 {
		c.Retention.SweepIntervalMinutes = 60
	}
}

// RuleLoader reads a seed rule file and watches it for changes.
type RuleLoader struct {
	path     string
	mu       sync.RWMutex
	current  *RuleFile
	onChange []func(*RuleFile)
	watcher  *fsnotify.Watcher
}

// NewRuleLoader creates a RuleLoader and performs the initial load.
func NewRuleLoader(path string) (*RuleLoader, error) {
	l := &RuleLoader{path: path}
	rf, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = rf
	return l, nil
}

// Rules returns the current (latest) rule file.
func (l *RuleLoader) Rules() *RuleFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the file reloads.
func (l *RuleLoader) OnChange(fn func(*RuleFile)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the rule file on
// change. Call the returned stop function to clean up.
func (l *RuleLoader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("rule file watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("rule file watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					rf, err := l.load()
					if err != nil {
						// Keep serving the old rules.
						continue
					}
					l.mu.Lock()
					l.current = rf
					callbacks := make([]func(*RuleFile), len(l.onChange))
					copy(callbacks, l.onChange)
					l.mu.Unlock()
					for _, fn := range callbacks {
						fn(rf)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the rule file.
func (l *RuleLoader) Reload() (*RuleFile, error) {
	rf, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = rf
	callbacks := make([]func(*RuleFile), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(rf)
	}
	return rf, nil
}

func (l *RuleLoader) load() (*RuleFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", l.path, err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rule file %s: %w", l.path, err)
	}
	if err := ValidateRuleFile(&rf); err != nil {
		return nil, err
	}
	return &rf, nil
}
