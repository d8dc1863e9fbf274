// Package configwatcher reloads protocol timing when the recorder's config
// file changes. Only the [timing] table is applied at runtime; other
// settings need a restart.
package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/extropian/motionsync/internal/cliconfig"
	"github.com/extropian/motionsync/internal/ports"
	"github.com/extropian/motionsync/pkg/motionsync"
)

// Plugin watches the config file and pushes new timing to the recorder.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration
	pinned        map[string]bool

	path     string
	logger   motionsync.Logger
	tuner    motionsync.Tuner
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// Pinned lists flag names that were set on the command line. Their
	// values are never replaced by a reload.
	Pinned map[string]bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DebounceDelay: 100 * time.Millisecond}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		debounceDelay: cfg.DebounceDelay,
		pinned:        cfg.Pinned,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching cfg.ConfigPath. Without a path or tuner the
// plugin stays idle.
func (p *Plugin) Initialize(ctx context.Context, cfg motionsync.PluginConfig) error {
	p.mu.Lock()
	p.path = cfg.ConfigPath
	p.logger = cfg.Logger
	p.tuner = cfg.Tuner
	p.mu.Unlock()

	if p.path == "" || p.tuner == nil {
		p.logger.Warn("config watcher disabled: no config file")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Editors replace files on save, so the directory is watched instead of
	// the file itself.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher started", ports.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns the number of successful reloads.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	target := filepath.Clean(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.scheduleReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher error", ports.Err(err))
		}
	}
}

func (p *Plugin) scheduleReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload applies the [timing] table on top of the timing in effect. A file
// that fails to parse leaves the current timing untouched.
func (p *Plugin) reload() {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		p.logger.Warn("config reload failed", ports.String("path", p.path), ports.Err(err))
		return
	}

	current := p.tuner.Timing()
	cfg := cliconfig.Config{
		TriggerDelay:      current.TriggerDelay,
		SettleDelay:       current.SettleDelay,
		DrainPollAttempts: current.DrainPollAttempts,
		DrainPollInterval: current.DrainPollInterval,
		CommandTimeout:    current.CommandTimeout,
	}
	if err := cliconfig.ApplyTimingFile(&cfg, fc.Timing, p.pinned); err != nil {
		p.logger.Warn("config reload failed", ports.String("path", p.path), ports.Err(err))
		return
	}
	if cfg.TriggerDelay < 0 || cfg.SettleDelay < 0 {
		p.logger.Warn("config reload rejected: negative delay", ports.String("path", p.path))
		return
	}

	next := cfg.Timing()
	if next == current {
		return
	}
	p.tuner.SetTiming(next)

	p.mu.Lock()
	p.reloads++
	p.mu.Unlock()
	p.logger.Info("timing reloaded",
		ports.Duration("trigger_delay", next.TriggerDelay),
		ports.Duration("settle_delay", next.SettleDelay),
	)
}

var _ motionsync.Plugin = (*Plugin)(nil)
