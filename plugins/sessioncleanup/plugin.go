// Package sessioncleanup keeps the session documents of a file-backed
// session directory under a size limit. When they grow past the high
// watermark the oldest documents are removed until they are back under the
// low watermark.
package sessioncleanup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/extropian/motionsync/internal/ports"
	"github.com/extropian/motionsync/pkg/motionsync"
)

const (
	defaultCheckInterval = time.Hour
	defaultHighWatermark = 512 << 20
	staleTempAge         = time.Minute
)

// Plugin implements session retention.
type Plugin struct {
	mu sync.RWMutex

	checkInterval  time.Duration
	highWatermark  int64
	lowWatermark   int64
	runImmediately bool

	dir     string
	logger  motionsync.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	removed int
}

// Config holds configuration options for the cleanup plugin.
type Config struct {
	// CheckInterval is how often the directory size is checked.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Default: 512 MiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: three quarters of HighWatermark
	LowWatermark int64

	// RunImmediately runs a check when the plugin starts.
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  defaultCheckInterval,
		HighWatermark:  defaultHighWatermark,
		LowWatermark:   defaultHighWatermark / 4 * 3,
		RunImmediately: true,
	}
}

// New creates a cleanup plugin.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = defaultHighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark / 4 * 3
	}
	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		highWatermark:  cfg.HighWatermark,
		lowWatermark:   cfg.LowWatermark,
		runImmediately: cfg.RunImmediately,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "sessioncleanup"
}

// Initialize starts the cleanup loop. Without a session directory the plugin
// stays idle.
func (p *Plugin) Initialize(ctx context.Context, cfg motionsync.PluginConfig) error {
	p.mu.Lock()
	p.dir = cfg.SessionDir
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.dir == "" {
		p.logger.Warn("session cleanup disabled: sessions are not file backed")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("session cleanup started",
		ports.String("dir", p.dir),
		ports.String("high", formatBytes(p.highWatermark)),
		ports.String("low", formatBytes(p.lowWatermark)),
	)

	p.wg.Add(1)
	go p.cleanupLoop(loopCtx)
	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

// Removed returns the number of session documents deleted so far.
func (p *Plugin) Removed() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.removed
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.cleanupOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single check. The newest document is never removed.
func (p *Plugin) cleanupOnce(ctx context.Context) {
	p.mu.RLock()
	dir := p.dir
	p.mu.RUnlock()

	p.removeStaleTemps(dir)

	docs, err := orderedDocuments(dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.logger.Error("session cleanup: list sessions failed", ports.Err(err))
		}
		return
	}
	curSize := documentsSize(docs)
	if curSize <= p.highWatermark || len(docs) < 2 {
		return
	}

	var freed int64
	count := 0
	for _, doc := range docs[:len(docs)-1] {
		if ctx.Err() != nil {
			break
		}
		if curSize <= p.lowWatermark {
			break
		}
		if err := os.Remove(doc.path); err != nil {
			p.logger.Error("session cleanup: remove failed", ports.String("path", doc.path), ports.Err(err))
			continue
		}
		curSize -= doc.size
		freed += doc.size
		count++
	}

	if count > 0 {
		p.mu.Lock()
		p.removed += count
		p.mu.Unlock()
		p.logger.Info("session cleanup completed",
			ports.Int("removed", count),
			ports.String("freed", formatBytes(freed)),
			ports.String("size", formatBytes(curSize)),
		)
	}
}

// removeStaleTemps deletes temp files left behind by interrupted writes.
func (p *Plugin) removeStaleTemps(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json.tmp"))
	if err != nil {
		return
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || time.Since(info.ModTime()) < staleTempAge {
			continue
		}
		if err := os.Remove(m); err == nil {
			p.logger.Debug("session cleanup: removed stale temp file", ports.String("path", m))
		}
	}
}

type document struct {
	path    string
	size    int64
	modTime time.Time
}

// documentsSize is the space held by docs. Other files in the directory are
// not counted since cleanup cannot reclaim them.
func documentsSize(docs []document) int64 {
	var total int64
	for _, d := range docs {
		total += d.size
	}
	return total
}

// orderedDocuments lists the session documents in dir, oldest first.
func orderedDocuments(dir string) ([]document, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var docs []document
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		docs = append(docs, document{
			path:    filepath.Join(dir, e.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].modTime.Equal(docs[j].modTime) {
			return docs[i].modTime.Before(docs[j].modTime)
		}
		return docs[i].path < docs[j].path
	})
	return docs, nil
}

func formatBytes(b int64) string {
	const (
		_          = iota
		KB float64 = 1 << (10 * iota)
		MB
		GB
	)

	fb := float64(b)
	switch {
	case fb >= GB:
		return fmt.Sprintf("%.2fGiB", fb/GB)
	case fb >= MB:
		return fmt.Sprintf("%.2fMiB", fb/MB)
	case fb >= KB:
		return fmt.Sprintf("%.2fKiB", fb/KB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

var _ motionsync.Plugin = (*Plugin)(nil)
