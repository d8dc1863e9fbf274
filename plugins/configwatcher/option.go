package configwatcher

import "github.com/extropian/motionsync/pkg/motionsync"

// WithConfigWatcher returns a recorder Option that reloads protocol timing
// whenever the config file changes.
//
// Usage:
//
//	rec, err := motionsync.New(link, sink, cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) motionsync.Option {
	return motionsync.WithPlugin(New(cfg))
}

// WithDefaultConfigWatcher enables config watching with a 100ms debounce.
func WithDefaultConfigWatcher() motionsync.Option {
	return WithConfigWatcher(DefaultConfig())
}
