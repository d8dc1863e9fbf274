package sessioncleanup

import "github.com/extropian/motionsync/pkg/motionsync"

// WithSessionCleanup returns an Option that enables session retention for
// the recorder's session directory (Config.SessionDir).
//
// Usage:
//
//	rec, err := motionsync.New(link, sink, cfg,
//	    sessioncleanup.WithSessionCleanup(sessioncleanup.Config{
//	        HighWatermark: 256 << 20,
//	    }),
//	)
func WithSessionCleanup(cfg Config) motionsync.Option {
	return motionsync.WithPlugin(New(cfg))
}

// WithDefaultSessionCleanup enables session retention with default settings
// (check hourly, high watermark 512MiB, low watermark 384MiB).
func WithDefaultSessionCleanup() motionsync.Option {
	return WithSessionCleanup(DefaultConfig())
}
