package motionsync

import "context"

// Plugin extends a Recorder. Initialize is called from Start in registration
// order; a failing Initialize aborts the start. Shutdown is called from Stop
// in reverse order and its error is only logged.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// Tuner adjusts a running recorder.
type Tuner interface {
	Timing() Timing
	SetTiming(Timing)
}

// PluginConfig is handed to plugins on initialization.
type PluginConfig struct {
	// ConfigPath is the configuration file the recorder was built from, if any.
	ConfigPath string
	// SessionDir is the directory sessions are written to, if file backed.
	SessionDir string
	Logger     Logger
	Tuner      Tuner
}

// BasePlugin provides no-op Initialize and Shutdown.
type BasePlugin struct {
	PluginName string
}

func (b BasePlugin) Name() string                                 { return b.PluginName }
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }
func (BasePlugin) Shutdown(context.Context) error                 { return nil }
