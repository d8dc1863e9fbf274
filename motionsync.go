// Package motionsync records synchronized multi-device IMU sessions.
//
// Example usage:
//
//	fleet := motionsync.NewSimulatedFleet()
//	rec, err := motionsync.New(fleet, motionsync.NewFileSink("sessions"), motionsync.Config{
//	    Devices:     devices,
//	    AutoCapture: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rec.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	<-rec.Done()
//	_ = rec.Stop()
//
// The full API lives in github.com/extropian/motionsync/pkg/motionsync.
package motionsync

import (
	"github.com/extropian/motionsync/internal/adapters/fs"
	"github.com/extropian/motionsync/internal/link"
	recorder "github.com/extropian/motionsync/pkg/motionsync"
)

// Recorder captures synchronized sessions.
type Recorder = recorder.Recorder

// Config holds recorder configuration.
type Config = recorder.Config

// Assignment binds a device to a body slot.
type Assignment = recorder.Assignment

// Option configures optional recorder behavior.
type Option = recorder.Option

// New creates a Recorder over link and sink.
func New(l recorder.Link, sink recorder.SessionSink, cfg Config, opts ...Option) (*Recorder, error) {
	return recorder.New(l, sink, cfg, opts...)
}

// NewFileSink returns a sink writing one JSON document per session to dir.
func NewFileSink(dir string) recorder.SessionSink {
	return fs.NewSessionFileSink(dir)
}

// NewSimulatedFleet returns an in-memory link for demos and tests. Devices
// are added with Add and emit frames built by link.SyntheticFrames.
func NewSimulatedFleet() *link.Fleet {
	return link.NewFleet()
}
