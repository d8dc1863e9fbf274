// Package buffer accumulates raw frames per device slot and parses them in
// batches.
package buffer

import (
	"sync"

	"github.com/extropian/motionsync/internal/codec"
	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Device is the packet accumulator for one slot. It is safe for concurrent
// use: transport callbacks push while the coordinator polls and drains.
type Device struct {
	mu       sync.Mutex
	slot     domain.SlotID
	expected int
	raw      [][]byte
	samples  []domain.SensorSample
	logger   ports.Logger
}

// NewDevice creates a buffer that reports ready once expected packets are
// buffered. A non-positive expected falls back to domain.ExpectedPacketCount.
func NewDevice(slot domain.SlotID, expected int, logger ports.Logger) *Device {
	if expected <= 0 {
		expected = domain.ExpectedPacketCount
	}
	return &Device{
		slot:     slot,
		expected: expected,
		raw:      make([][]byte, 0, expected),
		logger:   logger,
	}
}

// Push appends a copy of packet in arrival order and returns the number of
// buffered packets. Length is not checked here; bad frames are dropped at
// parse time so that readiness counts every delivery.
func (d *Device) Push(packet []byte) int {
	p := make([]byte, len(packet))
	copy(p, packet)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = append(d.raw, p)
	return len(d.raw)
}

// Len returns the number of buffered raw packets.
func (d *Device) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.raw)
}

// IsReady reports whether a full batch is buffered.
func (d *Device) IsReady() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.raw) >= d.expected
}

// DrainAndParse decodes every buffered packet in arrival order, clears the
// raw buffer and replaces the parsed samples with the result. A packet that
// fails to decode is skipped with a warning; the rest of the batch is kept.
func (d *Device) DrainAndParse() []domain.SensorSample {
	d.mu.Lock()
	raw := d.raw
	d.raw = make([][]byte, 0, d.expected)
	d.mu.Unlock()

	samples := make([]domain.SensorSample, 0, len(raw)*domain.SamplesPerPacket)
	skipped := 0
	for i, p := range raw {
		s, err := codec.Decode(p)
		if err != nil {
			skipped++
			d.logger.Warn("dropping malformed packet",
				ports.Stringer("slot", d.slot),
				ports.Int("index", i),
				ports.Int("bytes", len(p)),
				ports.Err(err),
			)
			continue
		}
		samples = append(samples, s...)
	}

	d.logger.Debug("parsed batch",
		ports.Stringer("slot", d.slot),
		ports.Int("packets", len(raw)),
		ports.Int("skipped", skipped),
		ports.Int("samples", len(samples)),
	)

	d.mu.Lock()
	d.samples = samples
	d.mu.Unlock()

	out := make([]domain.SensorSample, len(samples))
	copy(out, samples)
	return out
}

// Samples returns a copy of the most recently parsed batch.
func (d *Device) Samples() []domain.SensorSample {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.SensorSample, len(d.samples))
	copy(out, d.samples)
	return out
}

// Reset clears raw packets and parsed samples.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = make([][]byte, 0, d.expected)
	d.samples = nil
}
