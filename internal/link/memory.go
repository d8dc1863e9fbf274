package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// DeviceOptions controls how a simulated device behaves.
type DeviceOptions struct {
	// Silent devices accept commands but never answer a drain.
	Silent bool

	// FailConnects makes the first n Connect calls fail.
	FailConnects int

	// FailWrites makes every SendCommand fail with ErrWriteFailed.
	FailWrites bool

	// NoThreshold makes SubscribeThreshold fail with ErrUnsupported.
	NoThreshold bool

	// DrainDelay is waited before the queued batch is delivered.
	DrainDelay time.Duration
}

// SimDevice is one simulated sensor.
type SimDevice struct {
	id   string
	opts DeviceOptions

	mu        sync.Mutex
	connects  int
	commands  []domain.Command
	data      ports.NotificationHandler
	threshold ports.NotificationHandler
	queued    [][]byte
	wg        sync.WaitGroup
}

// ID returns the device identifier.
func (d *SimDevice) ID() string { return d.id }

// Queue sets the frames delivered on the next drain command.
func (d *SimDevice) Queue(frames ...[]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queued = append(d.queued[:0], frames...)
}

// Commands returns the commands received so far.
func (d *SimDevice) Commands() []domain.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Command(nil), d.commands...)
}

// Received reports whether cmd was received.
func (d *SimDevice) Received(cmd domain.Command) bool {
	for _, c := range d.Commands() {
		if c == cmd {
			return true
		}
	}
	return false
}

// Connects returns the number of Connect calls, including failed ones.
func (d *SimDevice) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// EmitData delivers frame on the data channel, if subscribed.
func (d *SimDevice) EmitData(frame []byte) {
	d.mu.Lock()
	h := d.data
	d.mu.Unlock()
	if h != nil {
		h(frame)
	}
}

// EmitThreshold delivers the threshold signal, if subscribed.
func (d *SimDevice) EmitThreshold() {
	d.mu.Lock()
	h := d.threshold
	d.mu.Unlock()
	if h != nil {
		h([]byte{domain.ThresholdSignal})
	}
}

// Wait blocks until pending drain deliveries are finished.
func (d *SimDevice) Wait() { d.wg.Wait() }

func (d *SimDevice) deliver() {
	d.mu.Lock()
	frames := d.queued
	d.queued = nil
	delay := d.opts.DrainDelay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	for _, f := range frames {
		d.EmitData(f)
	}
}

// Fleet is an in-memory Link over simulated devices.
type Fleet struct {
	mu      sync.Mutex
	devices map[string]*SimDevice
	bound   map[domain.SlotID]*SimDevice
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{
		devices: make(map[string]*SimDevice),
		bound:   make(map[domain.SlotID]*SimDevice),
	}
}

// Add registers a device and returns it.
func (f *Fleet) Add(id string, opts DeviceOptions) *SimDevice {
	d := &SimDevice{id: id, opts: opts}
	f.mu.Lock()
	f.devices[id] = d
	f.mu.Unlock()
	return d
}

// Device returns the device bound to slot.
func (f *Fleet) Device(slot domain.SlotID) (*SimDevice, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.bound[slot]
	return d, ok
}

// Wait blocks until every device has finished pending deliveries.
func (f *Fleet) Wait() {
	f.mu.Lock()
	devices := make([]*SimDevice, 0, len(f.devices))
	for _, d := range f.devices {
		devices = append(devices, d)
	}
	f.mu.Unlock()
	for _, d := range devices {
		d.Wait()
	}
}

// Connect binds deviceID to slot.
func (f *Fleet) Connect(ctx context.Context, slot domain.SlotID, deviceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	d, ok := f.devices[deviceID]
	f.mu.Unlock()
	if !ok {
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: device %s not found", domain.ErrConnectTimeout, deviceID)}
	}

	d.mu.Lock()
	d.connects++
	fail := d.connects <= d.opts.FailConnects
	d.mu.Unlock()
	if fail {
		return &domain.LinkError{Op: "connect", Slot: slot, Err: domain.ErrConnectTimeout}
	}

	f.mu.Lock()
	f.bound[slot] = d
	f.mu.Unlock()
	return nil
}

// SubscribeData registers h for slot's data channel.
func (f *Fleet) SubscribeData(_ context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	d, err := f.lookup("subscribe", slot)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.data = h
	d.mu.Unlock()
	return nil
}

// SubscribeThreshold registers h for slot's threshold channel.
func (f *Fleet) SubscribeThreshold(_ context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	d, err := f.lookup("subscribe", slot)
	if err != nil {
		return err
	}
	if d.opts.NoThreshold {
		return &domain.LinkError{Op: "subscribe", Slot: slot, Err: domain.ErrUnsupported}
	}
	d.mu.Lock()
	d.threshold = h
	d.mu.Unlock()
	return nil
}

// SendCommand records cmd. A drain command makes a non-silent device
// deliver its queued frames asynchronously.
func (f *Fleet) SendCommand(ctx context.Context, slot domain.SlotID, cmd domain.Command) error {
	d, err := f.lookup("command", slot)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &domain.LinkError{Op: "command", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)}
	}
	if d.opts.FailWrites {
		return &domain.LinkError{Op: "command", Slot: slot, Err: domain.ErrWriteFailed}
	}

	d.mu.Lock()
	d.commands = append(d.commands, cmd)
	d.mu.Unlock()

	if cmd == domain.CommandDrain && !d.opts.Silent {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver()
		}()
	}
	return nil
}

// Disconnect unbinds slot and drops its subscriptions.
func (f *Fleet) Disconnect(_ context.Context, slot domain.SlotID) error {
	f.mu.Lock()
	d, ok := f.bound[slot]
	delete(f.bound, slot)
	f.mu.Unlock()
	if !ok {
		return &domain.LinkError{Op: "disconnect", Slot: slot, Err: domain.ErrNotConnected}
	}
	d.mu.Lock()
	d.data = nil
	d.threshold = nil
	d.mu.Unlock()
	return nil
}

func (f *Fleet) lookup(op string, slot domain.SlotID) (*SimDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.bound[slot]
	if !ok {
		return nil, &domain.LinkError{Op: op, Slot: slot, Err: domain.ErrNotConnected}
	}
	return d, nil
}
