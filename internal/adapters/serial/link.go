// Package serial implements the device link over a USB BLE gateway dongle
// that multiplexes up to four devices on one serial port.
package serial

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	bugserial "go.bug.st/serial"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// PortOptions describes the serial connection parameters.
type PortOptions struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
}

// Mode converts the options into a go.bug.st/serial Mode, applying defaults
// (115200 8N1).
func (o PortOptions) Mode() (*bugserial.Mode, error) {
	mode := &bugserial.Mode{BaudRate: o.BaudRate, DataBits: o.DataBits}
	if mode.BaudRate <= 0 {
		mode.BaudRate = 115200
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: must be between 5 and 8", mode.DataBits)
	}

	switch o.StopBits {
	case 0, 1:
		mode.StopBits = bugserial.OneStopBit
	case 2:
		mode.StopBits = bugserial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", o.StopBits)
	}

	switch strings.ToUpper(strings.TrimSpace(o.Parity)) {
	case "", "N", "NONE":
		mode.Parity = bugserial.NoParity
	case "E", "EVEN":
		mode.Parity = bugserial.EvenParity
	case "O", "ODD":
		mode.Parity = bugserial.OddParity
	default:
		return nil, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	return mode, nil
}

// Open opens the gateway on the serial port at path.
func Open(path string, opts PortOptions, logger ports.Logger) (*Link, error) {
	mode, err := opts.Mode()
	if err != nil {
		return nil, err
	}
	port, err := bugserial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger.Info("gateway port opened", ports.String("port", path), ports.Int("baud", mode.BaudRate))
	return NewLink(port, logger), nil
}

// Link implements ports.Link over the gateway protocol.
type Link struct {
	rw     io.ReadWriteCloser
	logger ports.Logger

	wmu sync.Mutex

	mu        sync.Mutex
	bound     map[domain.SlotID]string
	data      map[domain.SlotID]ports.NotificationHandler
	threshold map[domain.SlotID]ports.NotificationHandler
	acks      map[domain.SlotID]chan byte

	done chan struct{}
}

// NewLink starts reading gateway frames from rw.
func NewLink(rw io.ReadWriteCloser, logger ports.Logger) *Link {
	l := &Link{
		rw:        rw,
		logger:    logger,
		bound:     make(map[domain.SlotID]string),
		data:      make(map[domain.SlotID]ports.NotificationHandler),
		threshold: make(map[domain.SlotID]ports.NotificationHandler),
		acks:      make(map[domain.SlotID]chan byte),
		done:      make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Close closes the port and waits for the reader to stop.
func (l *Link) Close() error {
	err := l.rw.Close()
	<-l.done
	return err
}

func (l *Link) readLoop() {
	defer close(l.done)
	r := bufio.NewReader(l.rw)
	for {
		f, err := readFrame(r)
		if errors.Is(err, errChecksum) {
			l.logger.Warn("dropping corrupt gateway frame")
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				l.logger.Debug("gateway reader stopped", ports.Err(err))
			}
			return
		}
		l.dispatch(f)
	}
}

func (l *Link) dispatch(f frame) {
	l.mu.Lock()
	var h ports.NotificationHandler
	switch f.channel {
	case ChannelData:
		h = l.data[f.slot]
	case ChannelThreshold:
		h = l.threshold[f.slot]
	case ChannelAck:
		ack := l.acks[f.slot]
		l.mu.Unlock()
		if ack != nil && len(f.payload) == 2 && Channel(f.payload[0]) == ChannelConnect {
			select {
			case ack <- f.payload[1]:
			default:
			}
		}
		return
	}
	l.mu.Unlock()

	if h != nil {
		h(f.payload)
	}
}

func (l *Link) write(f frame) error {
	buf, err := encodeFrame(f)
	if err != nil {
		return err
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_, err = l.rw.Write(buf)
	return err
}

// Connect asks the gateway to connect deviceID on slot and waits for its
// acknowledgement.
func (l *Link) Connect(ctx context.Context, slot domain.SlotID, deviceID string) error {
	ack := make(chan byte, 1)
	l.mu.Lock()
	l.acks[slot] = ack
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.acks, slot)
		l.mu.Unlock()
	}()

	if err := l.write(frame{slot: slot, channel: ChannelConnect, payload: []byte(deviceID)}); err != nil {
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)}
	}

	select {
	case status := <-ack:
		switch status {
		case StatusOK:
		case StatusUnsupported:
			return &domain.LinkError{Op: "connect", Slot: slot, Err: domain.ErrUnsupported}
		default:
			return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: gateway status %d", domain.ErrConnectTimeout, status)}
		}
	case <-ctx.Done():
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrConnectTimeout, ctx.Err())}
	case <-l.done:
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: gateway closed", domain.ErrConnectTimeout)}
	}

	l.mu.Lock()
	l.bound[slot] = deviceID
	l.mu.Unlock()
	return nil
}

// SubscribeData registers h for data frames of slot.
func (l *Link) SubscribeData(_ context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bound[slot]; !ok {
		return &domain.LinkError{Op: "subscribe", Slot: slot, Err: domain.ErrNotConnected}
	}
	l.data[slot] = h
	return nil
}

// SubscribeThreshold registers h for threshold frames of slot.
func (l *Link) SubscribeThreshold(_ context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bound[slot]; !ok {
		return &domain.LinkError{Op: "subscribe", Slot: slot, Err: domain.ErrNotConnected}
	}
	l.threshold[slot] = h
	return nil
}

// SendCommand writes one control byte for slot.
func (l *Link) SendCommand(ctx context.Context, slot domain.SlotID, cmd domain.Command) error {
	if !l.isBound(slot) {
		return &domain.LinkError{Op: "command", Slot: slot, Err: domain.ErrNotConnected}
	}
	if err := ctx.Err(); err != nil {
		return &domain.LinkError{Op: "command", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)}
	}
	if err := l.write(frame{slot: slot, channel: ChannelCommand, payload: cmd.Bytes()}); err != nil {
		return &domain.LinkError{Op: "command", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)}
	}
	return nil
}

// Disconnect drops handlers for slot and tells the gateway to release it.
func (l *Link) Disconnect(_ context.Context, slot domain.SlotID) error {
	l.mu.Lock()
	_, ok := l.bound[slot]
	delete(l.bound, slot)
	delete(l.data, slot)
	delete(l.threshold, slot)
	l.mu.Unlock()
	if !ok {
		return &domain.LinkError{Op: "disconnect", Slot: slot, Err: domain.ErrNotConnected}
	}
	if err := l.write(frame{slot: slot, channel: ChannelDisconnect}); err != nil {
		return &domain.LinkError{Op: "disconnect", Slot: slot, Err: err}
	}
	return nil
}

func (l *Link) isBound(slot domain.SlotID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.bound[slot]
	return ok
}
