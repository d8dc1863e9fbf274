// Package mqtt implements the device link over an MQTT broker. A BLE gateway
// bridges each device onto three topics under <prefix>/<deviceID>:
// "data" and "threshold" carry notifications, "command" carries control
// bytes towards the device. Connection requests go to "link".
package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/extropian/motionsync/internal/domain"
	"github.com/extropian/motionsync/internal/ports"
)

// Client is the subset of mqtt.Client used by Link.
type Client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Config configures the broker connection.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte

	// ConnectTimeout bounds the initial broker connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns local broker defaults.
func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		ClientID:       "motionsync",
		TopicPrefix:    "motionsync/devices",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
	}
}

// Link implements ports.Link over MQTT.
type Link struct {
	client Client
	prefix string
	qos    byte
	logger ports.Logger

	mu    sync.Mutex
	slots map[domain.SlotID]string
}

// NewLink creates a link on an already connected client.
func NewLink(client Client, prefix string, qos byte, logger ports.Logger) *Link {
	return &Link{
		client: client,
		prefix: prefix,
		qos:    qos,
		logger: logger,
		slots:  make(map[domain.SlotID]string),
	}
}

// Dial connects to the broker described by cfg and returns a link plus the
// underlying client, which the caller disconnects when done.
func Dial(ctx context.Context, cfg Config, logger ports.Logger) (*Link, mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	logger.Info("connected to broker", ports.String("broker", cfg.Broker))
	return NewLink(client, cfg.TopicPrefix, cfg.QoS, logger), client, nil
}

// Topic returns the topic for one of a device's channels.
func (l *Link) Topic(deviceID, channel string) string {
	return l.prefix + "/" + deviceID + "/" + channel
}

// Connect asks the gateway to connect deviceID and binds it to slot.
func (l *Link) Connect(ctx context.Context, slot domain.SlotID, deviceID string) error {
	if !l.client.IsConnectionOpen() {
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: broker connection closed", domain.ErrConnectTimeout)}
	}
	if err := wait(ctx, l.client.Publish(l.Topic(deviceID, "link"), l.qos, false, []byte("connect"))); err != nil {
		return &domain.LinkError{Op: "connect", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrConnectTimeout, err)}
	}

	l.mu.Lock()
	l.slots[slot] = deviceID
	l.mu.Unlock()
	return nil
}

// SubscribeData subscribes h to the device's data topic.
func (l *Link) SubscribeData(ctx context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	return l.subscribe(ctx, slot, "data", h)
}

// SubscribeThreshold subscribes h to the device's threshold topic.
func (l *Link) SubscribeThreshold(ctx context.Context, slot domain.SlotID, h ports.NotificationHandler) error {
	return l.subscribe(ctx, slot, "threshold", h)
}

func (l *Link) subscribe(ctx context.Context, slot domain.SlotID, channel string, h ports.NotificationHandler) error {
	deviceID, err := l.device("subscribe", slot)
	if err != nil {
		return err
	}
	topic := l.Topic(deviceID, channel)
	token := l.client.Subscribe(topic, l.qos, func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Payload())
	})
	if err := wait(ctx, token); err != nil {
		return &domain.LinkError{Op: "subscribe", Slot: slot, Err: fmt.Errorf("%w: %s: %v", domain.ErrUnsupported, topic, err)}
	}
	l.logger.Debug("subscribed", ports.Stringer("slot", slot), ports.String("topic", topic))
	return nil
}

// SendCommand publishes cmd on the device's command topic.
func (l *Link) SendCommand(ctx context.Context, slot domain.SlotID, cmd domain.Command) error {
	deviceID, err := l.device("command", slot)
	if err != nil {
		return err
	}
	if err := wait(ctx, l.client.Publish(l.Topic(deviceID, "command"), l.qos, false, cmd.Bytes())); err != nil {
		return &domain.LinkError{Op: "command", Slot: slot, Err: fmt.Errorf("%w: %v", domain.ErrWriteFailed, err)}
	}
	return nil
}

// Disconnect unsubscribes the device's topics and asks the gateway to drop it.
func (l *Link) Disconnect(ctx context.Context, slot domain.SlotID) error {
	deviceID, err := l.device("disconnect", slot)
	if err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.slots, slot)
	l.mu.Unlock()

	if err := wait(ctx, l.client.Unsubscribe(l.Topic(deviceID, "data"), l.Topic(deviceID, "threshold"))); err != nil {
		l.logger.Warn("unsubscribe failed", ports.Stringer("slot", slot), ports.Err(err))
	}
	if err := wait(ctx, l.client.Publish(l.Topic(deviceID, "link"), l.qos, false, []byte("disconnect"))); err != nil {
		return &domain.LinkError{Op: "disconnect", Slot: slot, Err: err}
	}
	return nil
}

func (l *Link) device(op string, slot domain.SlotID) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.slots[slot]
	if !ok {
		return "", &domain.LinkError{Op: op, Slot: slot, Err: domain.ErrNotConnected}
	}
	return id, nil
}

// wait blocks until token completes or ctx is done.
func wait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
