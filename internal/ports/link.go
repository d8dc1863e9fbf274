package ports

import (
	"context"

	"github.com/extropian/motionsync/internal/domain"
)

// NotificationHandler receives the payload of one device notification.
// Handlers are invoked on the transport's delivery goroutine and must return
// quickly; the bytes may be reused by the transport after return.
type NotificationHandler func(data []byte)

// Link is the capability surface the coordinator uses to drive devices.
// Implementations hide connection establishment, channel discovery and MTU
// negotiation. The coordinator only ever sees slots and opaque device ids.
//
// No ordering is guaranteed between the data and threshold channels of the
// same device.
type Link interface {
	// Connect establishes the link for deviceID and binds it to slot.
	// Retry policy belongs to the implementation (see link.Retrying).
	Connect(ctx context.Context, slot domain.SlotID, deviceID string) error

	// SubscribeData registers the handler for data-channel frames.
	SubscribeData(ctx context.Context, slot domain.SlotID, h NotificationHandler) error

	// SubscribeThreshold registers the handler for threshold-channel signals.
	SubscribeThreshold(ctx context.Context, slot domain.SlotID, h NotificationHandler) error

	// SendCommand writes one control byte to the slot's command channel.
	SendCommand(ctx context.Context, slot domain.SlotID, cmd domain.Command) error

	// Disconnect drops subscriptions and the connection for slot.
	Disconnect(ctx context.Context, slot domain.SlotID) error
}
