// Package bus provides the in-process and NATS event buses.
package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/merlin/internal/domain"
)

// MetaReplyTo carries the reply topic of a request message.
const MetaReplyTo = "reply_to"

// New creates a new event bus based on configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "", "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// Reply answers a message received through Request. Messages without a
// reply topic are ignored.
func Reply(ctx context.Context, b domain.EventBus, msg *domain.Message, payload []byte) error {
	to := msg.Metadata[MetaReplyTo]
	if to == "" {
		return nil
	}
	return b.Publish(ctx, to, payload)
}
