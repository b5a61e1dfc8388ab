// Package event publishes cart analytics to Kafka.
package event

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

// Source identifies this client in event envelopes.
const Source = "storefront-cli"

const aggregateType = "cart"

// Producer is satisfied by *kafka.Producer.
type Producer interface {
	Publish(ctx context.Context, topic string, event *kafka.Event) error
}

// CartData is the payload of every cart event.
type CartData struct {
	Mode     string `json:"mode"`
	ItemID   string `json:"item_id,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// CartPublisher turns cart events into Kafka envelopes on
// storefront.cart.<action> topics.
type CartPublisher struct {
	producer Producer
	identity func(ctx context.Context) string
}

var _ cart.Publisher = (*CartPublisher)(nil)

// NewCartPublisher returns a publisher over producer. identity names the
// cart owner used as the message key; nil keys every event as "guest".
func NewCartPublisher(producer Producer, identity func(ctx context.Context) string) *CartPublisher {
	return &CartPublisher{producer: producer, identity: identity}
}

// Topic is the topic a cart event type is published to.
func Topic(t cart.EventType) string {
	return kafka.Topic(aggregateType, strings.ReplaceAll(string(t), "_", "-"))
}

func (p *CartPublisher) Publish(ctx context.Context, ev cart.Event) error {
	owner := "guest"
	if p.identity != nil {
		if id := p.identity(ctx); id != "" {
			owner = id
		}
	}

	envelope, err := kafka.NewEvent(aggregateType+"."+string(ev.Type), owner, Source,
		CartData{Mode: string(ev.Mode), ItemID: ev.ItemID, Quantity: ev.Quantity},
		kafka.WithCorrelationID(logger.CorrelationIDFromContext(ctx)),
		kafka.WithAttribute("mode", string(ev.Mode)),
	)
	if err != nil {
		return fmt.Errorf("build cart event: %w", err)
	}

	return p.producer.Publish(ctx, Topic(ev.Type), envelope)
}
