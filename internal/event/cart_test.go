package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/cart"
	"github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/logger"
)

type memoryWriter struct {
	mu   sync.Mutex
	msgs []kafkago.Message
	err  error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

func TestTopic(t *testing.T) {
	assert.Equal(t, "storefront.cart.item-added", Topic(cart.EventItemAdded))
	assert.Equal(t, "storefront.cart.cleared", Topic(cart.EventCleared))
}

func TestCartPublisher_WritesEnvelope(t *testing.T) {
	w := &memoryWriter{}
	producer := kafka.NewProducerWithWriter(w, nil, logger.Discard())
	pub := NewCartPublisher(producer, func(context.Context) string { return "u1" })

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	err := pub.Publish(ctx, cart.Event{Type: cart.EventItemAdded, Mode: cart.ModeAuthenticated, ItemID: "soup", Quantity: 2})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "storefront.cart.item-added", msg.Topic)
	assert.Equal(t, "u1", string(msg.Key))

	ev, err := kafka.Decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "cart.item_added", ev.Type)
	assert.Equal(t, Source, ev.Source)
	assert.Equal(t, "corr-1", ev.CorrelationID)
	assert.Equal(t, "authenticated", ev.Attributes["mode"])

	var data CartData
	require.NoError(t, ev.DecodePayload(&data))
	assert.Equal(t, CartData{Mode: "authenticated", ItemID: "soup", Quantity: 2}, data)
}

func TestCartPublisher_GuestKey(t *testing.T) {
	w := &memoryWriter{}
	pub := NewCartPublisher(kafka.NewProducerWithWriter(w, nil, logger.Discard()), nil)

	require.NoError(t, pub.Publish(context.Background(), cart.Event{Type: cart.EventCleared, Mode: cart.ModeGuest}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "guest", string(w.msgs[0].Key))
}

func TestCartPublisher_PropagatesWriteError(t *testing.T) {
	w := &memoryWriter{err: errors.New("no brokers")}
	pub := NewCartPublisher(kafka.NewProducerWithWriter(w, nil, logger.Discard()), nil)

	err := pub.Publish(context.Background(), cart.Event{Type: cart.EventItemRemoved, Mode: cart.ModeGuest, ItemID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers")
}
