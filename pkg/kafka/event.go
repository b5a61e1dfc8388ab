package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// TopicPrefix namespaces every topic the storefront client publishes to.
const TopicPrefix = "storefront"

// SchemaVersion is the envelope version stamped on new events.
const SchemaVersion = 1

// Topic returns TopicPrefix.domain.action, e.g. "storefront.cart.item-added".
func Topic(domain, action string) string {
	return TopicPrefix + "." + domain + "." + action
}

// Event is the envelope of an analytics message. Key partitions the message;
// for cart events it is the cart owner.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Key           string            `json:"key"`
	Source        string            `json:"source"`
	SchemaVersion int               `json:"schema_version"`
	OccurredAt    time.Time         `json:"occurred_at"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Payload       json.RawMessage   `json:"payload"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// EventOption sets an optional envelope field.
type EventOption func(*Event)

// WithCorrelationID ties the event to the request that caused it. An empty
// id is ignored.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) {
		if id != "" {
			e.CorrelationID = id
		}
	}
}

// WithAttribute adds a free-form string attribute.
func WithAttribute(key, value string) EventOption {
	return func(e *Event) {
		if e.Attributes == nil {
			e.Attributes = make(map[string]string)
		}
		e.Attributes[key] = value
	}
}

// WithOccurredAt overrides the event time, which defaults to now.
func WithOccurredAt(t time.Time) EventOption {
	return func(e *Event) { e.OccurredAt = t.UTC() }
}

// NewEvent builds an envelope around payload with a fresh id.
func NewEvent(eventType, key, source string, payload any, opts ...EventOption) (*Event, error) {
	if eventType == "" {
		return nil, errors.New("event type is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	e := &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Key:           key,
		Source:        source,
		SchemaVersion: SchemaVersion,
		OccurredAt:    time.Now().UTC(),
		Payload:       raw,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decode parses a message value. Envelopes without id or type are rejected.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.Type == "" {
		return nil, errors.New("decode event: missing id or type")
	}
	return &e, nil
}

// DecodePayload unmarshals the payload into v.
func (e *Event) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// message renders the event as a kafka message on topic. Type, source and
// correlation id are duplicated into headers so consumers can route
// without decoding the value.
func (e *Event) message(topic string) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte(e.Type)},
		{Key: "source", Value: []byte(e.Source)},
	}
	if e.CorrelationID != "" {
		headers = append(headers, kafka.Header{Key: "correlation_id", Value: []byte(e.CorrelationID)})
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(e.Key),
		Value:   value,
		Headers: headers,
		Time:    e.OccurredAt,
	}, nil
}
