package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// ProducerConfig configures the event writer.
type ProducerConfig struct {
	Brokers      []string
	ClientID     string
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// DefaultProducerConfig suits a short-lived client: small batches flushed
// quickly and bounded waits on an unreachable cluster.
func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:      brokers,
		ClientID:     TopicPrefix,
		WriteTimeout: 5 * time.Second,
		DialTimeout:  2 * time.Second,
	}
}

// MessageWriter is the subset of *kafka.Writer the producer needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes events. Messages are partitioned by key, so one cart
// owner's events stay in order.
type Producer struct {
	writer  MessageWriter
	brokers []string
	dialer  *kafka.Dialer
	logger  *slog.Logger
}

// NewProducer returns a producer over a kafka-go writer. Nothing is dialed
// until the first publish or Ping.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) *Producer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: cfg.ClientID, DialTimeout: cfg.DialTimeout},
	}
	p := NewProducerWithWriter(w, cfg.Brokers, logger)
	p.dialer = &kafka.Dialer{ClientID: cfg.ClientID, Timeout: cfg.DialTimeout}
	return p
}

// NewProducerWithWriter builds a producer over an existing writer.
func NewProducerWithWriter(w MessageWriter, brokers []string, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{
		writer:  w,
		brokers: brokers,
		dialer:  kafka.DefaultDialer,
		logger:  logger.With(slog.String("component", "kafka")),
	}
}

// Publish writes event to topic, carrying the caller's trace context in the
// message headers.
func (p *Producer) Publish(ctx context.Context, topic string, event *Event) error {
	msg, err := event.message(topic)
	if err != nil {
		return err
	}
	otel.GetTextMapPropagator().Inject(ctx, NewKafkaHeaderCarrier(&msg.Headers))

	log := p.logger.With(
		slog.String("topic", topic),
		slog.String("event_type", event.Type),
		slog.String("key", event.Key),
	)

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	ProducerPublishDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		ProducerPublishErrors.WithLabelValues(topic).Inc()
		log.ErrorContext(ctx, "event not published", slog.String("error", err.Error()))
		return fmt.Errorf("publish event to %s: %w", topic, err)
	}
	ProducerMessagesPublished.WithLabelValues(topic).Inc()
	log.DebugContext(ctx, "event published")
	return nil
}

// Ping succeeds when any configured broker answers a metadata request.
func (p *Producer) Ping(ctx context.Context) error {
	return pingBrokers(ctx, p.dialer, p.brokers)
}

// PingBrokers is Ping with the default dialer.
func PingBrokers(ctx context.Context, brokers []string) error {
	return pingBrokers(ctx, kafka.DefaultDialer, brokers)
}

func pingBrokers(ctx context.Context, dialer *kafka.Dialer, brokers []string) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}

	errs := make([]error, 0, len(brokers))
	for _, addr := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = conn.Brokers()
		_ = conn.Close()
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", addr, err))
	}
	return fmt.Errorf("kafka: no broker reachable: %w", errors.Join(errs...))
}

// Close flushes pending messages and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
