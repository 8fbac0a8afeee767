package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/cuemby/hazardfeed/pkg/events"
	"github.com/cuemby/hazardfeed/pkg/log"
	"github.com/cuemby/hazardfeed/pkg/metrics"
)

const (
	// DefaultMaxBatch caps how many buffered events go into one write
	DefaultMaxBatch = 32

	defaultWriteTimeout = 10 * time.Second
)

// Subscriber is the part of the broker the mirror consumes
type Subscriber interface {
	Subscribe() *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

// MessageWriter is satisfied by *kafka.Writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaMirror copies every broker event to a Kafka topic for downstream
// consumers. It is an ordinary subscriber: if it falls behind, the broker's
// overflow policy applies to it like to any other.
type KafkaMirror struct {
	broker       Subscriber
	writer       MessageWriter
	maxBatch     int
	writeTimeout time.Duration
	logger       zerolog.Logger
}

// NewKafkaWriter creates a producer for topic on brokers
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
}

// NewKafkaMirror creates a mirror writing broker events through writer
func NewKafkaMirror(broker Subscriber, writer MessageWriter) *KafkaMirror {
	return &KafkaMirror{
		broker:       broker,
		writer:       writer,
		maxBatch:     DefaultMaxBatch,
		writeTimeout: defaultWriteTimeout,
		logger:       log.WithComponent("mirror"),
	}
}

// Run mirrors events until ctx is done or the broker closes the
// subscription. Failed writes are logged and counted; the events in them
// are not retried beyond the writer's own attempts.
func (m *KafkaMirror) Run(ctx context.Context) error {
	sub := m.broker.Subscribe()
	defer m.broker.Unsubscribe(sub)

	metrics.RegisterComponent(metrics.ComponentMirror, true, "")
	m.logger.Info().Str("subscriber_id", sub.ID).Msg("event mirror started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					metrics.UpdateComponent(metrics.ComponentMirror, false, err.Error())
					return err
				}
				return nil
			}
			m.write(ctx, m.drain(sub, ev))
		}
	}
}

// drain collects ev plus whatever is already buffered, up to maxBatch
func (m *KafkaMirror) drain(sub *events.Subscription, ev *events.Event) []*events.Event {
	batch := []*events.Event{ev}
	for len(batch) < m.maxBatch {
		select {
		case next, ok := <-sub.C:
			if !ok {
				return batch
			}
			batch = append(batch, next)
		default:
			return batch
		}
	}
	return batch
}

func (m *KafkaMirror) write(ctx context.Context, batch []*events.Event) {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, ev := range batch {
		msg, err := serializeToMessage(ev)
		if err != nil {
			m.logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to serialize event")
			metrics.MirrorMessages.WithLabelValues("failed").Inc()
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()

	if err := m.writer.WriteMessages(ctx, msgs...); err != nil {
		m.logger.Error().Err(err).Int("events", len(msgs)).Msg("failed to mirror events")
		metrics.UpdateComponent(metrics.ComponentMirror, false, err.Error())
		metrics.MirrorMessages.WithLabelValues("failed").Add(float64(len(msgs)))
		return
	}

	metrics.MirrorMessages.WithLabelValues("written").Add(float64(len(msgs)))
	metrics.UpdateComponent(metrics.ComponentMirror, true, "")
}

// Close closes the underlying writer
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}

// serializeToMessage maps an event onto a Kafka message. The wire event
// becomes the value, keyed by event id.
func serializeToMessage(ev *events.Event) (kafkago.Message, error) {
	if ev.ID == "" {
		return kafkago.Message{}, fmt.Errorf("event has no id")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s event: %w", ev.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(ev.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
			{Key: "published_at", Value: []byte(ev.Timestamp.Format(time.RFC3339Nano))},
		},
	}, nil
}
