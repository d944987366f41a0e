// Package audit forwards bus events to a Kafka topic so downstream systems
// can follow conversations and conversions outside the process.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/events"
)

// DefaultTopic receives every forwarded event unless configured otherwise.
const DefaultTopic = "persuasion.events"

// #region sink
// Sink publishes events synchronously, keyed by target id so one target's
// events stay ordered within a partition.
type Sink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	types    map[events.Type]bool

	mu     sync.Mutex
	sent   int
	failed int
}

// Option configures a Sink.
type Option func(*Sink)

// WithLogger reports send failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.logger = l.Named("audit")
		}
	}
}

// WithTypes limits forwarding to the listed event types.
func WithTypes(types ...events.Type) Option {
	return func(s *Sink) {
		s.types = make(map[events.Type]bool, len(types))
		for _, t := range types {
			s.types[t] = true
		}
	}
}

// NewSink dials brokers and returns a sink writing to topic.
func NewSink(brokers []string, topic string, opts ...Option) (*Sink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewSinkWithProducer(producer, topic, opts...), nil
}

// NewSinkWithProducer wraps an existing producer. An empty topic means
// DefaultTopic.
func NewSinkWithProducer(p sarama.SyncProducer, topic string, opts ...Option) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	s := &Sink{producer: p, topic: topic, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// #endregion sink

// #region send
// Send writes one event. Events filtered out by WithTypes are skipped
// without error.
func (s *Sink) Send(e events.Event) error {
	if s.types != nil && !s.types[e.Type] {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
	}
	if e.TargetID != "" {
		msg.Key = sarama.StringEncoder(e.TargetID)
	}

	partition, offset, err := s.producer.SendMessage(msg)
	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.sent++
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", e.ID, err)
	}

	s.logger.Debug("event forwarded",
		zap.String("type", string(e.Type)),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Handler adapts the sink to a bus handler; send failures surface as
// system errors on the bus.
func (s *Sink) Handler() events.Handler {
	return func(_ context.Context, e events.Event) error {
		return s.Send(e)
	}
}

// Attach forwards every bus event until the returned function is called.
// Failures are logged, never returned to the publisher.
func (s *Sink) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(func(e events.Event) {
		if err := s.Send(e); err != nil {
			s.logger.Warn("audit forward failed", zap.String("event", e.ID), zap.Error(err))
		}
	})
}

// Counts reports how many sends succeeded and failed.
func (s *Sink) Counts() (sent, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.failed
}

// Close closes the producer.
func (s *Sink) Close() error {
	return s.producer.Close()
}

// #endregion send
