package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
)

var at = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func expectEvent(want events.Type, key string) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "audit" {
			return fmt.Errorf("topic %q", msg.Topic)
		}
		if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != string(want) {
			return fmt.Errorf("headers %v", msg.Headers)
		}
		if key == "" && msg.Key != nil {
			return fmt.Errorf("unexpected key")
		}
		if key != "" {
			k, err := msg.Key.Encode()
			if err != nil || string(k) != key {
				return fmt.Errorf("key %q", k)
			}
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return err
		}
		if body["type"] != string(want) {
			return fmt.Errorf("body type %v", body["type"])
		}
		return nil
	}
}

func TestSendKeysByTarget(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectEvent(events.TypeFlagSet, "t1"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectEvent(events.TypeSystemError, ""))

	s := NewSinkWithProducer(producer, "audit")
	require.NoError(t, s.Send(events.Event{ID: "e1", Type: events.TypeFlagSet, TargetID: "t1", Payload: events.FlagSet{Flag: "x"}, Timestamp: at}))
	require.NoError(t, s.Send(events.Event{ID: "e2", Type: events.TypeSystemError, Payload: events.SystemError{Error: "boom"}, Timestamp: at}))

	sent, failed := s.Counts()
	assert.Equal(t, 2, sent)
	assert.Zero(t, failed)
	require.NoError(t, s.Close())
}

func TestSendFailureIsCounted(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	broker := errors.New("broker down")
	producer.ExpectSendMessageAndFail(broker)

	s := NewSinkWithProducer(producer, "")
	assert.Equal(t, DefaultTopic, s.topic)

	err := s.Send(events.Event{ID: "e1", Type: events.TypeConversion, TargetID: "t1"})
	assert.ErrorIs(t, err, broker)
	_, failed := s.Counts()
	assert.Equal(t, 1, failed)
	require.NoError(t, s.Close())
}

func TestTypeFilterSkipsOthers(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectEvent(events.TypeConversion, "t1"))

	s := NewSinkWithProducer(producer, "audit", WithTypes(events.TypeConversion))
	require.NoError(t, s.Send(events.Event{ID: "skip", Type: events.TypeFlagSet, TargetID: "t1"}))
	require.NoError(t, s.Send(events.Event{ID: "keep", Type: events.TypeConversion, TargetID: "t1"}))

	sent, _ := s.Counts()
	assert.Equal(t, 1, sent)
	require.NoError(t, s.Close())
}

func TestAttachForwardsAndLogsFailures(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectEvent(events.TypeTargetAdded, "t1"))
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	core, logs := observer.New(zap.WarnLevel)
	s := NewSinkWithProducer(producer, "audit", WithLogger(zap.New(core)))

	bus := events.NewBus()
	detach := s.Attach(bus)
	ctx := context.Background()
	bus.Publish(ctx, "t1", events.TargetAdded{Initial: belief.Uniform(10)})
	bus.Publish(ctx, "t1", events.FlagSet{Flag: "x"})
	detach()
	bus.Publish(ctx, "t1", events.FlagSet{Flag: "after detach"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit", entry.LoggerName)
	assert.Equal(t, "audit forward failed", entry.Message)
	require.NoError(t, s.Close())
}

func TestNilLoggerOption(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()

	s := NewSinkWithProducer(producer, "audit", WithLogger(nil))
	require.NoError(t, s.Send(events.Event{ID: "e1", Type: events.TypeFlagSet, TargetID: "t1", Timestamp: at}))
	sent, failed := s.Counts()
	assert.Equal(t, 1, sent)
	assert.Zero(t, failed)
	require.NoError(t, s.Close())
}

func TestHandlerFailureBecomesSystemError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	s := NewSinkWithProducer(producer, "audit")
	bus := events.NewBus()
	bus.Register(events.TypeConversion, s.Handler())
	bus.Register(events.TypeSystemError, s.Handler())

	bus.Publish(context.Background(), "t1", events.Conversion{})
	assert.Len(t, bus.Log(events.Query{Type: events.TypeSystemError}), 1)
	require.NoError(t, s.Close())
}
