package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

func TestEmitOrder(t *testing.T) {
	b := NewBus()
	var order []string
	b.Register(TypeStageTransition, func(ctx context.Context, e Event) error {
		order = append(order, "type")
		return nil
	})
	b.Register(Wildcard, func(ctx context.Context, e Event) error {
		order = append(order, "wildcard")
		return nil
	})
	b.Subscribe(func(e Event) { order = append(order, "subscriber") })

	e := b.Publish(context.Background(), "t1", StageTransition{From: belief.Unaware, To: belief.Aware})

	assert.Equal(t, []string{"type", "wildcard", "subscriber"}, order)
	assert.Equal(t, TypeStageTransition, e.Type)
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	b := NewBus(WithLogger(zap.New(core)))

	var after, sysErrors int
	b.Register(TypeMessage, func(ctx context.Context, e Event) error { return errors.New("boom") })
	b.Register(TypeMessage, func(ctx context.Context, e Event) error { panic("worse") })
	b.Register(TypeMessage, func(ctx context.Context, e Event) error {
		after++
		return nil
	})
	b.Register(TypeSystemError, func(ctx context.Context, e Event) error {
		sysErrors++
		return errors.New("system handler also fails")
	})
	b.Subscribe(func(e Event) { panic("subscriber") })

	b.Publish(context.Background(), "t1", Message{Content: "hi"})

	assert.Equal(t, 1, after)
	assert.Equal(t, 2, sysErrors, "each failing type handler raises one system error")
	assert.GreaterOrEqual(t, logs.FilterMessage("handler failed").Len(), 3)
	assert.Len(t, b.Log(Query{Type: TypeSystemError}), 2)
}

func TestUnregisterAndUnsubscribe(t *testing.T) {
	b := NewBus()
	var calls int
	id := b.Register(TypeFlagSet, func(ctx context.Context, e Event) error {
		calls++
		return nil
	})
	cancel := b.Subscribe(func(e Event) { calls++ })

	require.True(t, b.Unregister(TypeFlagSet, id))
	require.False(t, b.Unregister(TypeFlagSet, id))
	cancel()

	b.Publish(context.Background(), "t1", FlagSet{Flag: "x", Value: true})
	assert.Zero(t, calls)
}

func TestEmitAsyncRunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBus()
	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	var done int32
	for i := 0; i < 3; i++ {
		b.Register(TypeDecayApplied, func(ctx context.Context, e Event) error {
			started.Done()
			<-release
			atomic.AddInt32(&done, 1)
			return errors.New("ignored")
		})
	}

	go func() {
		started.Wait()
		close(release)
	}()

	b.EmitAsync(context.Background(), Event{Payload: DecayApplied{Days: 1, TargetCount: 2}})
	assert.Equal(t, int32(3), atomic.LoadInt32(&done))
	assert.Len(t, b.Log(Query{Type: TypeDecayApplied}), 1)
}

func TestLogHalvesOnOverflow(t *testing.T) {
	b := NewBus(WithMaxLog(10))
	for i := 0; i < 11; i++ {
		b.Publish(context.Background(), "t", FlagSet{Flag: "f"})
	}
	assert.Len(t, b.Log(Query{}), 5)
	b.Publish(context.Background(), "t", FlagSet{Flag: "f"})
	assert.Len(t, b.Log(Query{}), 6)
}

func TestLogQuery(t *testing.T) {
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewBus(WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	ctx := context.Background()
	b.Publish(ctx, "a", FlagSet{Flag: "1"})
	mid := b.Publish(ctx, "b", FlagSet{Flag: "2"})
	b.Publish(ctx, "a", TargetAdded{})
	b.Publish(ctx, "a", FlagSet{Flag: "3"})

	assert.Len(t, b.Log(Query{TargetID: "a"}), 3)
	assert.Len(t, b.Log(Query{Type: TypeFlagSet}), 3)
	assert.Len(t, b.Log(Query{Since: mid.Timestamp}), 3)

	last := b.Log(Query{Type: TypeFlagSet, Limit: 1})
	require.Len(t, last, 1)
	assert.Equal(t, "3", last[0].Payload.(FlagSet).Flag)

	st := b.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.ByType[TypeFlagSet])
	assert.Len(t, st.RecentActivity, 4)

	b.ClearLog()
	assert.Empty(t, b.Log(Query{}))
}
