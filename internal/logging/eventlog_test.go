package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func event(id string, typ events.Type, target string, at time.Time, p events.Payload) events.Event {
	return events.Event{ID: id, Type: typ, TargetID: target, Timestamp: at, Payload: p}
}

func TestLogBuffersUntilFull(t *testing.T) {
	l, err := NewEventLog(openDB(t), WithBufferSize(3))
	require.NoError(t, err)

	for i, id := range []string{"e1", "e2"} {
		require.NoError(t, l.Log(event(id, events.TypeFlagSet, "t1", base.Add(time.Duration(i)*time.Second), events.FlagSet{Flag: "x", Value: true})))
	}
	assert.Equal(t, 2, l.Buffered())

	var stored int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&stored))
	assert.Zero(t, stored)

	require.NoError(t, l.Log(event("e3", events.TypeFlagSet, "t1", base.Add(2*time.Second), nil)))
	assert.Zero(t, l.Buffered())
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&stored))
	assert.Equal(t, 3, stored)
}

func TestQueryFiltersNewestFirst(t *testing.T) {
	l, err := NewEventLog(openDB(t))
	require.NoError(t, err)

	require.NoError(t, l.Log(event("a", events.TypeTargetAdded, "t1", base, events.TargetAdded{Initial: belief.Uniform(20)})))
	require.NoError(t, l.Log(event("b", events.TypeFlagSet, "t1", base.Add(time.Minute), events.FlagSet{Flag: "publicAcknowledgment", Value: true})))
	require.NoError(t, l.Log(event("c", events.TypeFlagSet, "t2", base.Add(2*time.Minute), events.FlagSet{Flag: "tokenInvestment"})))
	require.NoError(t, l.Log(event("d", events.TypeSystemError, "", base.Add(3*time.Minute), events.SystemError{Error: "boom"})))

	all, err := l.Query(Query{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []string{"d", "c", "b", "a"}, entryIDs(all))
	assert.Empty(t, all[0].TargetID)
	assert.Equal(t, base.Add(3*time.Minute), all[0].Timestamp)

	flags, err := l.Query(Query{Type: events.TypeFlagSet})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, entryIDs(flags))

	var fs events.FlagSet
	require.NoError(t, json.Unmarshal(flags[1].Payload, &fs))
	assert.Equal(t, events.FlagSet{Flag: "publicAcknowledgment", Value: true}, fs)

	t1, err := l.Query(Query{TargetID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, entryIDs(t1))

	window, err := l.Query(Query{Since: base.Add(time.Minute), Until: base.Add(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, entryIDs(window))

	page, err := l.Query(Query{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, entryIDs(page))

	tail, err := l.Query(Query{Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, entryIDs(tail))
}

func TestStatsAndTimeline(t *testing.T) {
	l, err := NewEventLog(openDB(t))
	require.NoError(t, err)

	require.NoError(t, l.Log(event("a", events.TypeFlagSet, "t1", base, nil)))
	require.NoError(t, l.Log(event("b", events.TypeFlagSet, "t1", base.Add(10*time.Minute), nil)))
	require.NoError(t, l.Log(event("c", events.TypeTargetAdded, "t2", base.Add(70*time.Minute), nil)))

	st, err := l.Stats(Query{})
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByType[events.TypeFlagSet])
	assert.Equal(t, 1, st.ByTarget["t2"])
	assert.Equal(t, base, st.Earliest)
	assert.Equal(t, base.Add(70*time.Minute), st.Latest)

	buckets, err := l.Timeline("", base, time.Hour)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, base, buckets[0].Start)
	assert.Equal(t, 2, buckets[0].Count)
	assert.Equal(t, 1, buckets[1].Types[events.TypeTargetAdded])

	only, err := l.Timeline("t2", base, time.Hour)
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, base.Add(time.Hour), only[0].Start)

	_, err = l.Timeline("", base, 0)
	assert.Error(t, err)
	_, err = l.Timeline("", base, 500*time.Microsecond)
	assert.Error(t, err)

	fine, err := l.Timeline("t1", base, time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, fine, 2)
}

func TestNilLoggerOptionKeepsDefault(t *testing.T) {
	l, err := NewEventLog(openDB(t), WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, l.logger)
	require.NoError(t, l.Log(event("a", events.TypeFlagSet, "t1", base, nil)))
	require.NoError(t, l.Flush())
}

func TestPrune(t *testing.T) {
	l, err := NewEventLog(openDB(t))
	require.NoError(t, err)

	require.NoError(t, l.Log(event("old", events.TypeFlagSet, "t1", base.Add(-48*time.Hour), nil)))
	require.NoError(t, l.Log(event("new", events.TypeFlagSet, "t1", base, nil)))

	n, err := l.Prune(base.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	left, err := l.Query(Query{})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, entryIDs(left))
}

func TestAttachRecordsBusEvents(t *testing.T) {
	l, err := NewEventLog(openDB(t))
	require.NoError(t, err)

	bus := events.NewBus(events.WithClock(func() time.Time { return base }))
	detach := l.Attach(bus)

	ctx := context.Background()
	bus.Publish(ctx, "t1", events.FlagSet{Flag: "positiveStatement", Value: true})
	bus.Publish(ctx, "t1", events.TargetAdded{Initial: belief.Uniform(10)})
	detach()
	bus.Publish(ctx, "t1", events.FlagSet{Flag: "ignored"})

	got, err := l.Query(Query{TargetID: "t1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeTargetAdded, got[0].Type)
	assert.Contains(t, got[0].ID, "evt_")
}

func TestStartFlushesPeriodicallyAndCloseDrains(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	core, logs := observer.New(zap.WarnLevel)
	l, err := NewEventLog(openDB(t), WithFlushInterval(10*time.Millisecond), WithLogger(zap.New(core)))
	require.NoError(t, err)
	l.Start()

	require.NoError(t, l.Log(event("tick", events.TypeFlagSet, "t1", base, nil)))
	assert.Eventually(t, func() bool { return l.Buffered() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, l.Log(event("late", events.TypeFlagSet, "t1", base.Add(time.Second), nil)))
	require.NoError(t, l.Close())
	assert.Zero(t, l.Buffered())
	assert.Zero(t, logs.Len())

	// Close is idempotent
	require.NoError(t, l.Close())

	var stored int
	require.NoError(t, l.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&stored))
	assert.Equal(t, 2, stored)
}

func TestFlushFailureKeepsEntries(t *testing.T) {
	db := openDB(t)
	l, err := NewEventLog(db)
	require.NoError(t, err)

	require.NoError(t, l.Log(event("a", events.TypeFlagSet, "t1", base, nil)))
	_, err = db.Exec(`DROP TABLE event_log`)
	require.NoError(t, err)

	assert.Error(t, l.Flush())
	assert.Equal(t, 1, l.Buffered())

	_, err = db.Exec(eventSchema)
	require.NoError(t, err)
	require.NoError(t, l.Flush())
	assert.Zero(t, l.Buffered())
}

func TestNewLogger(t *testing.T) {
	lg, err := New("debug", false)
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zap.DebugLevel))

	lg, err = New("", true)
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zap.DebugLevel))

	_, err = New("loud", false)
	assert.Error(t, err)
}

func entryIDs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
