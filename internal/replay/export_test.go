package replay

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/criteria"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

func TestExportedFixtureReplaysToSameState(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer db.Close()

	log, err := logging.NewEventLog(db)
	require.NoError(t, err)

	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	bus := events.NewBus(events.WithClock(clock))
	detach := log.Attach(bus)
	defer detach()

	ctx := context.Background()
	tr := newTracker(tracker.WithEmitter(bus))
	_, err = tr.AddTarget(ctx, "a", belief.Uniform(35), nil)
	require.NoError(t, err)
	_, err = tr.AddTarget(ctx, "b", belief.Uniform(55), nil)
	require.NoError(t, err)

	_, err = tr.RecordInteraction(ctx, "a", belief.QuestionAboutDoctrine, belief.Theologian)
	require.NoError(t, err)
	require.NoError(t, tr.SetFlag(ctx, "b", criteria.FlagPositiveStatement, true))
	_, err = tr.RecordInteraction(ctx, "a", belief.TokenPurchase, belief.Missionary)
	require.NoError(t, err)
	require.NoError(t, tr.SetFlag(ctx, "b", criteria.FlagPositiveStatement, false))

	entries, err := log.Query(logging.Query{})
	require.NoError(t, err)

	f, err := FixtureFromEvents("exported", entries)
	require.NoError(t, err)
	require.NoError(t, f.Validate())
	require.Len(t, f.Targets, 2)
	assert.Equal(t, "a", f.Targets[0].ID)
	assert.Len(t, f.Targets[0].Steps, 2)
	require.Len(t, f.Targets[1].Steps, 2)
	assert.False(t, f.Targets[1].Steps[1].flagValue())

	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, WriteFixture(path, f))
	loaded, err := LoadFixture(path)
	require.NoError(t, err)

	results, err := Replay(ctx, newTracker(), loaded, Options{})
	require.NoError(t, err)
	for _, r := range results {
		orig, err := tr.Get(r.TargetID)
		require.NoError(t, err)
		for d := range belief.NumDimensions {
			assert.InDelta(t, orig.State.Vector[d], r.Final.State.Vector[d], 1e-9, "%s dim %d", r.TargetID, d)
		}
		assert.Equal(t, orig.Flags, r.Final.Flags)
	}
}

func TestFixtureFromEventsSkipsUnknownTargets(t *testing.T) {
	entries := []logging.Entry{
		{ID: "1", Type: events.TypeFlagSet, TargetID: "ghost", Payload: []byte(`{"flag":"x","value":true}`)},
		{ID: "2", Type: events.TypeSystemError, Payload: []byte(`{"error":"boom"}`)},
	}
	f, err := FixtureFromEvents("", entries)
	require.NoError(t, err)
	assert.Empty(t, f.Targets)

	_, err = FixtureFromEvents("", []logging.Entry{{ID: "3", Type: events.TypeTargetAdded, TargetID: "a", Payload: []byte(`{"initialBeliefs":{"faith":1}}`)}})
	assert.Error(t, err)
}
