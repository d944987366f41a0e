package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/criteria"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTracker() *tracker.Tracker {
	return tracker.New(belief.NewModel(nil), tracker.WithClock(func() time.Time { return epoch }))
}

func add(t *testing.T, tr *tracker.Tracker, id string, v float64, meta map[string]any) *tracker.Target {
	t.Helper()
	tgt, err := tr.AddTarget(context.Background(), id, belief.Uniform(v), meta)
	require.NoError(t, err)
	return tgt
}

func TestPutGetRoundTrip(t *testing.T) {
	s := tempDB(t)
	tr := newTracker()
	ctx := context.Background()

	add(t, tr, "t1", 40, map[string]any{"archetype": "seeker", "source": "forum"})
	_, err := tr.RecordInteraction(ctx, "t1", belief.TokenPurchase, belief.Theologian)
	require.NoError(t, err)
	require.NoError(t, tr.SetFlag(ctx, "t1", criteria.FlagPositiveStatement, true))

	want, err := tr.Get("t1")
	require.NoError(t, err)
	require.NoError(t, s.Put(want))

	got, err := s.Get("t1")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}

	// second put replaces in place
	require.NoError(t, tr.SetFlag(ctx, "t1", criteria.FlagFinancialCommitment, true))
	again, _ := tr.Get("t1")
	require.NoError(t, s.Put(again))
	got, err = s.Get("t1")
	require.NoError(t, err)
	assert.True(t, got.Flags[criteria.FlagFinancialCommitment])

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetAndDeleteMissing(t *testing.T) {
	s := tempDB(t)
	_, err := s.Get("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete("nobody"), ErrNotFound)

	tr := newTracker()
	require.NoError(t, s.Put(add(t, tr, "t1", 10, nil)))
	require.NoError(t, s.Delete("t1"))
	_, err = s.Get("t1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	tr := newTracker()
	targets := []*tracker.Target{
		add(t, tr, "cold", 10, nil),
		add(t, tr, "warm", 50, map[string]any{"archetype": "seeker"}),
		add(t, tr, "hot", 70, map[string]any{"archetype": "seeker"}),
	}
	done := add(t, tr, "done", 90, nil)
	done.Status = tracker.StatusConverted
	done.ConvertedAt = epoch
	targets = append(targets, done)
	require.NoError(t, s.PutAll(targets))
}

func ids(targets []*tracker.Target) []string {
	out := make([]string, len(targets))
	for i, t := range targets {
		out[i] = t.ID
	}
	return out
}

func TestQueries(t *testing.T) {
	s := tempDB(t)
	seed(t, s)

	prospects, err := s.HotProspects(10)
	require.NoError(t, err)
	require.Len(t, prospects, 3)
	assert.Equal(t, "hot", prospects[0].Target.ID)
	assert.InDelta(t, 70, prospects[0].Composite, 1e-9)
	assert.Equal(t, belief.Convinced, prospects[0].Stage)
	assert.Equal(t, "cold", prospects[2].Target.ID)

	top, err := s.HotProspects(1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	sym, err := s.ByStage(belief.Sympathetic)
	require.NoError(t, err)
	assert.Equal(t, []string{"warm"}, ids(sym))

	seekers, err := s.ByArchetype("seeker")
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "warm"}, ids(seekers))

	lo, hi := 40.0, 80.0
	mid, err := s.Search(Query{MinComposite: &lo, MaxComposite: &hi})
	require.NoError(t, err)
	assert.Equal(t, []string{"hot", "warm"}, ids(mid))

	conv, err := s.Search(Query{Status: tracker.StatusConverted})
	require.NoError(t, err)
	assert.Equal(t, []string{"done"}, ids(conv))
	assert.Equal(t, epoch, conv[0].ConvertedAt)

	limited, err := s.Search(Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"done", "hot"}, ids(limited))
}

func TestStats(t *testing.T) {
	s := tempDB(t)
	st, err := s.Stats()
	require.NoError(t, err)
	assert.Zero(t, st.Total)
	assert.Zero(t, st.AverageComposite)

	seed(t, s)
	st, err = s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.ByStatus[tracker.StatusNone])
	assert.Equal(t, 1, st.ByStatus[tracker.StatusConverted])
	assert.Equal(t, 0, st.ByStatus[tracker.StatusPartial])
	assert.Equal(t, 1, st.ByStage["BELIEVER"])
	assert.InDelta(t, 55, st.AverageComposite, 1e-9)

	recs, err := s.Export()
	require.NoError(t, err)
	assert.Len(t, recs, 4)
	assert.Equal(t, "cold", recs[0].ID)
}

func TestSaveAndLoadTracker(t *testing.T) {
	s := tempDB(t)
	tr := newTracker()
	add(t, tr, "a", 20, nil)
	add(t, tr, "b", 60, nil)
	require.NoError(t, s.SaveTracker(tr))

	fresh := newTracker()
	n, err := s.LoadTracker(fresh)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, fresh.Len())

	b, err := fresh.Get("b")
	require.NoError(t, err)
	assert.Equal(t, belief.Uniform(60), b.State.Vector)
}

func TestReplaceAll(t *testing.T) {
	s := tempDB(t)
	seed(t, s)

	tr := newTracker()
	require.NoError(t, s.ReplaceAll([]*tracker.Target{add(t, tr, "fresh", 30, nil)}))

	all, err := s.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids(all))
}

func TestSnapshotChainAndRollback(t *testing.T) {
	s := tempDB(t)
	_, err := s.ActiveSnapshot()
	assert.ErrorIs(t, err, ErrNotFound)

	tr := newTracker()
	add(t, tr, "a", 20, nil)
	first, err := s.CommitSnapshot(tr.Export())
	require.NoError(t, err)
	assert.Empty(t, first.ParentID)
	assert.Equal(t, 1, first.TargetCount)

	add(t, tr, "b", 30, nil)
	second, err := s.CommitSnapshot(tr.Export())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ParentID)

	active, err := s.ActiveSnapshot()
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Len(t, active.Snapshot.Targets, 2)

	require.NoError(t, s.Rollback(first.ID))
	fresh := newTracker()
	rec, err := s.RestoreActive(fresh)
	require.NoError(t, err)
	assert.Equal(t, first.ID, rec.ID)
	assert.Equal(t, 1, fresh.Len())

	assert.ErrorIs(t, s.Rollback("missing"), ErrNotFound)
	_, err = s.Snapshot("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := s.ListSnapshots(10)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
