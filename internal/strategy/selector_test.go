package strategy

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// skeptic scores 0.5 on both technical_skeptic and community_oriented and
// sits in INTERESTED with composite 37.5.
func skeptic() belief.State {
	return belief.NewState(belief.Vector{20, 50, 20, 50, 70, 40}, epoch)
}

func newSelector() *Selector {
	return NewSelector(belief.NewModel(nil), nil)
}

func ids(scores []StrategyScore) []ID {
	var out []ID
	for _, s := range scores {
		out = append(out, s.Strategy.ID)
	}
	return out
}

func personas(scores []AgentScore) []belief.Persona {
	var out []belief.Persona
	for _, s := range scores {
		out = append(out, s.Persona)
	}
	return out
}

func TestIdentifyArchetypeTieGoesToFirst(t *testing.T) {
	m := newSelector().IdentifyArchetype(skeptic().Vector)
	require.NotNil(t, m)
	assert.Equal(t, "technical_skeptic", m.Archetype.ID)
	assert.InDelta(t, 0.5, m.Score, 1e-9)
}

func TestIdentifyArchetypeNoneWithEmptyTable(t *testing.T) {
	s := NewSelector(belief.NewModel(nil), &Tables{Strategies: Default().Strategies, Playbooks: Default().Playbooks})
	assert.Nil(t, s.IdentifyArchetype(skeptic().Vector))

	rec := s.Recommend("t1", skeptic())
	assert.Equal(t, "Unknown", rec.ArchetypeName)
	assert.Equal(t, "No clear archetype identified", rec.ArchetypeDescription)
}

func TestSelectStrategyScores(t *testing.T) {
	r := newSelector().SelectStrategy(skeptic(), StrategyOptions{})
	assert.Equal(t, belief.Interested, r.Stage)
	require.Len(t, r.Ranked, 6)
	assert.Equal(t, []ID{Authority, Logical, Emotional, SocialProof, Scriptural, Financial}, ids(r.Ranked))

	want := map[ID]float64{
		Authority:   0.86,
		Logical:     0.84,
		Emotional:   0.51,
		SocialProof: 0.44,
		Scriptural:  0.33,
		Financial:   0.30,
	}
	for _, sc := range r.Ranked {
		assert.InDelta(t, want[sc.Strategy.ID], sc.Score, 1e-9, sc.Strategy.ID)
	}

	top, ok := r.Recommended()
	require.True(t, ok)
	assert.True(t, top.ArchetypeMatch)
	assert.True(t, top.TargetsWeakness)
	assert.False(t, top.InPlaybook)
	assert.Equal(t, []ID{Logical, Emotional}, ids(r.Alternatives()))
}

func TestSelectStrategyPreferredAndExclude(t *testing.T) {
	s := newSelector()

	r := s.SelectStrategy(skeptic(), StrategyOptions{Preferred: Logical})
	top, _ := r.Recommended()
	assert.Equal(t, Logical, top.Strategy.ID)
	assert.InDelta(t, 0.99, top.Score, 1e-9)

	r = s.SelectStrategy(skeptic(), StrategyOptions{Exclude: []ID{Authority, Logical}})
	top, _ = r.Recommended()
	assert.Equal(t, Emotional, top.Strategy.ID)
	assert.Len(t, r.Ranked, 4)

	r = s.SelectStrategy(skeptic(), StrategyOptions{Exclude: []ID{Authority, Emotional, SocialProof, Logical, Financial, Scriptural}})
	_, ok := r.Recommended()
	assert.False(t, ok)
	assert.Nil(t, r.Alternatives())
}

func TestSelectAgentUsesWeakestDimension(t *testing.T) {
	r := newSelector().SelectAgent(skeptic(), AgentOptions{})
	assert.Equal(t, belief.Belief, r.Dimension)
	assert.Equal(t,
		[]belief.Persona{belief.Missionary, belief.Theologian, belief.Prophet, belief.Archivist, belief.Observer},
		personas(r.Ranked))

	want := map[belief.Persona]float64{
		belief.Missionary: 0.60,
		belief.Theologian: 0.585,
		belief.Prophet:    0.505,
		belief.Archivist:  0.315,
		belief.Observer:   0.175,
	}
	for _, sc := range r.Ranked {
		assert.InDelta(t, want[sc.Persona], sc.Score, 1e-9, sc.Persona)
	}
	avoid, ok := r.Avoid()
	require.True(t, ok)
	assert.Equal(t, belief.Observer, avoid.Persona)
}

func TestSelectAgentStrategyAndRecency(t *testing.T) {
	s := newSelector()

	r := s.SelectAgent(skeptic(), AgentOptions{Strategy: Logical})
	top, _ := r.Recommended()
	assert.Equal(t, belief.Theologian, top.Persona)
	assert.True(t, top.StrategyPrimary)
	assert.InDelta(t, 0.735, top.Score, 1e-9)
	avoid, _ := r.Avoid()
	assert.Equal(t, belief.Archivist, avoid.Persona)

	recent := []belief.Persona{belief.Theologian, belief.Theologian, belief.Theologian, belief.Theologian}
	r = s.SelectAgent(skeptic(), AgentOptions{Strategy: Logical, Recent: recent})
	top, _ = r.Recommended()
	assert.Equal(t, belief.Missionary, top.Persona)
	assert.Equal(t, 4, r.Ranked[1].RecentUses)

	r = s.SelectAgent(skeptic(), AgentOptions{Exclude: []belief.Persona{belief.Missionary}})
	top, _ = r.Recommended()
	assert.Equal(t, belief.Theologian, top.Persona)
	assert.Len(t, r.Ranked, 4)
}

func TestRecommend(t *testing.T) {
	s := newSelector()
	rec := s.Recommend("t1", skeptic())

	assert.Equal(t, "t1", rec.TargetID)
	assert.Equal(t, belief.Interested, rec.Stage)
	assert.InDelta(t, 37.5, rec.Composite, 1e-9)
	assert.Equal(t, "Technical Skeptic", rec.ArchetypeName)
	assert.Equal(t, Authority, rec.Strategy)
	assert.Equal(t, "Authority Appeal", rec.StrategyName)
	assert.InDelta(t, 0.86, rec.Confidence, 1e-9)
	assert.Equal(t, []ID{Logical, Emotional}, rec.AlternativeStrategy)
	assert.Equal(t, belief.Theologian, rec.Persona)
	assert.Equal(t, []belief.Persona{belief.Prophet, belief.Missionary}, rec.AlternativePersonas)
	assert.Equal(t, belief.Observer, rec.AvoidPersona)
	assert.Equal(t, belief.Interested, rec.Playbook.Stage)
	assert.Equal(t, belief.Missionary, rec.Playbook.PrimaryPersona)
	require.Len(t, rec.Weaknesses, 2)
	assert.Equal(t, belief.Belief, rec.Weaknesses[0].Dimension)
}

func TestRecommendPenalizesRememberedPersonas(t *testing.T) {
	s := newSelector()
	for i := 0; i < 4; i++ {
		s.RecordInteraction("t1", belief.Theologian)
	}
	// theologian 0.735 - 0.2 falls under prophet at 0.655
	rec := s.Recommend("t1", skeptic())
	assert.Equal(t, belief.Prophet, rec.Persona)

	other := s.Recommend("t2", skeptic())
	assert.Equal(t, belief.Theologian, other.Persona)
}

func TestRecordInteractionWindow(t *testing.T) {
	s := newSelector()
	all := []belief.Persona{belief.Prophet, belief.Theologian, belief.Missionary, belief.Archivist, belief.Observer}
	for i := 0; i < 12; i++ {
		s.RecordInteraction("t1", all[i%len(all)])
	}
	got := s.Recent("t1")
	require.Len(t, got, DefaultMemory)
	assert.Equal(t, belief.Missionary, got[0])
	assert.Equal(t, belief.Theologian, got[len(got)-1])

	got[0] = belief.Observer
	assert.Equal(t, belief.Missionary, s.Recent("t1")[0])

	s.Forget("t1")
	assert.Empty(t, s.Recent("t1"))
}

func TestRecordInteractionConcurrent(t *testing.T) {
	s := newSelector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.RecordInteraction("t1", belief.Missionary)
				_ = s.Recent("t1")
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Recent("t1"), DefaultMemory)
}

func TestPlaybooksCoverEveryStage(t *testing.T) {
	tbl := Default()
	for _, st := range belief.Stages {
		pb := tbl.Playbooks[st]
		assert.Equal(t, st, pb.Stage)
		assert.NotEmpty(t, pb.Objective, st)
		assert.NotEmpty(t, pb.Tactics, st)
		for _, id := range pb.Strategies {
			_, ok := tbl.Strategy(id)
			assert.True(t, ok, "%s references %s", st, id)
		}
	}
}
