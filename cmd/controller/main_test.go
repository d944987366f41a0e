package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/config"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/generator"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
)

// useConfig points the package globals at a fresh database for one test.
func useConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.DefaultConfig()
	c.Database = filepath.Join(t.TempDir(), "state.db")
	require.NoError(t, c.Validate())

	prevCfg, prevLogger := cfg, logger
	cfg, logger = c, zaptest.NewLogger(t)
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })
	return c
}

func testApp(t *testing.T) *app {
	t.Helper()
	a, err := openApp(cfg, logger, generator.NewMock())
	require.NoError(t, err)
	return a
}

func outputCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	cmd.SetContext(context.Background())
	return cmd, &buf
}

func seedSimulation(t *testing.T, targets int) {
	t.Helper()
	a := testApp(t)
	sums, err := simulate(context.Background(), a, simPlan(7, targets, 3, "sim"), 2)
	require.NoError(t, err)
	require.Len(t, sums, targets)
	require.NoError(t, a.persist())
	require.NoError(t, a.close())
}

func TestSimPlanIsDeterministic(t *testing.T) {
	a := simPlan(42, 5, 4, "p")
	b := simPlan(42, 5, 4, "p")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, simPlan(43, 5, 4, "p"))

	assert.Equal(t, "p-004", a[4].targetID)
	for _, sc := range a {
		assert.Len(t, sc.messages, 4)
		for _, v := range sc.initial {
			assert.GreaterOrEqual(t, v, 5.0)
			assert.Less(t, v, 60.0)
		}
	}
}

func TestSimulatePersistsAcrossRestarts(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
	useConfig(t)

	a := testApp(t)
	sums, err := simulate(context.Background(), a, simPlan(1, 6, 3, "sim"), 3)
	require.NoError(t, err)
	require.Len(t, sums, 6)
	for i, s := range sums {
		assert.Equal(t, simPlan(1, 6, 3, "sim")[i].targetID, s.TargetID)
		assert.NotEmpty(t, s.ConversationID)
		assert.Positive(t, s.MessageCount)
	}
	assert.NotEmpty(t, a.loop.Metrics())
	require.NoError(t, a.persist())
	require.NoError(t, a.close())

	again := testApp(t)
	defer again.close()
	assert.Equal(t, 6, again.tracker.Len())

	added, err := again.events.Query(logging.Query{Type: events.TypeTargetAdded})
	require.NoError(t, err)
	assert.Len(t, added, 6)

	snaps, err := again.store.ListSnapshots(10)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestChatSession(t *testing.T) {
	useConfig(t)
	a := testApp(t)
	defer a.close()

	var out bytes.Buffer
	s := &chatSession{app: a, out: &out, target: "chat-user", initial: belief.Uniform(20)}
	in := strings.NewReader(strings.Join([]string{
		"hello, who are you?",
		"",
		"/state",
		"/flag publicAcknowledgment",
		"/flag tokenInvestment maybe",
		"/pause",
		"/resume",
		"/bogus",
		"/end",
		"/end",
		"quit",
		"never read",
	}, "\n"))
	require.NoError(t, s.run(context.Background(), in))

	text := out.String()
	assert.Contains(t, text, "strategy=")
	assert.Contains(t, text, "status none")
	assert.Contains(t, text, "flag publicAcknowledgment=true")
	assert.Contains(t, text, `bad value "maybe"`)
	assert.Contains(t, text, "unknown command /bogus")
	assert.Contains(t, text, "conversation ")
	assert.Contains(t, text, "no open conversation")

	tgt, err := a.tracker.Get("chat-user")
	require.NoError(t, err)
	assert.True(t, tgt.Flags["publicAcknowledgment"])
	_, open := a.loop.State("chat-user")
	assert.False(t, open)
}

func TestReportCommand(t *testing.T) {
	useConfig(t)
	seedSimulation(t, 3)

	cmd, out := outputCmd()
	require.NoError(t, runReport(cmd, nil))
	assert.Contains(t, out.String(), "Targets: 3")
	assert.Contains(t, out.String(), "Stages:")
	assert.Contains(t, out.String(), "Events logged:")

	reportJSON = true
	t.Cleanup(func() { reportJSON = false })
	cmd, out = outputCmd()
	require.NoError(t, runReport(cmd, nil))
	assert.Contains(t, out.String(), `"totalTargets": 3`)
}

func TestInspectCommand(t *testing.T) {
	useConfig(t)
	seedSimulation(t, 2)

	cmd, out := outputCmd()
	require.NoError(t, runInspect(cmd, []string{"sim-001"}))
	text := out.String()
	assert.Contains(t, text, "Target sim-001")
	assert.Contains(t, text, "Beliefs:")
	assert.Contains(t, text, "Criteria:")
	assert.Contains(t, text, "Recent events:")

	cmd, out = outputCmd()
	require.NoError(t, runInspect(cmd, nil))
	assert.Contains(t, out.String(), "sim-000")
	assert.Contains(t, out.String(), "sim-001")

	cmd, _ = outputCmd()
	assert.Error(t, runInspect(cmd, []string{"nobody"}))

	inspectStage = "nonsense"
	t.Cleanup(func() { inspectStage = "" })
	cmd, _ = outputCmd()
	assert.Error(t, runInspect(cmd, nil))
}

func TestReplayCommand(t *testing.T) {
	useConfig(t)

	replaySave = true
	t.Cleanup(func() { replaySave = false })
	cmd, out := outputCmd()
	require.NoError(t, runReplay(cmd, []string{filepath.Join("..", "..", "internal", "replay", "testdata", "funnel.json")}))
	assert.Contains(t, out.String(), "3 targets")
	assert.NotContains(t, out.String(), "MISMATCH")

	s, err := store.Open(cfg.Database, nil)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestReplayExportRoundTrip(t *testing.T) {
	useConfig(t)
	seedSimulation(t, 2)

	path := filepath.Join(t.TempDir(), "exported.json")
	cmd, out := outputCmd()
	require.NoError(t, runReplayExport(cmd, []string{path}))
	assert.Contains(t, out.String(), "wrote 2 targets")

	// replaying into a fresh tracker must not trip any expectation
	cmd, _ = outputCmd()
	require.NoError(t, runReplay(cmd, []string{path}))
}

func TestSnapshotRestore(t *testing.T) {
	useConfig(t)
	seedSimulation(t, 1)

	s, err := store.Open(cfg.Database, nil)
	require.NoError(t, err)
	first, err := s.ActiveSnapshot()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	a := testApp(t)
	_, err = simulate(context.Background(), a, simPlan(9, 3, 2, "more"), 1)
	require.NoError(t, err)
	require.NoError(t, a.persist())
	require.NoError(t, a.close())

	cmd, out := outputCmd()
	require.NoError(t, runSnapshotList(cmd, nil))
	assert.Equal(t, 2, strings.Count(out.String(), "targets"))
	assert.Contains(t, out.String(), first.ID)

	cmd, out = outputCmd()
	require.NoError(t, runSnapshotRestore(cmd, []string{first.ID}))
	assert.Contains(t, out.String(), "restored 1 targets")

	s, err = store.Open(cfg.Database, nil)
	require.NoError(t, err)
	defer s.Close()
	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	cmd, _ = outputCmd()
	assert.Error(t, runSnapshotRestore(cmd, []string{"missing"}))
}

func TestNewGeneratorKinds(t *testing.T) {
	cfg := config.DefaultConfig()
	gen, closeGen, err := newGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &generator.Mock{}, gen)
	assert.Nil(t, closeGen)

	cfg.Generator.Kind = config.GeneratorGRPC
	cfg.Generator.Addr = "localhost:50051"
	gen, closeGen, err = newGenerator(cfg)
	require.NoError(t, err)
	assert.IsType(t, &generator.GRPCClient{}, gen)
	require.NoError(t, closeGen())

	cfg.Generator.Kind = config.GeneratorGRPCStream
	gen, closeGen, err = newGenerator(cfg)
	require.NoError(t, err)
	sg, ok := gen.(generator.StreamGenerator)
	require.True(t, ok)
	assert.IsType(t, &generator.GRPCClient{}, sg.Streamer)
	require.NoError(t, closeGen())
}
