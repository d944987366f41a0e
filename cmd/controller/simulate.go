package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/debate"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var (
	simTargets     int
	simTurns       int
	simSeed        uint64
	simConcurrency int
	simPrefix      string
	simReportEvery time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Drive synthetic targets through scripted conversations",
	Long: `Creates synthetic targets with random starting beliefs and runs each
through a conversation of inbound messages drawn from a fixed pool. The
same seed always produces the same targets and messages.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simTargets, "targets", "n", 10, "Number of synthetic targets")
	simulateCmd.Flags().IntVar(&simTurns, "turns", 6, "Inbound messages per conversation")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 1, "Random seed")
	simulateCmd.Flags().IntVar(&simConcurrency, "concurrency", 4, "Conversations run at once")
	simulateCmd.Flags().StringVar(&simPrefix, "prefix", "sim", "Target id prefix")
	simulateCmd.Flags().DurationVar(&simReportEvery, "report-every", 0, "Log a registry report at this period while running (0 disables)")
}

// inbound messages a synthetic target may send; none of them ends a
// conversation.
var simMessages = []string{
	"Tell me more about the sacred ledger",
	"Is this just a scam?",
	"This sounds like a cult to me",
	"How does it actually work under the hood?",
	"I have been struggling with finding meaning lately",
	"How can I buy the token?",
	"Are there community events I could join?",
	"That makes sense, good point",
	"What if I lose money on this?",
	"I already use bitcoin, why not just stick with it?",
	"I shared your post with a friend",
	"What about my privacy and data?",
}

// #region simulate
func runSimulate(cmd *cobra.Command, args []string) error {
	if simTargets <= 0 || simTurns <= 0 {
		return fmt.Errorf("targets and turns must be positive")
	}
	a, err := openApp(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close()

	if simReportEvery > 0 {
		err := a.sched.StartReportingJob(a.tracker, simReportEvery, func(_ context.Context, r tracker.Report) {
			a.logger.Info("simulation progress",
				zap.Int("targets", r.Summary.TotalTargets),
				zap.Int("converted", r.Summary.Converted),
				zap.Float64("averageComposite", r.Summary.AverageComposite))
		})
		if err != nil {
			return err
		}
	}

	summaries, err := simulate(cmd.Context(), a, simPlan(simSeed, simTargets, simTurns, simPrefix), simConcurrency)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range summaries {
		printSummary(out, s)
	}
	rep := a.tracker.Report()
	fmt.Fprintf(out, "\n%d targets, %d converted, %d partial, average composite %.1f\n",
		rep.Summary.TotalTargets, rep.Summary.Converted, rep.Summary.PartialConverted, rep.Summary.AverageComposite)
	metrics := a.loop.Metrics()
	for _, persona := range a.model.Tables().Personas {
		m, ok := metrics[persona]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "  %-10s %4d messages, %5d tokens, avg latency %s, %d failures\n",
			persona, m.Messages, m.Tokens, m.AverageLatency.Round(time.Microsecond), m.Failures)
	}
	return a.persist()
}

type simScript struct {
	targetID string
	initial  belief.Vector
	messages []string
}

// simPlan derives every target and message from seed so runs are
// reproducible regardless of scheduling.
func simPlan(seed uint64, targets, turns int, prefix string) []simScript {
	plan := make([]simScript, targets)
	for i := range plan {
		rng := rand.New(rand.NewPCG(seed, uint64(i)))
		var v belief.Vector
		for d := range v {
			v[d] = 5 + rng.Float64()*55
		}
		msgs := make([]string, turns)
		for j := range msgs {
			msgs[j] = simMessages[rng.IntN(len(simMessages))]
		}
		plan[i] = simScript{targetID: fmt.Sprintf("%s-%03d", prefix, i), initial: v, messages: msgs}
	}
	return plan
}

func simulate(ctx context.Context, a *app, plan []simScript, concurrency int) ([]*debate.Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		mu        sync.Mutex
		summaries []*debate.Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for _, sc := range plan {
		g.Go(func() error {
			sum, err := converse(ctx, a, sc)
			if err != nil {
				return err
			}
			mu.Lock()
			summaries = append(summaries, sum)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].TargetID < summaries[j].TargetID })
	return summaries, nil
}

func converse(ctx context.Context, a *app, sc simScript) (*debate.Summary, error) {
	for i, msg := range sc.messages {
		turnCtx, cancel := context.WithTimeout(ctx, a.cfg.GeneratorTimeout())
		var err error
		if i == 0 {
			_, err = a.loop.Start(turnCtx, sc.targetID, msg, debate.StartOptions{
				Initial:  sc.initial,
				Metadata: map[string]any{"source": "simulation"},
			})
		} else {
			_, err = a.loop.Continue(turnCtx, sc.targetID, msg)
		}
		cancel()
		if err != nil {
			return nil, fmt.Errorf("simulate %s turn %d: %w", sc.targetID, i, err)
		}
	}
	sum := a.loop.End(ctx, sc.targetID)
	if sum == nil {
		return nil, fmt.Errorf("simulate %s: conversation closed early", sc.targetID)
	}
	return sum, nil
}

// #endregion simulate
