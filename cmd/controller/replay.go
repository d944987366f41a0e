package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/replay"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var (
	replayConcurrency int
	replaySave        bool
	exportTarget      string
)

var replayCmd = &cobra.Command{
	Use:   "replay FIXTURE",
	Short: "Replay a fixture script through a fresh tracker",
	Long: `Adds every fixture target to an empty in-memory tracker, applies its
steps in order and compares the outcome with the fixture's expectations.
Exits non-zero when any expectation fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

var replayExportCmd = &cobra.Command{
	Use:   "export OUT",
	Short: "Write a fixture rebuilt from the persisted event log",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplayExport,
}

func init() {
	replayCmd.Flags().IntVar(&replayConcurrency, "concurrency", 0, "Targets replayed at once (0 = unlimited)")
	replayCmd.Flags().BoolVar(&replaySave, "save", false, "Write the replayed targets to the database")
	replayExportCmd.Flags().StringVar(&exportTarget, "target", "", "Export only this target")
	replayCmd.AddCommand(replayExportCmd)
}

// #region fixture-mode
func runReplay(cmd *cobra.Command, args []string) error {
	f, err := replay.LoadFixture(args[0])
	if err != nil {
		return err
	}

	model := belief.NewModel(cfg.Tables())
	tr := tracker.New(model, tracker.WithEmitter(events.NewBus()), tracker.WithLogger(logger))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := replay.Replay(ctx, tr, f, replay.Options{Concurrency: replayConcurrency})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.Description != "" {
		fmt.Fprintf(out, "Fixture: %s\n", f.Description)
	}
	printReplay(out, results)
	sum := replay.Summarize(results)
	fmt.Fprintf(out, "\n%d targets, %d steps, %d stage transitions, %d conversions, %d partial\n",
		sum.Targets, sum.Steps, sum.StageTransitions, sum.Conversions, sum.Partials)

	if replaySave {
		s, err := store.Open(cfg.Database, model)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.SaveTracker(tr); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved %d targets to %s\n", tr.Len(), cfg.Database)
	}

	if sum.Mismatches > 0 {
		return fmt.Errorf("%d expectation(s) failed for %s", sum.Mismatches, strings.Join(sum.Failed, ", "))
	}
	return nil
}

func printReplay(w io.Writer, results []replay.TargetResult) {
	fmt.Fprintf(w, "%-16s %-5s %-12s %-26s %-12s %9s  %s\n", "TARGET", "STEP", "ACTION", "DETAIL", "STAGE", "COMPOSITE", "STATUS")
	for _, r := range results {
		for _, st := range r.Steps {
			detail := st.Flag
			if st.Action == replay.ActionInteraction {
				detail = fmt.Sprintf("%s/%s", st.Event, st.Persona)
			}
			stage := st.NewStage.String()
			if st.NewStage != st.PreviousStage {
				stage = fmt.Sprintf("%s*", stage)
			}
			fmt.Fprintf(w, "%-16s %-5d %-12s %-26s %-12s %9.2f  %s\n", r.TargetID, st.Step, st.Action, detail, stage, st.Composite, st.Status)
		}
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "%-16s MISMATCH %s\n", r.TargetID, m)
		}
	}
}

// #endregion fixture-mode

// #region export-mode
func runReplayExport(cmd *cobra.Command, args []string) error {
	s, err := store.Open(cfg.Database, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	elog, err := logging.NewEventLog(s.DB())
	if err != nil {
		return err
	}
	entries, err := elog.Query(logging.Query{TargetID: exportTarget})
	if err != nil {
		return err
	}
	// oldest first, so events stamped in the same millisecond keep log order
	slices.Reverse(entries)
	f, err := replay.FixtureFromEvents("exported from "+cfg.Database, entries)
	if err != nil {
		return err
	}
	if err := replay.WriteFixture(args[0], f); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d targets to %s\n", len(f.Targets), args[0])
	return nil
}

// #endregion export-mode
