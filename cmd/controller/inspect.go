package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/criteria"
	"github.com/danielpatrickdp/persuasion-state/internal/generator"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
	"github.com/danielpatrickdp/persuasion-state/internal/strategy"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var (
	inspectJSON   bool
	inspectEvents int
	inspectStage  string
	inspectLimit  int
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [TARGET]",
	Short: "Show one target in detail, or list stored targets",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSON, "json", false, "Output as JSON")
	inspectCmd.Flags().IntVar(&inspectEvents, "events", 10, "Recent events to show for a target")
	inspectCmd.Flags().StringVar(&inspectStage, "stage", "", "List only targets in this stage")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 50, "Maximum targets to list")
}

type targetView struct {
	ID          string                  `json:"id"`
	Status      tracker.Status          `json:"status"`
	Beliefs     belief.Vector           `json:"beliefs"`
	Flags       map[string]bool         `json:"flags"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
	Analysis    belief.Analysis         `json:"analysis"`
	Advice      tracker.Recommendation  `json:"recommendations"`
	Strategy    strategy.Recommendation `json:"strategy"`
	Interaction int                     `json:"interactions"`
	Events      []logging.Entry         `json:"events,omitempty"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger, generator.NewMock())
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 0 {
		return listTargets(cmd.OutOrStdout(), a)
	}

	id := args[0]
	tgt, err := a.tracker.Get(id)
	if err != nil {
		return err
	}
	advice, err := a.tracker.Recommendations(id)
	if err != nil {
		return err
	}
	view := targetView{
		ID:          tgt.ID,
		Status:      tgt.Status,
		Beliefs:     tgt.State.Vector,
		Flags:       tgt.Flags,
		Metadata:    tgt.Metadata,
		Analysis:    a.model.Analyze(tgt.State),
		Advice:      advice,
		Strategy:    strategy.NewSelector(a.model, strategy.Default()).Recommend(id, tgt.State),
		Interaction: len(tgt.State.History),
	}
	if a.events != nil && inspectEvents > 0 {
		view.Events, err = a.events.Query(logging.Query{TargetID: id, Limit: inspectEvents})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if inspectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printTarget(out, view)
	return nil
}

func listTargets(w io.Writer, a *app) error {
	q := store.Query{Limit: inspectLimit}
	if inspectStage != "" {
		st, ok := belief.ParseStage(strings.ToUpper(inspectStage))
		if !ok {
			return fmt.Errorf("unknown stage %q", inspectStage)
		}
		q.Stage = &st
	}
	targets, err := a.store.Search(q)
	if err != nil {
		return err
	}
	if inspectJSON {
		recs := make([]tracker.Record, len(targets))
		for i, t := range targets {
			recs[i] = tracker.EncodeTarget(t)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	fmt.Fprintf(w, "%-20s %-12s %9s  %-10s %s\n", "TARGET", "STAGE", "COMPOSITE", "STATUS", "INTERACTIONS")
	for _, t := range targets {
		snap := a.model.Snapshot(t.State)
		fmt.Fprintf(w, "%-20s %-12s %9.2f  %-10s %d\n", t.ID, snap.Stage, snap.Composite, t.Status, len(t.State.History))
	}
	return nil
}

func printTarget(w io.Writer, v targetView) {
	fmt.Fprintf(w, "Target %s (%s, %d interactions)\n", v.ID, v.Status, v.Interaction)
	fmt.Fprintf(w, "  Stage %s | composite %.2f | p(convert) %.2f | %s\n",
		v.Analysis.Stage, v.Analysis.Composite, v.Analysis.Probability, v.Analysis.Coherence)

	fmt.Fprintln(w, "\nBeliefs:")
	for _, d := range belief.Dimensions {
		fmt.Fprintf(w, "  %-10s %6.2f\n", d, v.Beliefs[d])
	}

	if len(v.Flags) > 0 {
		names := make([]string, 0, len(v.Flags))
		for name := range v.Flags {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(w, "\nFlags:")
		for _, name := range names {
			fmt.Fprintf(w, "  %-24s %t\n", name, v.Flags[name])
		}
	}

	fmt.Fprintln(w, "\nCriteria:")
	printEvaluation(w, v.Advice.Criteria.Full)
	printEvaluation(w, v.Advice.Criteria.Partial)

	s := v.Strategy
	fmt.Fprintf(w, "\nNext: %s with %s (confidence %.2f), avoid %s\n", s.StrategyName, s.Persona, s.Confidence, s.AvoidPersona)
	if s.ArchetypeName != "" {
		fmt.Fprintf(w, "  Archetype: %s\n", s.ArchetypeName)
	}
	fmt.Fprintf(w, "  Weakest dimension %s, best lifted by %s\n", v.Advice.TargetDimension, v.Advice.PrimaryPersona)
	for _, note := range v.Advice.StrategyNotes {
		fmt.Fprintf(w, "  - %s\n", note)
	}

	if len(v.Events) > 0 {
		fmt.Fprintln(w, "\nRecent events:")
		for _, e := range v.Events {
			fmt.Fprintf(w, "  %s  %-22s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Type, e.Payload)
		}
	}
}

func printEvaluation(w io.Writer, e criteria.Evaluation) {
	fmt.Fprintf(w, "  %s: %d/%d met", e.Set, len(e.Met), e.Required)
	if e.Satisfied {
		fmt.Fprint(w, " (satisfied)")
	}
	fmt.Fprintln(w)
	for _, st := range e.Statuses {
		mark := " "
		if st.Met {
			mark = "x"
		}
		fmt.Fprintf(w, "    [%s] %s\n", mark, st.Description)
	}
}
