package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/generator"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

var reportJSON bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize conversion progress across all stored targets",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Output as JSON")
}

type reportView struct {
	Tracker tracker.Report `json:"tracker"`
	Store   store.Stats    `json:"store"`
	Events  *logging.Stats `json:"events,omitempty"`
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cfg, logger, generator.NewMock())
	if err != nil {
		return err
	}
	defer a.close()

	view := reportView{Tracker: a.tracker.Report()}
	if view.Store, err = a.store.Stats(); err != nil {
		return err
	}
	if a.events != nil {
		st, err := a.events.Stats(logging.Query{})
		if err != nil {
			return err
		}
		view.Events = &st
	}

	out := cmd.OutOrStdout()
	if reportJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	printReport(out, a.model.Tables().Personas, view)
	return nil
}

func printReport(w io.Writer, personas []belief.Persona, v reportView) {
	s := v.Tracker.Summary
	fmt.Fprintf(w, "Targets: %d | converted %d | partial %d | rate %.1f%% | avg composite %.1f\n",
		s.TotalTargets, s.Converted, s.PartialConverted, s.ConversionRate, s.AverageComposite)

	fmt.Fprintln(w, "\nStages:")
	for _, st := range belief.Stages {
		fmt.Fprintf(w, "  %-12s %d\n", st, v.Tracker.StageDistribution[st])
	}

	if len(v.Tracker.PersonaPerformance) > 0 {
		fmt.Fprintln(w, "\nPersonas:")
		for _, p := range personas {
			perf, ok := v.Tracker.PersonaPerformance[p]
			if !ok {
				continue
			}
			fmt.Fprintf(w, "  %-10s %4d interactions, %d conversions influenced, %.1f%%\n", p, perf.Interactions, perf.ConversionsInfluenced, perf.ConversionRate)
		}
	}

	if len(v.Tracker.HotProspects) > 0 {
		fmt.Fprintln(w, "\nHot prospects:")
		for _, p := range v.Tracker.HotProspects {
			fmt.Fprintf(w, "  %-16s %-12s composite %.1f p=%.2f\n", p.TargetID, p.Stage, p.Composite, p.Probability)
		}
	}

	if v.Events != nil {
		fmt.Fprintf(w, "\nEvents logged: %d across %d targets\n", v.Events.Total, len(v.Events.ByTarget))
	}
}
