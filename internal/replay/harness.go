// Package replay runs scripted interaction fixtures through a tracker and
// checks where each target ends up.
package replay

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// #region types
// Action is the kind of step replayed.
type Action string

const (
	ActionInteraction Action = "interaction"
	ActionFlag        Action = "flag"
)

// StepResult captures one replayed step.
type StepResult struct {
	Step          int
	Action        Action
	Event         belief.Event
	Persona       belief.Persona
	Flag          string
	PreviousStage belief.Stage
	NewStage      belief.Stage
	Composite     float64
	Status        tracker.Status
}

// TargetResult is the outcome for one fixture target.
type TargetResult struct {
	TargetID   string
	Steps      []StepResult
	Final      *tracker.Target
	Stage      belief.Stage
	Composite  float64
	Mismatches []string
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Targets          int
	Steps            int
	StageTransitions int
	Partials         int
	Conversions      int
	Mismatches       int
	Failed           []string
}

// Options tunes a replay run.
type Options struct {
	// Concurrency bounds how many targets replay at once; zero means no limit.
	Concurrency int
}

// #endregion types

// #region replay
// Replay adds every fixture target to tr and applies its steps in order.
// Targets replay concurrently; steps of one target never interleave. The
// first error cancels the remaining targets.
func Replay(ctx context.Context, tr *tracker.Tracker, f *Fixture, opts Options) ([]TargetResult, error) {
	results := make([]TargetResult, len(f.Targets))

	g, ctx := errgroup.WithContext(ctx)
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	}
	for i := range f.Targets {
		ft := f.Targets[i]
		g.Go(func() error {
			r, err := replayTarget(ctx, tr, ft)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func replayTarget(ctx context.Context, tr *tracker.Tracker, ft FixtureTarget) (TargetResult, error) {
	model := tr.Model()
	if _, err := tr.AddTarget(ctx, ft.ID, ft.Initial, ft.Metadata); err != nil {
		return TargetResult{}, fmt.Errorf("replay %s: %w", ft.ID, err)
	}

	res := TargetResult{TargetID: ft.ID, Steps: make([]StepResult, 0, len(ft.Steps))}
	for i, step := range ft.Steps {
		if err := ctx.Err(); err != nil {
			return TargetResult{}, err
		}

		before, err := tr.Get(ft.ID)
		if err != nil {
			return TargetResult{}, fmt.Errorf("replay %s step %d: %w", ft.ID, i, err)
		}
		sr := StepResult{Step: i, PreviousStage: model.Stage(before.State)}

		if step.Flag != "" {
			sr.Action = ActionFlag
			sr.Flag = step.Flag
			err = tr.SetFlag(ctx, ft.ID, step.Flag, step.flagValue())
		} else {
			sr.Action = ActionInteraction
			sr.Event = step.Event
			sr.Persona = step.Persona
			_, err = tr.RecordInteraction(ctx, ft.ID, step.Event, step.Persona)
		}
		if err != nil {
			return TargetResult{}, fmt.Errorf("replay %s step %d: %w", ft.ID, i, err)
		}

		after, err := tr.Get(ft.ID)
		if err != nil {
			return TargetResult{}, fmt.Errorf("replay %s step %d: %w", ft.ID, i, err)
		}
		snap := model.Snapshot(after.State)
		sr.NewStage = snap.Stage
		sr.Composite = snap.Composite
		sr.Status = after.Status
		res.Steps = append(res.Steps, sr)
	}

	final, err := tr.Get(ft.ID)
	if err != nil {
		return TargetResult{}, fmt.Errorf("replay %s: %w", ft.ID, err)
	}
	snap := model.Snapshot(final.State)
	res.Final = final
	res.Stage = snap.Stage
	res.Composite = snap.Composite
	if ft.Expected != nil {
		res.Mismatches = check(*ft.Expected, res)
	}
	return res, nil
}

func check(want FixtureExpected, got TargetResult) []string {
	var out []string
	if want.Stage != nil && *want.Stage != got.Stage {
		out = append(out, fmt.Sprintf("stage: want %s, got %s", *want.Stage, got.Stage))
	}
	if want.Status != "" && want.Status != got.Final.Status {
		out = append(out, fmt.Sprintf("status: want %s, got %s", want.Status, got.Final.Status))
	}
	if want.MinComposite != nil && got.Composite < *want.MinComposite {
		out = append(out, fmt.Sprintf("composite: want >= %.2f, got %.2f", *want.MinComposite, got.Composite))
	}
	if want.MaxComposite != nil && got.Composite > *want.MaxComposite {
		out = append(out, fmt.Sprintf("composite: want <= %.2f, got %.2f", *want.MaxComposite, got.Composite))
	}
	return out
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []TargetResult) Summary {
	s := Summary{Targets: len(results)}
	for _, r := range results {
		s.Steps += len(r.Steps)
		for _, st := range r.Steps {
			if st.NewStage != st.PreviousStage {
				s.StageTransitions++
			}
		}
		switch r.Final.Status {
		case tracker.StatusConverted:
			s.Conversions++
		case tracker.StatusPartial:
			s.Partials++
		}
		if len(r.Mismatches) > 0 {
			s.Mismatches += len(r.Mismatches)
			s.Failed = append(s.Failed, r.TargetID)
		}
	}
	return s
}

// #endregion replay
