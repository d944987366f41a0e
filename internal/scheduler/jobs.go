package scheduler

import (
	"context"
	"time"

	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// Task ids of the prebuilt jobs.
const (
	DecayTaskID        = "belief_decay"
	ReportTaskID       = "metrics_report"
	ReengagementTaskID = "reengagement_check"
	followUpPrefix     = "followup_"
)

// StartDecayJob decays every non-converted target once per interval by the
// interval's length in days. The tracker publishes decayApplied itself.
func (s *Scheduler) StartDecayJob(tr *tracker.Tracker, interval time.Duration) error {
	days := interval.Hours() / 24
	return s.ScheduleRecurring(DecayTaskID, func(ctx context.Context) error {
		tr.DecayAll(ctx, days)
		return nil
	}, interval, RecurringOptions{})
}

// StartReportingJob hands a fresh report to fn once per interval.
func (s *Scheduler) StartReportingJob(tr *tracker.Tracker, interval time.Duration, fn func(context.Context, tracker.Report)) error {
	return s.ScheduleRecurring(ReportTaskID, func(ctx context.Context) error {
		fn(ctx, tr.Report())
		return nil
	}, interval, RecurringOptions{})
}

// ScheduleFollowUp runs fn for a target after delay, replacing any pending
// follow-up for the same target.
func (s *Scheduler) ScheduleFollowUp(targetID string, fn Func, delay time.Duration) error {
	return s.ScheduleOnce(followUpPrefix+targetID, fn, delay)
}

// CancelFollowUp drops a pending follow-up.
func (s *Scheduler) CancelFollowUp(targetID string) bool {
	return s.Cancel(followUpPrefix + targetID)
}

// StartReengagementJob checks every interval for targets that are not
// converted and have been quiet longer than threshold, and calls fn for
// each. Quiet time is measured from the last interaction, or from creation
// when there has been none.
func (s *Scheduler) StartReengagementJob(tr *tracker.Tracker, threshold, interval time.Duration, fn func(context.Context, *tracker.Target)) error {
	return s.ScheduleRecurring(ReengagementTaskID, func(ctx context.Context) error {
		now := s.now()
		for _, tgt := range tr.Targets() {
			if tgt.Status == tracker.StatusConverted {
				continue
			}
			last := tgt.State.LastInteraction
			if last.IsZero() {
				last = tgt.CreatedAt
			}
			if now.Sub(last) > threshold {
				fn(ctx, tgt)
			}
		}
		return nil
	}, interval, RecurringOptions{})
}
