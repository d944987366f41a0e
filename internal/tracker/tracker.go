// Package tracker owns the target registry. It applies belief updates,
// evaluates conversion criteria and keeps the aggregates reports are built
// from.
package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/criteria"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/lockmap"
)

const (
	// DefaultMaxHistory caps the compact history kept per target.
	DefaultMaxHistory = 1000

	maxLogEntries  = 10000
	keepLogEntries = 5000
)

// #region tracker
// Tracker is safe for concurrent use. Mutations of one target are serialized
// through a per-target lock; distinct targets proceed in parallel. Stored
// *Target values are replaced, never modified, so readers only need the
// registry read lock.
type Tracker struct {
	model   *belief.Model
	full    criteria.Set
	partial criteria.Set

	locks lockmap.Map

	mu           sync.RWMutex
	targets      map[string]*Target
	conversions  []ConversionRecord
	partials     []PartialRecord
	personaStats map[belief.Persona]*PersonaStats
	log          []LogEntry

	maxHistory int
	emitter    events.Emitter
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEmitter publishes tracker events to a bus.
func WithEmitter(e events.Emitter) Option {
	return func(t *Tracker) { t.emitter = e }
}

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithMaxHistory caps each target's compact history.
func WithMaxHistory(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.maxHistory = n
		}
	}
}

// WithCriteria replaces the full and partial criteria sets.
func WithCriteria(full, partial criteria.Set) Option {
	return func(t *Tracker) {
		t.full = full
		t.partial = partial
	}
}

// New creates an empty tracker over model.
func New(model *belief.Model, opts ...Option) *Tracker {
	t := &Tracker{
		model:        model,
		full:         criteria.FullConversion(),
		partial:      criteria.PartialConversion(),
		targets:      make(map[string]*Target),
		personaStats: make(map[belief.Persona]*PersonaStats),
		maxHistory:   DefaultMaxHistory,
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, p := range model.Tables().Personas {
		t.personaStats[p] = &PersonaStats{}
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Model returns the belief model the tracker applies.
func (t *Tracker) Model() *belief.Model {
	return t.model
}

// #endregion tracker

// #region pending
// pending collects what a mutation produced so it can be committed under the
// registry lock and published after every lock is released.
type pending struct {
	entries     []LogEntry
	notices     []notice
	conversion  *ConversionRecord
	partial     *PartialRecord
	interaction belief.Persona
}

type notice struct {
	targetID string
	payload  events.Payload
}

func (p *pending) add(now time.Time, typ, targetID string, data map[string]any, payload events.Payload) {
	p.entries = append(p.entries, LogEntry{Type: typ, TargetID: targetID, Data: data, Timestamp: now})
	if payload != nil {
		p.notices = append(p.notices, notice{targetID: targetID, payload: payload})
	}
}

// commitLocked applies aggregates and log lines. Caller holds t.mu.
func (t *Tracker) commitLocked(p *pending) {
	if p.interaction != "" {
		if st, ok := t.personaStats[p.interaction]; ok {
			st.Interactions++
		}
	}
	if p.conversion != nil {
		t.conversions = append(t.conversions, *p.conversion)
		if st, ok := t.personaStats[p.conversion.PrimaryAgent]; ok {
			st.ConversionsInfluenced++
		}
	}
	if p.partial != nil {
		t.partials = append(t.partials, *p.partial)
	}
	t.log = append(t.log, p.entries...)
	if len(t.log) > maxLogEntries {
		t.log = append([]LogEntry(nil), t.log[len(t.log)-keepLogEntries:]...)
	}
}

func (t *Tracker) publish(ctx context.Context, p *pending) {
	if t.emitter == nil {
		return
	}
	for _, n := range p.notices {
		t.emitter.Publish(ctx, n.targetID, n.payload)
	}
}

// #endregion pending

// #region add
// AddTarget registers a new target with the given starting vector.
func (t *Tracker) AddTarget(ctx context.Context, id string, initial belief.Vector, metadata map[string]any) (*Target, error) {
	if id == "" {
		return nil, fmt.Errorf("add target: %w: empty id", ErrInvalidInput)
	}
	unlock := t.locks.Lock(id)
	tgt, p, err := t.addLocked(id, initial, metadata)
	unlock()
	if err != nil {
		return nil, err
	}
	t.publish(ctx, p)
	return tgt.clone(), nil
}

// GetOrAdd returns the target with id, creating it from initial when absent.
// The boolean reports whether it was created.
func (t *Tracker) GetOrAdd(ctx context.Context, id string, initial belief.Vector, metadata map[string]any) (*Target, bool, error) {
	if id == "" {
		return nil, false, fmt.Errorf("add target: %w: empty id", ErrInvalidInput)
	}
	unlock := t.locks.Lock(id)
	if cur := t.lookup(id); cur != nil {
		unlock()
		return cur.clone(), false, nil
	}
	tgt, p, err := t.addLocked(id, initial, metadata)
	unlock()
	if err != nil {
		return nil, false, err
	}
	t.publish(ctx, p)
	return tgt.clone(), true, nil
}

// addLocked inserts a target. Caller holds the target lock.
func (t *Tracker) addLocked(id string, initial belief.Vector, metadata map[string]any) (*Target, *pending, error) {
	if t.lookup(id) != nil {
		return nil, nil, fmt.Errorf("add target %s: %w", id, ErrDuplicateTarget)
	}
	now := t.now()
	tgt := &Target{
		ID:        id,
		State:     belief.NewState(initial, now),
		Metadata:  map[string]any{},
		Flags:     map[string]bool{},
		Status:    StatusNone,
		CreatedAt: now,
	}
	for k, v := range metadata {
		tgt.Metadata[k] = v
	}

	p := &pending{}
	p.add(now, "target_added", id, map[string]any{"initialBeliefs": tgt.State.Vector.Map()}, events.TargetAdded{Initial: tgt.State.Vector})

	t.mu.Lock()
	t.targets[id] = tgt
	t.commitLocked(p)
	t.mu.Unlock()

	t.logger.Debug("target added", zap.String("target", id))
	return tgt, p, nil
}

// #endregion add

// #region mutate
// RecordInteraction applies event by persona to the target and re-evaluates
// conversion. On error nothing is changed.
func (t *Tracker) RecordInteraction(ctx context.Context, id string, event belief.Event, persona belief.Persona) (belief.Result, error) {
	unlock := t.locks.Lock(id)
	res, p, err := t.recordLocked(id, event, persona)
	unlock()
	if err != nil {
		return belief.Result{}, err
	}
	t.publish(ctx, p)
	return res, nil
}

func (t *Tracker) recordLocked(id string, event belief.Event, persona belief.Persona) (belief.Result, *pending, error) {
	cur := t.lookup(id)
	if cur == nil {
		return belief.Result{}, nil, fmt.Errorf("record interaction on %s: %w", id, ErrTargetNotFound)
	}
	now := t.now()
	res, err := t.model.Update(cur.State, event, persona, belief.UpdateOptions{Timestamp: now})
	if err != nil {
		return belief.Result{}, nil, fmt.Errorf("record interaction on %s: %w", id, err)
	}

	next := cur.clone()
	next.State = res.State
	after := t.model.Snapshot(res.State)
	next.History = append(next.History, HistoryRecord{
		Timestamp:         now,
		Event:             event,
		Persona:           persona,
		PreviousStage:     res.Previous.Stage,
		NewStage:          after.Stage,
		PreviousComposite: res.Previous.Composite,
		NewComposite:      after.Composite,
	})
	if over := len(next.History) - t.maxHistory; over > 0 {
		next.History = append([]HistoryRecord(nil), next.History[over:]...)
	}

	p := &pending{interaction: persona}
	p.notices = append(p.notices, notice{targetID: id, payload: events.BeliefUpdate{
		Event:     event,
		Persona:   persona,
		Deltas:    res.Deltas,
		Composite: after.Composite,
		Stage:     after.Stage,
	}})
	if res.Previous.Stage != after.Stage {
		p.add(now, "stage_transition", id, map[string]any{
			"from":  res.Previous.Stage.String(),
			"to":    after.Stage.String(),
			"agent": string(persona),
		}, events.StageTransition{From: res.Previous.Stage, To: after.Stage, Persona: persona})
		t.logger.Info("stage transition",
			zap.String("target", id),
			zap.Stringer("from", res.Previous.Stage),
			zap.Stringer("to", after.Stage),
			zap.String("persona", string(persona)))
	}

	t.evaluate(next, now, p)

	p.add(now, "interaction", id, map[string]any{
		"event":     string(event),
		"agent":     string(persona),
		"composite": after.Composite,
	}, nil)

	t.mu.Lock()
	t.targets[id] = next
	t.commitLocked(p)
	t.mu.Unlock()

	return res, p, nil
}

// SetFlag records a manual criterion flag and re-evaluates conversion.
func (t *Tracker) SetFlag(ctx context.Context, id, name string, value bool) error {
	if name == "" {
		return fmt.Errorf("set flag on %s: %w: empty flag name", id, ErrInvalidInput)
	}
	unlock := t.locks.Lock(id)
	p, err := t.setFlagLocked(id, name, value)
	unlock()
	if err != nil {
		return err
	}
	t.publish(ctx, p)
	return nil
}

func (t *Tracker) setFlagLocked(id, name string, value bool) (*pending, error) {
	cur := t.lookup(id)
	if cur == nil {
		return nil, fmt.Errorf("set flag on %s: %w", id, ErrTargetNotFound)
	}
	now := t.now()
	next := cur.clone()
	next.Flags[name] = value

	p := &pending{}
	t.evaluate(next, now, p)
	p.add(now, "flag_set", id, map[string]any{"flag": name, "value": value}, events.FlagSet{Flag: name, Value: value})

	t.mu.Lock()
	t.targets[id] = next
	t.commitLocked(p)
	t.mu.Unlock()
	return p, nil
}

// DecayAll applies days of decay to every target that is not converted and
// logs one aggregate event.
func (t *Tracker) DecayAll(ctx context.Context, days float64) int {
	ids := t.ids()
	decayed := 0
	for _, id := range ids {
		unlock := t.locks.Lock(id)
		cur := t.lookup(id)
		if cur != nil && cur.Status != StatusConverted {
			next := cur.clone()
			next.State = t.model.ApplyDecay(cur.State, days)
			t.mu.Lock()
			t.targets[id] = next
			t.mu.Unlock()
			decayed++
		}
		unlock()
	}

	now := t.now()
	p := &pending{}
	p.add(now, "decay_applied", "", map[string]any{"daysPassed": days, "targetCount": len(ids)}, events.DecayApplied{Days: days, TargetCount: len(ids)})
	t.mu.Lock()
	t.commitLocked(p)
	t.mu.Unlock()
	t.publish(ctx, p)

	t.logger.Debug("decay applied", zap.Float64("days", days), zap.Int("decayed", decayed))
	return decayed
}

// #endregion mutate

// #region evaluate
func (t *Tracker) subject(tgt *Target, now time.Time) criteria.Subject {
	return criteria.Subject{
		Composite:    t.model.Composite(tgt.State),
		ReferralMade: tgt.State.ReferralMade,
		Flags:        tgt.Flags,
		History:      tgt.State.History,
		Now:          now,
	}
}

// evaluate moves tgt's conversion status forward when criteria allow.
func (t *Tracker) evaluate(tgt *Target, now time.Time, p *pending) {
	if tgt.Status == StatusConverted {
		return
	}
	sub := t.subject(tgt, now)

	if full := t.full.Evaluate(sub); full.Satisfied {
		primary := PrimaryPersona(tgt.State.History)
		tgt.Status = StatusConverted
		tgt.ConvertedAt = now
		tgt.ConversionCriteria = full.Met
		rec := ConversionRecord{
			TargetID:          tgt.ID,
			Timestamp:         now,
			CriteriaMet:       full.Met,
			PrimaryAgent:      primary,
			FinalScore:        sub.Composite,
			TotalInteractions: len(tgt.State.History),
		}
		p.conversion = &rec
		p.add(now, "conversion", tgt.ID, map[string]any{
			"criteriaMet":  full.Met,
			"primaryAgent": string(primary),
		}, events.Conversion{
			Criteria:          full.Met,
			PrimaryAgent:      primary,
			FinalScore:        sub.Composite,
			TotalInteractions: rec.TotalInteractions,
		})
		t.logger.Info("target converted", zap.String("target", tgt.ID), zap.Strings("criteria", full.Met))
		return
	}

	if tgt.Status != StatusNone {
		return
	}
	if part := t.partial.Evaluate(sub); part.Satisfied {
		tgt.Status = StatusPartial
		tgt.PartialAt = now
		tgt.PartialCriteria = part.Met
		p.partial = &PartialRecord{TargetID: tgt.ID, Timestamp: now, CriteriaMet: part.Met, Score: sub.Composite}
		p.add(now, "partial_conversion", tgt.ID, map[string]any{"criteriaMet": part.Met},
			events.PartialConversion{Criteria: part.Met, Composite: sub.Composite})
	}
}

// PrimaryPersona is the persona with the most log entries. A tie goes to the
// persona that appeared first. Empty history yields "".
func PrimaryPersona(history []belief.HistoryEntry) belief.Persona {
	counts := make(map[belief.Persona]int)
	var order []belief.Persona
	for _, h := range history {
		if counts[h.Persona] == 0 {
			order = append(order, h.Persona)
		}
		counts[h.Persona]++
	}
	var best belief.Persona
	for _, p := range order {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}

// #endregion evaluate

// #region read
func (t *Tracker) lookup(id string) *Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.targets[id]
}

func (t *Tracker) ids() []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.targets))
	for id := range t.targets {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Get returns a copy of the target.
func (t *Tracker) Get(id string) (*Target, error) {
	cur := t.lookup(id)
	if cur == nil {
		return nil, fmt.Errorf("get %s: %w", id, ErrTargetNotFound)
	}
	return cur.clone(), nil
}

// Targets returns copies of every target ordered by id.
func (t *Tracker) Targets() []*Target {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Target, 0, len(t.targets))
	for _, tgt := range t.targets {
		out = append(out, tgt.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len is the number of tracked targets.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.targets)
}

// Conversions returns the full-conversion records in order.
func (t *Tracker) Conversions() []ConversionRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]ConversionRecord(nil), t.conversions...)
}

// Partials returns the partial-conversion records in order.
func (t *Tracker) Partials() []PartialRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]PartialRecord(nil), t.partials...)
}

// PersonaStats returns a copy of per-persona counters.
func (t *Tracker) PersonaStats() map[belief.Persona]PersonaStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[belief.Persona]PersonaStats, len(t.personaStats))
	for p, st := range t.personaStats {
		out[p] = *st
	}
	return out
}

// EventLog returns the newest limit log entries, or all when limit <= 0.
func (t *Tracker) EventLog(limit int) []LogEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	start := 0
	if limit > 0 && len(t.log) > limit {
		start = len(t.log) - limit
	}
	return append([]LogEntry(nil), t.log[start:]...)
}

// #endregion read
