// Package debate runs multi-turn conversations between the personas and a
// target, feeding what the target says back into the tracker.
package debate

// #region imports
import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/generator"
	"github.com/danielpatrickdp/persuasion-state/internal/lockmap"
	"github.com/danielpatrickdp/persuasion-state/internal/prompt"
	"github.com/danielpatrickdp/persuasion-state/internal/signals"
	"github.com/danielpatrickdp/persuasion-state/internal/strategy"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// #endregion

const (
	// DefaultPersona is credited with belief changes before any persona spoke.
	DefaultPersona = belief.Missionary

	recentWindow = 5
)

// #region loop-struct

// Loop owns every open conversation. Turns for one target run one at a time
// under that target's lock, which is held across generation; different
// targets proceed in parallel.
type Loop struct {
	tracker  *tracker.Tracker
	selector *strategy.Selector
	detector signals.Detector
	gen      generator.Generator
	emitter  events.Emitter
	logger   *zap.Logger
	now      func() time.Time

	locks lockmap.Map

	mu            sync.RWMutex
	conversations map[string]*conversation

	metricsMu sync.Mutex
	metrics   map[belief.Persona]*PersonaMetrics
}

// Option configures a Loop.
type Option func(*Loop)

// WithEmitter publishes conversation events to a bus.
func WithEmitter(e events.Emitter) Option {
	return func(l *Loop) { l.emitter = e }
}

// WithLogger sets the loop's logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg.Named("debate")
		}
	}
}

// WithClock overrides the clock used for transcript timestamps and durations.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithDetector replaces the lexical detector.
func WithDetector(d signals.Detector) Option {
	return func(l *Loop) { l.detector = d }
}

// WithSelector shares a selector, e.g. with a recommendations endpoint.
func WithSelector(s *strategy.Selector) Option {
	return func(l *Loop) { l.selector = s }
}

// New creates a loop over tr that answers with gen.
func New(tr *tracker.Tracker, gen generator.Generator, opts ...Option) *Loop {
	l := &Loop{
		tracker:       tr,
		gen:           gen,
		detector:      signals.NewLexicalDetector(),
		logger:        zap.NewNop(),
		now:           time.Now,
		conversations: make(map[string]*conversation),
		metrics:       make(map[belief.Persona]*PersonaMetrics),
	}
	for _, o := range opts {
		o(l)
	}
	if l.selector == nil {
		l.selector = strategy.NewSelector(tr.Model(), strategy.Default())
	}
	return l
}

// #endregion

// #region start

// StartOptions seed a target that does not exist yet. They are ignored for
// known targets.
type StartOptions struct {
	Initial  belief.Vector
	Metadata map[string]any
}

// Start opens a conversation with targetID, creating the target if needed,
// and handles message as its first turn. An open conversation with the same
// target is replaced.
func (l *Loop) Start(ctx context.Context, targetID, message string, opts StartOptions) (*Reply, error) {
	if targetID == "" {
		return nil, fmt.Errorf("start conversation: %w: empty target id", ErrInvalidInput)
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("start conversation with %s: %w: empty message", targetID, ErrInvalidInput)
	}

	unlock := l.locks.Lock(targetID)
	defer unlock()

	tgt, created, err := l.tracker.GetOrAdd(ctx, targetID, opts.Initial, opts.Metadata)
	if err != nil {
		return nil, fmt.Errorf("start conversation with %s: %w", targetID, err)
	}
	stage := l.tracker.Model().Stage(tgt.State)
	c := &conversation{
		id:         uuid.NewString(),
		targetID:   targetID,
		status:     StatusActive,
		startedAt:  l.now(),
		startStage: stage,
		lastStage:  stage,
		hasStage:   true,
	}

	l.mu.Lock()
	if _, ok := l.conversations[targetID]; ok {
		l.logger.Info("replacing open conversation", zap.String("target", targetID))
	}
	l.conversations[targetID] = c
	l.mu.Unlock()

	l.logger.Info("conversation started",
		zap.String("target", targetID),
		zap.String("conversation", c.id),
		zap.Bool("new_target", created),
		zap.Stringer("stage", stage))
	l.publish(ctx, targetID, events.ConversationStarted{ConversationID: c.id, Stage: stage})

	return l.turn(ctx, c, message)
}

// #endregion

// #region continue

// Continue handles one inbound message and returns the persona's answer.
func (l *Loop) Continue(ctx context.Context, targetID, message string) (*Reply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("continue %s: %w: empty message", targetID, ErrInvalidInput)
	}
	unlock := l.locks.Lock(targetID)
	defer unlock()

	c := l.lookup(targetID)
	if c == nil {
		return nil, fmt.Errorf("continue %s: %w", targetID, ErrNoConversation)
	}
	return l.turn(ctx, c, message)
}

// turn runs one exchange. Caller holds the target lock.
func (l *Loop) turn(ctx context.Context, c *conversation, message string) (*Reply, error) {
	c.mu.Lock()
	if c.status != StatusActive {
		status := c.status
		c.mu.Unlock()
		return nil, fmt.Errorf("continue %s: %w: %s", c.targetID, ErrNotActive, status)
	}
	history := c.turns()
	c.messages = append(c.messages, Message{Role: prompt.RoleTarget, Content: message, Timestamp: l.now()})
	previous := c.persona
	recent := c.recentPersonas(recentWindow)
	c.mu.Unlock()

	analysis := l.detector.Analyze(message)
	l.publish(ctx, c.targetID, inboundEvent(c.id, message, analysis))

	if l.detector.IsConversationEnd(message) {
		sum := l.end(ctx, c.targetID)
		reply := &Reply{ConversationID: c.id, Signals: analysis, Ended: true, Summary: sum}
		if sum != nil {
			reply.Length = sum.MessageCount
		}
		return reply, nil
	}

	if analysis.Event != "" {
		if err := l.applySignal(ctx, c, analysis.Event, previous); err != nil {
			return nil, err
		}
	}
	if len(analysis.Positives) > 0 {
		l.publish(ctx, c.targetID, events.PositiveSignal{ConversationID: c.id, Signals: signalNames(analysis)})
	}
	var objection string
	if len(analysis.Objections) > 0 {
		objection = string(analysis.Objections[0].Objection)
		l.publish(ctx, c.targetID, events.ObjectionDetected{
			ConversationID: c.id,
			Objections:     objectionNames(analysis),
			Message:        message,
		})
	}

	tgt, err := l.tracker.Get(c.targetID)
	if err != nil {
		return nil, fmt.Errorf("continue %s: %w", c.targetID, err)
	}
	persona, strat, p, err := l.prepare(tgt.State, recent, history, objection, message)
	if err != nil {
		return nil, fmt.Errorf("continue %s: %w", c.targetID, err)
	}

	started := time.Now()
	text, err := l.gen.Generate(ctx, p.System, p.User, generator.Options{
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		Persona:     persona,
	})
	latency := time.Since(started)
	if err != nil {
		return nil, l.generationFailed(ctx, c, persona, err)
	}
	l.observe(persona, latency, text)
	l.selector.RecordInteraction(c.targetID, persona)

	prof, _ := prompt.ProfileFor(persona)
	c.mu.Lock()
	c.messages = append(c.messages, Message{
		Role:      prompt.RoleAgent,
		Persona:   persona,
		Name:      prof.Name,
		Content:   text,
		Timestamp: l.now(),
	})
	switched := previous != "" && previous != persona
	if switched {
		c.switches++
	}
	c.persona = persona
	length := len(c.messages)
	c.mu.Unlock()

	if switched {
		l.publish(ctx, c.targetID, events.AgentSwitch{ConversationID: c.id, From: previous, To: persona, Strategy: string(strat)})
	}
	l.publish(ctx, c.targetID, events.Message{
		ConversationID: c.id,
		Role:           string(prompt.RoleAgent),
		Persona:        persona,
		Content:        text,
	})

	after, err := l.tracker.Get(c.targetID)
	if err != nil {
		return nil, fmt.Errorf("continue %s: %w", c.targetID, err)
	}
	l.notifyConversion(ctx, c, after)

	return &Reply{
		ConversationID: c.id,
		Persona:        persona,
		Name:           prof.Name,
		Text:           text,
		Strategy:       strat,
		Signals:        analysis,
		Analysis:       l.tracker.Model().Analyze(after.State),
		Length:         length,
		Latency:        latency,
	}, nil
}

// applySignal records the inferred event against the persona that spoke last.
func (l *Loop) applySignal(ctx context.Context, c *conversation, event belief.Event, persona belief.Persona) error {
	if persona == "" {
		persona = DefaultPersona
	}
	res, err := l.tracker.RecordInteraction(ctx, c.targetID, event, persona)
	if err != nil {
		return fmt.Errorf("continue %s: %w", c.targetID, err)
	}
	stage := l.tracker.Model().Stage(res.State)

	c.mu.Lock()
	from, known := c.lastStage, c.hasStage
	c.lastStage, c.hasStage = stage, true
	c.mu.Unlock()

	if known && from != stage {
		l.logger.Info("stage transition in conversation",
			zap.String("target", c.targetID),
			zap.String("conversation", c.id),
			zap.Stringer("from", from),
			zap.Stringer("to", stage))
	}
	return nil
}

// prepare picks a strategy, then the persona for it, and builds the prompt.
func (l *Loop) prepare(st belief.State, recent []belief.Persona, history []prompt.Turn, objection, message string) (belief.Persona, strategy.ID, prompt.Prompt, error) {
	strategies := l.selector.SelectStrategy(st, strategy.StrategyOptions{})
	var strat strategy.ID
	if top, ok := strategies.Recommended(); ok {
		strat = top.Strategy.ID
	}

	persona := DefaultPersona
	agents := l.selector.SelectAgent(st, strategy.AgentOptions{Strategy: strat, Recent: recent})
	if pick, ok := agents.Recommended(); ok {
		persona = pick.Persona
	}

	an := l.tracker.Model().Analyze(st)
	profile := &prompt.TargetProfile{
		Stage:      an.Stage,
		Composite:  an.Composite,
		Strengths:  dimensions(an.Strengths),
		Weaknesses: dimensions(an.Weaknesses),
	}
	if strategies.Archetype != nil {
		profile.Archetype = strategies.Archetype.Archetype.Name
	}

	in := prompt.Input{
		Persona:   persona,
		Target:    profile,
		Strategy:  string(strat),
		History:   history,
		Objection: objection,
		Message:   message,
	}
	if objection != "" {
		if counter, err := strategy.CounterArgument(strategy.Objection(objection), persona); err == nil {
			in.Counter = counter.Response
			in.Recovery = counter.RecoveryPath
		} else {
			l.logger.Debug("no counter argument", zap.String("objection", objection), zap.Error(err))
		}
	}
	p, err := prompt.Build(in)
	return persona, strat, p, err
}

// generationFailed reports a failed generation. The conversation stays
// active and any belief change from this turn is kept.
func (l *Loop) generationFailed(ctx context.Context, c *conversation, persona belief.Persona, err error) error {
	var pe *generator.ProviderError
	if !errors.As(err, &pe) {
		pe = &generator.ProviderError{Provider: "generator", Persona: persona, Err: err}
		err = pe
	}
	l.metricsMu.Lock()
	l.metricsFor(persona).Failures++
	l.metricsMu.Unlock()

	l.logger.Warn("generation failed",
		zap.String("target", c.targetID),
		zap.String("conversation", c.id),
		zap.String("persona", string(persona)),
		zap.Bool("retryable", pe.Retryable),
		zap.Error(err))
	l.publish(ctx, c.targetID, events.AgentError{ConversationID: c.id, Persona: persona, Error: err.Error()})
	return fmt.Errorf("continue %s: %w", c.targetID, err)
}

// notifyConversion publishes conversionTriggered the first time this
// conversation sees the target converted.
func (l *Loop) notifyConversion(ctx context.Context, c *conversation, tgt *tracker.Target) {
	if tgt.Status != tracker.StatusConverted {
		return
	}
	c.mu.Lock()
	already := c.converted
	c.converted = true
	c.mu.Unlock()
	if already {
		return
	}
	composite := l.tracker.Model().Composite(tgt.State)
	l.logger.Info("conversion in conversation",
		zap.String("target", c.targetID),
		zap.String("conversation", c.id),
		zap.Strings("criteria", tgt.ConversionCriteria))
	l.publish(ctx, c.targetID, events.ConversionTriggered{
		ConversationID: c.id,
		Criteria:       tgt.ConversionCriteria,
		Composite:      composite,
	})
}

// #endregion

// #region lifecycle

// Pause stops a conversation from accepting messages until Resume. Pausing a
// paused conversation does nothing.
func (l *Loop) Pause(targetID string) error {
	c := l.lookup(targetID)
	if c == nil {
		return fmt.Errorf("pause %s: %w", targetID, ErrNoConversation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusActive {
		c.status = StatusPaused
		c.pausedAt = l.now()
	}
	return nil
}

// Resume reopens a paused conversation. Resuming an active one does nothing.
func (l *Loop) Resume(targetID string) error {
	c := l.lookup(targetID)
	if c == nil {
		return fmt.Errorf("resume %s: %w", targetID, ErrNoConversation)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusPaused {
		c.status = StatusActive
		c.resumedAt = l.now()
	}
	return nil
}

// End closes the conversation and returns its summary. It returns nil when
// there is no open conversation, including on a second call.
func (l *Loop) End(ctx context.Context, targetID string) *Summary {
	unlock := l.locks.Lock(targetID)
	defer unlock()
	return l.end(ctx, targetID)
}

// end removes and summarizes the conversation. Caller holds the target lock.
func (l *Loop) end(ctx context.Context, targetID string) *Summary {
	l.mu.Lock()
	c, ok := l.conversations[targetID]
	delete(l.conversations, targetID)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	now := l.now()
	c.mu.Lock()
	c.status = StatusEnded
	sum := &Summary{
		TargetID:        targetID,
		ConversationID:  c.id,
		Duration:        now.Sub(c.startedAt),
		MessageCount:    len(c.messages),
		PersonaSwitches: c.switches,
		StartStage:      c.startStage,
		EndStage:        c.lastStage,
		Status:          string(tracker.StatusNone),
		PersonaMessages: map[belief.Persona]int{},
	}
	for _, m := range c.messages {
		if m.Role == prompt.RoleAgent {
			sum.PersonaMessages[m.Persona]++
		}
	}
	c.mu.Unlock()
	l.selector.Forget(targetID)

	if tgt, err := l.tracker.Get(targetID); err == nil {
		sum.EndStage = l.tracker.Model().Stage(tgt.State)
		sum.Status = string(tgt.Status)
		sum.Beliefs = tgt.State.Vector
	}

	l.logger.Info("conversation ended",
		zap.String("target", targetID),
		zap.String("conversation", c.id),
		zap.Int("messages", sum.MessageCount),
		zap.Int("switches", sum.PersonaSwitches),
		zap.Stringer("start_stage", sum.StartStage),
		zap.Stringer("end_stage", sum.EndStage))
	l.publish(ctx, targetID, events.ConversationEnded{
		ConversationID:  c.id,
		Duration:        sum.Duration,
		MessageCount:    sum.MessageCount,
		PersonaSwitches: sum.PersonaSwitches,
		StartStage:      sum.StartStage,
		EndStage:        sum.EndStage,
		Status:          sum.Status,
		Beliefs:         sum.Beliefs,
		PersonaMessages: sum.PersonaMessages,
	})
	return sum
}

// #endregion

// #region queries

// Transcript returns a copy of the open conversation's messages, or nil.
func (l *Loop) Transcript(targetID string) []Message {
	c := l.lookup(targetID)
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// ActiveDebates lists the targets whose conversation is active, sorted.
func (l *Loop) ActiveDebates() []string {
	l.mu.RLock()
	convs := make([]*conversation, 0, len(l.conversations))
	for _, c := range l.conversations {
		convs = append(convs, c)
	}
	l.mu.RUnlock()

	var out []string
	for _, c := range convs {
		c.mu.Lock()
		if c.status == StatusActive {
			out = append(out, c.targetID)
		}
		c.mu.Unlock()
	}
	sort.Strings(out)
	return out
}

// State reports on the open conversation with targetID.
func (l *Loop) State(targetID string) (State, bool) {
	c := l.lookup(targetID)
	if c == nil {
		return State{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		ConversationID:  c.id,
		Status:          c.status,
		MessageCount:    len(c.messages),
		Persona:         c.persona,
		PersonaSwitches: c.switches,
		Duration:        l.now().Sub(c.startedAt),
	}, true
}

// Metrics returns per-persona generation metrics.
func (l *Loop) Metrics() map[belief.Persona]PersonaMetrics {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	out := make(map[belief.Persona]PersonaMetrics, len(l.metrics))
	for p, m := range l.metrics {
		out[p] = *m
	}
	return out
}

// #endregion

// #region helpers

func (l *Loop) lookup(targetID string) *conversation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conversations[targetID]
}

func (l *Loop) publish(ctx context.Context, targetID string, p events.Payload) {
	if l.emitter != nil {
		l.emitter.Publish(ctx, targetID, p)
	}
}

// observe folds one successful generation into the persona's running metrics.
func (l *Loop) observe(persona belief.Persona, latency time.Duration, text string) {
	l.metricsMu.Lock()
	defer l.metricsMu.Unlock()
	m := l.metricsFor(persona)
	m.Messages++
	m.Tokens += (len(text) + 3) / 4
	m.AverageLatency += (latency - m.AverageLatency) / time.Duration(m.Messages)
}

func (l *Loop) metricsFor(p belief.Persona) *PersonaMetrics {
	m, ok := l.metrics[p]
	if !ok {
		m = &PersonaMetrics{}
		l.metrics[p] = m
	}
	return m
}

func inboundEvent(convID, message string, a signals.Analysis) events.Message {
	return events.Message{
		ConversationID: convID,
		Role:           string(prompt.RoleTarget),
		Content:        message,
		Objections:     objectionNames(a),
		Positives:      signalNames(a),
		Sentiment:      a.Sentiment.Score,
		InferredEvent:  a.Event,
		HighEngagement: a.HighEngagement(),
	}
}

func objectionNames(a signals.Analysis) []string {
	var out []string
	for _, o := range a.Objections {
		out = append(out, string(o.Objection))
	}
	return out
}

func signalNames(a signals.Analysis) []string {
	var out []string
	for _, s := range a.Positives {
		out = append(out, string(s.Signal))
	}
	return out
}

func dimensions(dvs []belief.DimensionValue) []belief.Dimension {
	out := make([]belief.Dimension, len(dvs))
	for i, dv := range dvs {
		out[i] = dv.Dimension
	}
	return out
}

// #endregion
