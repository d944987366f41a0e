// Package events is the in-process notification hub. Components publish
// typed payloads; transport and audit collaborators register handlers or
// subscribe to the raw stream.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxLog is the rolling log capacity when none is configured.
const DefaultMaxLog = 1000

// Handler reacts to an event. A returned error is logged and, for type
// handlers, re-published as a system error. It never stops dispatch.
type Handler func(ctx context.Context, e Event) error

// HandlerID identifies a registration for Unregister.
type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

type subscription struct {
	id HandlerID
	fn func(Event)
}

// Emitter is the publishing side of the bus, as seen by producers.
type Emitter interface {
	Publish(ctx context.Context, targetID string, p Payload) Event
}

// #region bus
// Bus fans events out to handlers and keeps a bounded log of what it saw.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[Type][]registration
	subscribers []subscription
	nextID      HandlerID

	logMu  sync.Mutex
	log    []Event
	maxLog int

	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Bus.
type Option func(*Bus)

// WithMaxLog bounds the rolling log. Values below 2 fall back to DefaultMaxLog.
func WithMaxLog(n int) Option {
	return func(b *Bus) {
		if n >= 2 {
			b.maxLog = n
		}
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[Type][]registration),
		maxLog:   DefaultMaxLog,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Register adds a handler for t. Use Wildcard to receive every event.
func (b *Bus) Register(t Type, h Handler) HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[t] = append(b.handlers[t], registration{id: id, fn: h})
	return id
}

// Unregister removes a handler. It reports whether the handler was present.
func (b *Bus) Unregister(t Type, id HandlerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[t]
	for i, r := range regs {
		if r.id == id {
			b.handlers[t] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribe receives every event after handlers have run. Call the returned
// function to stop.
func (b *Bus) Subscribe(fn func(Event)) (cancel func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers = append(b.subscribers, subscription{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subscribers {
			if s.id == id {
				b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
				return
			}
		}
	}
}

// #endregion bus

// #region emit
// Publish builds an event from a payload and emits it synchronously.
func (b *Bus) Publish(ctx context.Context, targetID string, p Payload) Event {
	return b.Emit(ctx, Event{Type: p.EventType(), TargetID: targetID, Payload: p})
}

// Emit dispatches to type handlers, then wildcard handlers, then subscribers.
// Failures are isolated per handler.
func (b *Bus) Emit(ctx context.Context, e Event) Event {
	e = b.enrich(e)
	b.record(e)

	typeHandlers, wildcard, subs := b.snapshot(e.Type)

	for _, r := range typeHandlers {
		if err := b.call(ctx, r.fn, e); err != nil {
			b.logger.Error("handler failed", zap.String("type", string(e.Type)), zap.Error(err))
			if e.Type != TypeSystemError {
				b.Emit(ctx, Event{
					Type:     TypeSystemError,
					TargetID: e.TargetID,
					Payload:  SystemError{Error: err.Error(), Original: e.Type},
				})
			}
		}
	}
	for _, r := range wildcard {
		if err := b.call(ctx, r.fn, e); err != nil {
			b.logger.Error("wildcard handler failed", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}
	for _, s := range subs {
		b.notify(s.fn, e)
	}
	return e
}

// EmitAsync runs every handler and subscriber concurrently and waits for all
// of them. Failures are logged and do not cancel the others.
func (b *Bus) EmitAsync(ctx context.Context, e Event) Event {
	e = b.enrich(e)
	b.record(e)

	typeHandlers, wildcard, subs := b.snapshot(e.Type)

	var g errgroup.Group
	for _, r := range append(typeHandlers, wildcard...) {
		fn := r.fn
		g.Go(func() error {
			if err := b.call(ctx, fn, e); err != nil {
				b.logger.Error("async handler failed", zap.String("type", string(e.Type)), zap.Error(err))
			}
			return nil
		})
	}
	for _, s := range subs {
		fn := s.fn
		g.Go(func() error {
			b.notify(fn, e)
			return nil
		})
	}
	_ = g.Wait()
	return e
}

func (b *Bus) enrich(e Event) Event {
	if e.ID == "" {
		e.ID = "evt_" + uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}
	if e.Type == "" && e.Payload != nil {
		e.Type = e.Payload.EventType()
	}
	return e
}

func (b *Bus) snapshot(t Type) (typed, wildcard []registration, subs []subscription) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	typed = append([]registration(nil), b.handlers[t]...)
	if t != Wildcard {
		wildcard = append([]registration(nil), b.handlers[Wildcard]...)
	}
	subs = append([]subscription(nil), b.subscribers...)
	return typed, wildcard, subs
}

func (b *Bus) call(ctx context.Context, h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, e)
}

func (b *Bus) notify(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic", zap.String("type", string(e.Type)), zap.Any("panic", r))
		}
	}()
	fn(e)
}

// #endregion emit

// #region log
// Query filters the rolling log. Zero fields match everything.
type Query struct {
	Type     Type
	TargetID string
	Since    time.Time
	Limit    int
}

func (b *Bus) record(e Event) {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	b.log = append(b.log, e)
	if len(b.log) > b.maxLog {
		keep := b.maxLog / 2
		b.log = append([]Event(nil), b.log[len(b.log)-keep:]...)
	}
}

// Log returns matching events oldest first. Limit keeps the newest matches.
func (b *Bus) Log(q Query) []Event {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	out := make([]Event, 0, len(b.log))
	for _, e := range b.log {
		if q.Type != "" && e.Type != q.Type {
			continue
		}
		if q.TargetID != "" && e.TargetID != q.TargetID {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// ClearLog empties the rolling log.
func (b *Bus) ClearLog() {
	b.logMu.Lock()
	b.log = nil
	b.logMu.Unlock()
}

// Activity is a condensed log entry.
type Activity struct {
	Type      Type      `json:"type"`
	TargetID  string    `json:"targetId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats summarizes the rolling log.
type Stats struct {
	Total          int          `json:"totalEvents"`
	ByType         map[Type]int `json:"byType"`
	RecentActivity []Activity   `json:"recentActivity"`
}

// Stats counts logged events by type and lists the last ten.
func (b *Bus) Stats() Stats {
	b.logMu.Lock()
	defer b.logMu.Unlock()
	st := Stats{Total: len(b.log), ByType: make(map[Type]int)}
	for _, e := range b.log {
		st.ByType[e.Type]++
	}
	start := len(b.log) - 10
	if start < 0 {
		start = 0
	}
	for _, e := range b.log[start:] {
		st.RecentActivity = append(st.RecentActivity, Activity{Type: e.Type, TargetID: e.TargetID, Timestamp: e.Timestamp})
	}
	return st
}

// #endregion log
