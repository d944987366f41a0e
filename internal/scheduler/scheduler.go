// Package scheduler runs keyed one-shot and recurring callbacks.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// #region types

// Func is a scheduled callback. Its context is cancelled by Stop.
type Func func(ctx context.Context) error

// Kind distinguishes one-shot from recurring tasks.
type Kind string

const (
	KindOnce      Kind = "once"
	KindRecurring Kind = "recurring"
)

// RecurringOptions tune ScheduleRecurring. MaxRuns of zero means unbounded.
type RecurringOptions struct {
	Immediate bool
	MaxRuns   int
}

// Info describes a scheduled task.
type Info struct {
	ID           string        `json:"taskId"`
	Kind         Kind          `json:"type"`
	ScheduledFor time.Time     `json:"scheduledFor,omitempty"`
	Remaining    time.Duration `json:"remaining,omitempty"`
	Interval     time.Duration `json:"interval,omitempty"`
	LastRun      time.Time     `json:"lastRun,omitempty"`
	RunCount     int           `json:"runCount"`
	NextRun      time.Time     `json:"nextRun,omitempty"`
}

type task struct {
	id       string
	kind     Kind
	fn       Func
	interval time.Duration
	maxRuns  int
	due      time.Time
	done     chan struct{}

	// mu decides whether a run may start. Cancel flips canceled under it,
	// so no run begins after Cancel returns.
	mu       sync.Mutex
	canceled bool
	lastRun  time.Time
	runCount int
}

// #endregion types

// #region scheduler

// Scheduler owns every task goroutine it starts; Stop waits for them.
type Scheduler struct {
	logger *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for callback failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l.Named("scheduler")
		}
	}
}

// WithClock overrides the clock used for task info.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New returns a running scheduler.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		logger: zap.NewNop(),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*task),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ErrStopped is returned when scheduling on a stopped scheduler.
var ErrStopped = errors.New("scheduler stopped")

// ScheduleOnce runs fn once after delay. An existing task with the same id
// is cancelled first.
func (s *Scheduler) ScheduleOnce(id string, fn Func, delay time.Duration) error {
	t := &task{id: id, kind: KindOnce, fn: fn, done: make(chan struct{})}
	if err := s.install(t, func() { t.due = s.now().Add(delay) }); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.run(t)
			s.remove(t)
		case <-t.done:
		}
	}()
	return nil
}

// ScheduleRecurring runs fn every interval. With Immediate it also runs once
// right away; with MaxRuns it stops itself after that many runs.
func (s *Scheduler) ScheduleRecurring(id string, fn Func, interval time.Duration, opts RecurringOptions) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", id)
	}
	t := &task{id: id, kind: KindRecurring, fn: fn, interval: interval, maxRuns: opts.MaxRuns, done: make(chan struct{})}
	if err := s.install(t, nil); err != nil {
		return err
	}
	go func() {
		defer s.wg.Done()
		if opts.Immediate && !s.run(t) {
			s.remove(t)
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.run(t) {
					s.remove(t)
					return
				}
			case <-t.done:
				return
			}
		}
	}()
	return nil
}

func (s *Scheduler) install(t *task, init func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("schedule %s: %w", t.id, ErrStopped)
	}
	if old, ok := s.tasks[t.id]; ok {
		old.stop()
	}
	if init != nil {
		init()
	}
	s.tasks[t.id] = t
	s.wg.Add(1)
	return nil
}

// run executes one invocation. It returns false once the task must not run
// again, either because it was cancelled or reached MaxRuns.
func (s *Scheduler) run(t *task) bool {
	t.mu.Lock()
	if t.canceled || (t.maxRuns > 0 && t.runCount >= t.maxRuns) {
		t.mu.Unlock()
		return false
	}
	t.runCount++
	t.lastRun = s.now()
	more := t.kind == KindRecurring && (t.maxRuns == 0 || t.runCount < t.maxRuns)
	t.mu.Unlock()

	s.invoke(t)
	return more
}

func (s *Scheduler) invoke(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", zap.String("task", t.id), zap.Any("panic", r))
		}
	}()
	if err := t.fn(s.ctx); err != nil {
		s.logger.Warn("scheduled task failed", zap.String("task", t.id), zap.Error(err))
	}
}

// remove deletes t from the registry unless it was already replaced.
func (s *Scheduler) remove(t *task) {
	s.mu.Lock()
	if s.tasks[t.id] == t {
		delete(s.tasks, t.id)
	}
	s.mu.Unlock()
}

func (t *task) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.canceled {
		t.canceled = true
		close(t.done)
	}
}

// Cancel stops a task. It reports whether the task existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if ok {
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if ok {
		t.stop()
	}
	return ok
}

// CancelAll stops every task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = make(map[string]*task)
	s.mu.Unlock()
	for _, t := range tasks {
		t.stop()
	}
}

// Stop cancels every task, cancels the callback context and waits for all
// task goroutines to exit. Later schedule calls fail with ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.CancelAll()
	s.cancel()
	s.wg.Wait()
}

// #endregion scheduler

// #region info

// Info reports on one task.
func (s *Scheduler) Info(id string) (Info, bool) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return Info{}, false
	}
	return s.info(t), true
}

// Tasks reports on every task, ordered by id.
func (s *Scheduler) Tasks() []Info {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	out := make([]Info, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.info(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) info(t *task) Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := s.now()
	in := Info{ID: t.id, Kind: t.kind, LastRun: t.lastRun, RunCount: t.runCount}
	switch t.kind {
	case KindOnce:
		in.ScheduledFor = t.due
		in.Remaining = max(0, t.due.Sub(now))
	case KindRecurring:
		in.Interval = t.interval
		in.NextRun = now
		if !t.lastRun.IsZero() {
			in.NextRun = t.lastRun.Add(t.interval)
		}
	}
	return in
}

// #endregion info
