package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/persuasion-state/internal/audit"
	"github.com/danielpatrickdp/persuasion-state/internal/belief"
	"github.com/danielpatrickdp/persuasion-state/internal/config"
	"github.com/danielpatrickdp/persuasion-state/internal/debate"
	"github.com/danielpatrickdp/persuasion-state/internal/events"
	"github.com/danielpatrickdp/persuasion-state/internal/generator"
	"github.com/danielpatrickdp/persuasion-state/internal/logging"
	"github.com/danielpatrickdp/persuasion-state/internal/scheduler"
	"github.com/danielpatrickdp/persuasion-state/internal/store"
	"github.com/danielpatrickdp/persuasion-state/internal/tracker"
)

// app is the wired process: store-backed tracker, bus with its sinks, the
// debate loop and the scheduler.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	model   *belief.Model
	bus     *events.Bus
	store   *store.Store
	tracker *tracker.Tracker
	loop    *debate.Loop
	gen     generator.Generator
	sched   *scheduler.Scheduler
	events  *logging.EventLog

	closers []func() error
}

// openApp wires every component from cfg and loads the stored targets.
// gen overrides the configured generator when non-nil.
func openApp(cfg *config.Config, lg *zap.Logger, gen generator.Generator) (_ *app, err error) {
	a := &app{cfg: cfg, logger: lg, model: belief.NewModel(cfg.Tables())}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()

	a.store, err = store.Open(cfg.Database, a.model)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.bus = events.NewBus(events.WithLogger(lg.Named("bus")))

	if cfg.EventLog.Enabled {
		a.events, err = logging.NewEventLog(a.store.DB(),
			logging.WithBufferSize(cfg.EventLog.BufferSize),
			logging.WithFlushInterval(cfg.FlushInterval()),
			logging.WithLogger(lg),
		)
		if err != nil {
			return nil, err
		}
		a.events.Start()
		a.closers = append(a.closers, a.events.Close)
		detach := a.events.Attach(a.bus)
		a.closers = append(a.closers, func() error { detach(); return nil })
	}

	if len(cfg.Kafka.Brokers) > 0 {
		var types []events.Type
		for _, t := range cfg.Kafka.Types {
			types = append(types, events.Type(t))
		}
		opts := []audit.Option{audit.WithLogger(lg)}
		if len(types) > 0 {
			opts = append(opts, audit.WithTypes(types...))
		}
		sink, err := audit.NewSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, sink.Close)
		detach := sink.Attach(a.bus)
		a.closers = append(a.closers, func() error { detach(); return nil })
	}

	a.tracker = tracker.New(a.model,
		tracker.WithEmitter(a.bus),
		tracker.WithLogger(lg),
		tracker.WithMaxHistory(cfg.Tracker.MaxHistory),
	)
	// the active snapshot carries conversion records and persona stats;
	// the targets table is newer for individual targets
	if rec, err := a.store.RestoreActive(a.tracker); err == nil {
		lg.Debug("snapshot restored", zap.String("snapshot", rec.ID))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	n, err := a.store.LoadTracker(a.tracker)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}
	lg.Debug("targets loaded", zap.Int("count", n), zap.String("db", cfg.Database))

	if gen == nil {
		var closeGen func() error
		gen, closeGen, err = newGenerator(cfg)
		if err != nil {
			return nil, err
		}
		if closeGen != nil {
			a.closers = append(a.closers, closeGen)
		}
	}
	a.gen = gen
	a.loop = debate.New(a.tracker, gen, debate.WithEmitter(a.bus), debate.WithLogger(lg))

	a.sched = scheduler.New(scheduler.WithLogger(lg))
	a.closers = append(a.closers, func() error { a.sched.Stop(); return nil })
	if cfg.Decay.Enabled {
		if err := a.sched.StartDecayJob(a.tracker, cfg.DecayInterval()); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// newGenerator builds the configured generator and, for remote kinds, the
// function that closes its connection.
func newGenerator(cfg *config.Config) (generator.Generator, func() error, error) {
	switch cfg.Generator.Kind {
	case config.GeneratorGRPC, config.GeneratorGRPCStream:
		c, err := generator.NewGRPCClient(cfg.Generator.Addr)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to generator at %s: %w", cfg.Generator.Addr, err)
		}
		if cfg.Generator.Kind == config.GeneratorGRPCStream {
			return generator.StreamGenerator{Streamer: c}, c.Close, nil
		}
		return c, c.Close, nil
	default:
		return generator.NewMock(), nil, nil
	}
}

// persist writes every target and commits a snapshot of the registry.
func (a *app) persist() error {
	if err := a.store.SaveTracker(a.tracker); err != nil {
		return fmt.Errorf("save targets: %w", err)
	}
	rec, err := a.store.CommitSnapshot(a.tracker.Export())
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	a.logger.Debug("snapshot committed", zap.String("snapshot", rec.ID), zap.Int("targets", rec.TargetCount))
	return nil
}

// close releases components in reverse order of creation.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
