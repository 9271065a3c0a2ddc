package engine

import (
	"context"
	"sync"

	"autoflow/internal/metrics"
	"autoflow/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Config sizes the engine's worker pool and event queue.
type Config struct {
	QueueSize int
	Workers   int
}

// Engine is the process-wide automation engine instance: matcher,
// orchestrator and recorder behind a bounded event queue. Emit is
// fire-and-forget; nothing that happens downstream ever reaches the
// emitting code path.
type Engine struct {
	matcher      *Matcher
	orchestrator *Orchestrator
	recorder     *Recorder
	logger       *logrus.Logger
	tracer       trace.Tracer

	queue   chan *Event
	workers int
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(cfg Config, matcher *Matcher, orchestrator *Orchestrator, recorder *Recorder, logger *logrus.Logger) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{
		matcher:      matcher,
		orchestrator: orchestrator,
		recorder:     recorder,
		logger:       logger,
		tracer:       otel.Tracer("autoflow/engine"),
		queue:        make(chan *Event, cfg.QueueSize),
		workers:      cfg.Workers,
	}
}

// Start launches the worker pool. Safe to call once per engine.
func (e *Engine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		ctx, e.cancel = context.WithCancel(ctx)
		for i := 0; i < e.workers; i++ {
			e.wg.Add(1)
			go e.worker(ctx)
		}
		e.logger.Infof("automation engine started: %d workers, queue %d", e.workers, cap(e.queue))
	})
}

// Stop drains nothing: in-flight runs finish, queued events not yet picked
// up are abandoned. Callers that need ordering should stop emitters first.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.logger.Info("automation engine stopped")
	})
}

// Emit hands an event to the engine without blocking. When the queue is
// full the event is dropped and counted; business-event volume is unbounded
// relative to engine throughput, so blocking the emitter is never an option.
func (e *Engine) Emit(ev *Event) {
	if ev == nil {
		return
	}
	select {
	case e.queue <- ev:
	default:
		metrics.IncQueueDrop()
		e.logger.Warnf("automation: queue full, dropping event %s (%s)", ev.ID, ev.TriggerType)
	}
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.queue:
			e.Dispatch(ctx, ev)
		}
	}
}

// Dispatch processes one event synchronously: match, run, record. Exposed
// for the scanner and for tests; Emit is the asynchronous entry point.
func (e *Engine) Dispatch(ctx context.Context, ev *Event) {
	ctx, span := e.tracer.Start(ctx, "automation.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.trigger", ev.TriggerType),
	)

	matched, err := e.matcher.Match(ctx, ev)
	if err != nil {
		span.RecordError(err)
		e.logger.Warnf("automation: match failed for event %s: %v", ev.ID, err)
		return
	}
	span.SetAttributes(attribute.Int("event.matched", len(matched)))

	for i := range matched {
		exec := e.orchestrator.Run(ctx, &matched[i], ev)
		e.recorder.Record(ctx, exec)
	}
}

// RunRule processes one event against a single automation, skipping the
// trigger-type match. The scanner uses this so a candidate that crossed one
// rule's time threshold never reaches sibling rules with different
// thresholds. Conditions still apply; returns whether the rule fired.
func (e *Engine) RunRule(ctx context.Context, rule *models.Automation, ev *Event) bool {
	ctx, span := e.tracer.Start(ctx, "automation.run_rule")
	defer span.End()
	span.SetAttributes(
		attribute.Int("automation.id", int(rule.ID)),
		attribute.String("event.trigger", ev.TriggerType),
	)

	conds, err := ParseConditions(rule.Conditions)
	if err != nil {
		e.logger.Warnf("automation %d: invalid conditions: %v", rule.ID, err)
		return false
	}
	if !EvaluateConditions(conds, ev) {
		return false
	}
	exec := e.orchestrator.Run(ctx, rule, ev)
	e.recorder.Record(ctx, exec)
	return true
}
