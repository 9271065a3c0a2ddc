package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autoflow/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Execution statuses.
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusFailed         = "failed"
	StatusSkipped        = "skipped"
)

// Orchestrator runs one matched automation end to end and shapes the
// execution record. It never returns an error to its caller: every fault,
// including a panic, ends up on the record as status=failed.
type Orchestrator struct {
	executor *Executor
	logger   *logrus.Logger
	tracer   trace.Tracer
}

func NewOrchestrator(executor *Executor, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		executor: executor,
		logger:   logger,
		tracer:   otel.Tracer("autoflow/engine"),
	}
}

// Run executes the automation's action list in order, action N+1 starting
// only after action N's result is captured. Actions continue past failures;
// the aggregate status reflects the mix.
func (o *Orchestrator) Run(ctx context.Context, automation *models.Automation, ev *Event) (exec *models.AutomationExecution) {
	ctx, span := o.tracer.Start(ctx, "automation.run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("automation.id", int(automation.ID)),
		attribute.String("automation.trigger", ev.TriggerType),
	)

	started := time.Now()
	exec = &models.AutomationExecution{
		AutomationID:  automation.ID,
		ProjectID:     automation.ProjectID,
		TriggerType:   ev.TriggerType,
		EntityType:    ev.EntityType,
		EntityID:      ev.EntityID,
		EventSnapshot: ev.Snapshot(),
		ConditionsMet: true,
		ActionResults: "[]",
		ExecutedAt:    started,
	}
	defer func() {
		if r := recover(); r != nil {
			exec.Status = StatusFailed
			exec.ErrorMessage = fmt.Sprintf("internal fault: %v", r)
			o.logger.Errorf("automation %d: run panicked: %v", automation.ID, r)
		}
		exec.DurationMs = time.Since(started).Milliseconds()
		span.SetAttributes(attribute.String("automation.status", exec.Status))
	}()

	// Deactivation between match and execute produces a skipped record,
	// not a run with zero effects silently recorded as success.
	if !automation.IsActive {
		exec.Status = StatusSkipped
		exec.ErrorMessage = "automation deactivated before execution"
		return exec
	}

	actions, err := ParseActions(automation.Actions)
	if err != nil {
		exec.Status = StatusFailed
		exec.ErrorMessage = fmt.Sprintf("invalid actions: %v", err)
		return exec
	}

	results := make([]ActionResult, 0, len(actions))
	succeeded := 0
	for _, action := range actions {
		res := o.executor.Execute(ctx, action, ev)
		results = append(results, res)
		if res.Success {
			succeeded++
		} else {
			o.logger.Warnf("automation %d: action %s failed: %s", automation.ID, action.Type, res.Error)
		}
	}
	exec.ActionResults = marshalResults(results)

	switch {
	case len(results) == 0 || succeeded == len(results):
		exec.Status = StatusSuccess
	case succeeded == 0:
		exec.Status = StatusFailed
		exec.ErrorMessage = "all actions failed"
	default:
		exec.Status = StatusPartialFailure
	}
	return exec
}

func marshalResults(results []ActionResult) string {
	b, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(b)
}
