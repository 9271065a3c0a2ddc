package engine

import (
	"context"
	"testing"
	"time"

	"autoflow/internal/metrics"
	"autoflow/internal/models"
)

func TestEngine_DispatchRecordsExecution(t *testing.T) {
	db := newEngineTestDB(t)
	fake := &fakeCollab{}
	matcher := NewMatcher(db, quietLogger())
	orchestrator := NewOrchestrator(NewExecutor(allCollaborators(fake), quietLogger()), quietLogger())
	recorder := NewRecorder(db, quietLogger())
	eng := New(Config{}, matcher, orchestrator, recorder, quietLogger())

	rule := seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "tag new people", TriggerType: TriggerEntityCreated, IsActive: true,
		TriggerConfig: `{"entity_type":"person"}`,
		Actions:       `[{"type":"add_tag","config":{"tag":"new"}}]`,
	})

	eng.Dispatch(context.Background(), NewEvent(1, TriggerEntityCreated, "person", "12", nil))

	var execs []models.AutomationExecution
	if err := db.Find(&execs).Error; err != nil {
		t.Fatal(err)
	}
	if len(execs) != 1 {
		t.Fatalf("expected 1 execution record, got %d", len(execs))
	}
	if execs[0].Status != StatusSuccess || execs[0].AutomationID != rule.ID {
		t.Fatalf("record = %+v", execs[0])
	}
	if len(fake.calls) != 1 || fake.calls[0] != "add_tag:new" {
		t.Fatalf("collaborator calls: %v", fake.calls)
	}

	var reloaded models.Automation
	if err := db.First(&reloaded, rule.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.ExecutionCount != 1 {
		t.Fatalf("execution_count = %d, want 1", reloaded.ExecutionCount)
	}
	if reloaded.LastExecutedAt == nil {
		t.Fatal("last_executed_at must be set after a run")
	}
}

func TestEngine_DispatchNoMatchRecordsNothing(t *testing.T) {
	db := newEngineTestDB(t)
	eng := New(Config{},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(Collaborators{}, quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())

	eng.Dispatch(context.Background(), NewEvent(1, TriggerEntityCreated, "person", "1", nil))

	var count int64
	db.Model(&models.AutomationExecution{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no execution records, got %d", count)
	}
}

func TestEngine_EmitProcessesAsynchronously(t *testing.T) {
	db := newEngineTestDB(t)
	fake := &fakeCollab{}
	eng := New(Config{QueueSize: 16, Workers: 2},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(allCollaborators(fake), quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "log updates", TriggerType: TriggerEntityUpdated, IsActive: true,
		Actions: `[{"type":"create_activity","config":{"body":"updated"}}]`,
	})

	eng.Start(context.Background())
	defer eng.Stop()

	eng.Emit(NewEvent(1, TriggerEntityUpdated, "opportunity", "3", nil))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		db.Model(&models.AutomationExecution{}).Count(&count)
		if count == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("emitted event was never processed")
}

func TestEngine_EmitDropsWhenQueueFull(t *testing.T) {
	db := newEngineTestDB(t)
	// Engine never started: queue fills and overflow is dropped.
	eng := New(Config{QueueSize: 2, Workers: 1},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(Collaborators{}, quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())

	before := metrics.QueueDrops()
	for i := 0; i < 5; i++ {
		eng.Emit(NewEvent(1, TriggerEntityCreated, "person", "1", nil))
	}
	if got := metrics.QueueDrops() - before; got != 3 {
		t.Fatalf("expected 3 dropped events, got %d", got)
	}
}

func TestEngine_EmitNilIsNoop(t *testing.T) {
	db := newEngineTestDB(t)
	eng := New(Config{QueueSize: 1, Workers: 1},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(Collaborators{}, quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())
	eng.Emit(nil)
	if len(eng.queue) != 0 {
		t.Fatal("nil event must not be queued")
	}
}

func TestEngine_RunRuleTouchesOnlyThatRule(t *testing.T) {
	db := newEngineTestDB(t)
	fake := &fakeCollab{}
	eng := New(Config{},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(allCollaborators(fake), quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())

	target := seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "target", TriggerType: TriggerEntityInactive, IsActive: true,
		Actions: `[{"type":"add_tag","config":{"tag":"stale"}}]`,
	})
	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "sibling", TriggerType: TriggerEntityInactive, IsActive: true,
		Actions: `[{"type":"add_tag","config":{"tag":"other"}}]`,
	})

	ev := NewEvent(1, TriggerEntityInactive, "organization", "4", nil)
	if !eng.RunRule(context.Background(), target, ev) {
		t.Fatal("rule should fire")
	}

	var execs []models.AutomationExecution
	db.Find(&execs)
	if len(execs) != 1 || execs[0].AutomationID != target.ID {
		t.Fatalf("execs = %+v", execs)
	}
	if len(fake.calls) != 1 || fake.calls[0] != "add_tag:stale" {
		t.Fatalf("collaborator calls: %v", fake.calls)
	}
}

func TestEngine_RunRuleAppliesConditions(t *testing.T) {
	db := newEngineTestDB(t)
	fake := &fakeCollab{}
	eng := New(Config{},
		NewMatcher(db, quietLogger()),
		NewOrchestrator(NewExecutor(allCollaborators(fake), quietLogger()), quietLogger()),
		NewRecorder(db, quietLogger()),
		quietLogger())

	rule := seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "big only", TriggerType: TriggerEntityInactive, IsActive: true,
		Conditions: `[{"field":"amount","operator":"greater_than","value":10000}]`,
		Actions:    `[{"type":"add_tag","config":{"tag":"stale"}}]`,
	})

	ev := NewEvent(1, TriggerEntityInactive, "opportunity", "4",
		map[string]interface{}{"amount": 500})
	if eng.RunRule(context.Background(), rule, ev) {
		t.Fatal("conditions fail, rule must not fire")
	}
	var count int64
	db.Model(&models.AutomationExecution{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no executions, got %d", count)
	}
}

func TestEngine_SkippedRunDoesNotBumpStats(t *testing.T) {
	db := newEngineTestDB(t)
	orchestrator := NewOrchestrator(NewExecutor(Collaborators{}, quietLogger()), quietLogger())
	recorder := NewRecorder(db, quietLogger())

	rule := seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "paused", TriggerType: TriggerEntityCreated, IsActive: false,
		Actions: `[{"type":"add_tag","config":{"tag":"x"}}]`,
	})

	exec := orchestrator.Run(context.Background(), rule, NewEvent(1, TriggerEntityCreated, "person", "1", nil))
	recorder.Record(context.Background(), exec)

	var execs []models.AutomationExecution
	db.Find(&execs)
	if len(execs) != 1 || execs[0].Status != StatusSkipped {
		t.Fatalf("execs = %+v", execs)
	}

	var reloaded models.Automation
	db.First(&reloaded, rule.ID)
	if reloaded.ExecutionCount != 0 {
		t.Fatalf("skipped run must not bump execution_count, got %d", reloaded.ExecutionCount)
	}
}
