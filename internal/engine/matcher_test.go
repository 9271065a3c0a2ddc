package engine

import (
	"context"
	"testing"

	"autoflow/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newEngineTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Automation{},
		&models.AutomationExecution{},
		&models.AutomationFireMark{},
		&models.Task{},
		&models.Opportunity{},
		&models.Person{},
		&models.Organization{},
	); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func seedAutomation(t *testing.T, db *gorm.DB, a *models.Automation) *models.Automation {
	t.Helper()
	if a.Actions == "" {
		a.Actions = "[]"
	}
	if a.Conditions == "" {
		a.Conditions = "[]"
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed automation: %v", err)
	}
	return a
}

func TestMatcher_FiltersProjectTriggerActive(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "right", TriggerType: TriggerEntityCreated, IsActive: true})
	seedAutomation(t, db, &models.Automation{ProjectID: 2, Name: "other project", TriggerType: TriggerEntityCreated, IsActive: true})
	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "other trigger", TriggerType: TriggerEntityDeleted, IsActive: true})
	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "inactive", TriggerType: TriggerEntityCreated, IsActive: false})

	ev := NewEvent(1, TriggerEntityCreated, "person", "9", nil)
	matched, err := m.Match(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].Name != "right" {
		t.Fatalf("matched = %+v", matched)
	}
}

func TestMatcher_CreationOrder(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "first", TriggerType: TriggerEntityUpdated, IsActive: true})
	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "second", TriggerType: TriggerEntityUpdated, IsActive: true})
	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "third", TriggerType: TriggerEntityUpdated, IsActive: true})

	matched, err := m.Match(context.Background(), NewEvent(1, TriggerEntityUpdated, "person", "1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(matched))
	}
	for i, want := range []string{"first", "second", "third"} {
		if matched[i].Name != want {
			t.Fatalf("position %d: got %s, want %s", i, matched[i].Name, want)
		}
	}
}

func TestMatcher_ConditionsFilter(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "big deals", TriggerType: TriggerEntityUpdated, IsActive: true,
		Conditions: `[{"field":"amount","operator":"greater_than","value":10000}]`,
	})

	small := NewEvent(1, TriggerEntityUpdated, "opportunity", "1", map[string]interface{}{"amount": 500})
	matched, err := m.Match(context.Background(), small)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 0 {
		t.Fatalf("small deal should not match, got %+v", matched)
	}

	big := NewEvent(1, TriggerEntityUpdated, "opportunity", "1", map[string]interface{}{"amount": 50000})
	matched, err = m.Match(context.Background(), big)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 {
		t.Fatalf("big deal should match, got %d", len(matched))
	}
}

func TestMatcher_EntityTypeScoping(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "persons only", TriggerType: TriggerEntityCreated, IsActive: true,
		TriggerConfig: `{"entity_type":"person"}`,
	})

	matched, _ := m.Match(context.Background(), NewEvent(1, TriggerEntityCreated, "organization", "3", nil))
	if len(matched) != 0 {
		t.Fatal("organization event must not match a person-scoped rule")
	}
	matched, _ = m.Match(context.Background(), NewEvent(1, TriggerEntityCreated, "person", "3", nil))
	if len(matched) != 1 {
		t.Fatal("person event must match a person-scoped rule")
	}
}

func TestMatcher_FieldChangedFilter(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "watch status", TriggerType: TriggerFieldChanged, IsActive: true,
		TriggerConfig: `{"field_name":"status"}`,
	})

	ev := NewEvent(1, TriggerFieldChanged, "task", "4", nil)
	ev.Metadata = map[string]interface{}{"field_name": "priority"}
	matched, _ := m.Match(context.Background(), ev)
	if len(matched) != 0 {
		t.Fatal("priority change must not match a status watcher")
	}

	ev.Metadata["field_name"] = "status"
	matched, _ = m.Match(context.Background(), ev)
	if len(matched) != 1 {
		t.Fatal("status change must match")
	}
}

func TestMatcher_StageTransitionFilter(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "won from proposal", TriggerType: TriggerStageChanged, IsActive: true,
		TriggerConfig: `{"from_stage":"proposal","to_stage":"won"}`,
	})
	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "any to won", TriggerType: TriggerStageChanged, IsActive: true,
		TriggerConfig: `{"to_stage":"won"}`,
	})

	ev := NewEvent(1, TriggerStageChanged, "opportunity", "8", map[string]interface{}{"stage": "won"})
	ev.PreviousData = map[string]interface{}{"stage": "negotiation"}
	matched, _ := m.Match(context.Background(), ev)
	if len(matched) != 1 || matched[0].Name != "any to won" {
		t.Fatalf("matched = %+v", matched)
	}

	ev.PreviousData["stage"] = "proposal"
	matched, _ = m.Match(context.Background(), ev)
	if len(matched) != 2 {
		t.Fatalf("both rules should match, got %d", len(matched))
	}
}

func TestMatcher_SkipsMalformedRule(t *testing.T) {
	db := newEngineTestDB(t)
	m := NewMatcher(db, quietLogger())

	seedAutomation(t, db, &models.Automation{
		ProjectID: 1, Name: "broken", TriggerType: TriggerEntityCreated, IsActive: true,
		Conditions: "{oops",
	})
	seedAutomation(t, db, &models.Automation{ProjectID: 1, Name: "healthy", TriggerType: TriggerEntityCreated, IsActive: true})

	matched, err := m.Match(context.Background(), NewEvent(1, TriggerEntityCreated, "person", "1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 || matched[0].Name != "healthy" {
		t.Fatalf("malformed rule must be skipped, matched = %+v", matched)
	}
}
