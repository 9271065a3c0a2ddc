package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

// fakeCollab implements every collaborator contract; err, when set, is
// returned from every call.
type fakeCollab struct {
	err   error
	calls []string
}

func (f *fakeCollab) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeCollab) Create(ctx context.Context, projectID uint, fields map[string]interface{}) (string, error) {
	f.record("create_task")
	if f.err != nil {
		return "", f.err
	}
	return "42", nil
}

func (f *fakeCollab) Update(ctx context.Context, entityType, entityID, fieldName string, value interface{}) error {
	f.record(fmt.Sprintf("update:%s.%s", entityType, fieldName))
	return f.err
}

func (f *fakeCollab) ChangeStage(ctx context.Context, entityID, toStage string) error {
	f.record("change_stage:" + toStage)
	return f.err
}

func (f *fakeCollab) ChangeStatus(ctx context.Context, entityType, entityID, toStatus string) error {
	f.record("change_status:" + toStatus)
	return f.err
}

func (f *fakeCollab) Assign(ctx context.Context, entityType, entityID string, userID uint) error {
	f.record(fmt.Sprintf("assign:%d", userID))
	return f.err
}

func (f *fakeCollab) Notify(ctx context.Context, userID uint, payload map[string]interface{}) error {
	f.record(fmt.Sprintf("notify:%d", userID))
	return f.err
}

func (f *fakeCollab) SendFromTemplate(ctx context.Context, templateID, recipient string, variables map[string]interface{}) error {
	f.record("email:" + recipient)
	return f.err
}

func (f *fakeCollab) Enroll(ctx context.Context, personID uint, sequenceID, connectionID string) error {
	f.record("enroll:" + sequenceID)
	return f.err
}

func (f *fakeCollab) AddTag(ctx context.Context, entityType, entityID, tag string) error {
	f.record("add_tag:" + tag)
	return f.err
}

func (f *fakeCollab) RemoveTag(ctx context.Context, entityType, entityID, tag string) error {
	f.record("remove_tag:" + tag)
	return f.err
}

func (f *fakeCollab) StartResearch(ctx context.Context, entityType, entityID string) (string, error) {
	f.record("research")
	if f.err != nil {
		return "", f.err
	}
	return "job-1", nil
}

func (f *fakeCollab) Log(ctx context.Context, entry ActivityEntry) error {
	f.record("activity:" + entry.Kind)
	return f.err
}

func (f *fakeCollab) Fire(ctx context.Context, eventType string, payload map[string]interface{}) error {
	f.record("webhook:" + eventType)
	return f.err
}

func allCollaborators(f *fakeCollab) Collaborators {
	return Collaborators{
		Tasks:      f,
		Fields:     f,
		Stages:     f,
		Owners:     f,
		Notifier:   f,
		Mailer:     f,
		Sequences:  f,
		Tags:       f,
		Research:   f,
		Activities: f,
		Webhooks:   f,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestExecutor_DispatchesEveryActionType(t *testing.T) {
	fake := &fakeCollab{}
	ex := NewExecutor(allCollaborators(fake), quietLogger())
	ev := evalEvent(map[string]interface{}{"email": "p@example.com"})
	ev.EntityType = "person"
	ev.EntityID = "7"

	actions := []Action{
		{Type: ActionCreateTask, Config: map[string]interface{}{"title": "Follow up"}},
		{Type: ActionUpdateField, Config: map[string]interface{}{"field": "priority", "value": "high"}},
		{Type: ActionChangeStage, Config: map[string]interface{}{"stage": "proposal"}},
		{Type: ActionChangeStatus, Config: map[string]interface{}{"status": "on_hold"}},
		{Type: ActionAssignOwner, Config: map[string]interface{}{"user_id": 3}},
		{Type: ActionSendNotification, Config: map[string]interface{}{"user_id": 3, "message": "hi"}},
		{Type: ActionSendEmail, Config: map[string]interface{}{"template_id": "tpl-1", "recipient_field": "email"}},
		{Type: ActionEnrollInSequence, Config: map[string]interface{}{"sequence_id": "seq-1"}},
		{Type: ActionAddTag, Config: map[string]interface{}{"tag": "hot"}},
		{Type: ActionRemoveTag, Config: map[string]interface{}{"tag": "cold"}},
		{Type: ActionRunAIResearch, Config: map[string]interface{}{}},
		{Type: ActionCreateActivity, Config: map[string]interface{}{"body": "rule fired"}},
		{Type: ActionFireWebhook, Config: map[string]interface{}{"event_type": "custom.event"}},
	}
	for _, a := range actions {
		res := ex.Execute(context.Background(), a, ev)
		if !res.Success {
			t.Errorf("action %s failed: %s", a.Type, res.Error)
		}
		if res.ActionType != a.Type {
			t.Errorf("result carries type %s, want %s", res.ActionType, a.Type)
		}
	}
	if len(fake.calls) != len(actions) {
		t.Fatalf("expected %d collaborator calls, got %d: %v", len(actions), len(fake.calls), fake.calls)
	}
}

func TestExecutor_UnknownActionType(t *testing.T) {
	ex := NewExecutor(allCollaborators(&fakeCollab{}), quietLogger())
	res := ex.Execute(context.Background(), Action{Type: "teleport"}, evalEvent(nil))
	if res.Success {
		t.Fatal("unknown action must fail")
	}
	if !strings.Contains(res.Error, "unknown action type") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestExecutor_MissingConfigKey(t *testing.T) {
	fake := &fakeCollab{}
	ex := NewExecutor(allCollaborators(fake), quietLogger())
	res := ex.Execute(context.Background(), Action{Type: ActionCreateTask, Config: map[string]interface{}{}}, evalEvent(nil))
	if res.Success {
		t.Fatal("missing title must fail")
	}
	if !strings.Contains(res.Error, `"title"`) {
		t.Fatalf("error should name the missing key, got: %s", res.Error)
	}
	if len(fake.calls) != 0 {
		t.Fatal("collaborator must not be called when validation fails")
	}
}

func TestExecutor_CollaboratorErrorIsCaptured(t *testing.T) {
	fake := &fakeCollab{err: fmt.Errorf("smtp unreachable")}
	ex := NewExecutor(allCollaborators(fake), quietLogger())
	res := ex.Execute(context.Background(), Action{
		Type:   ActionSendEmail,
		Config: map[string]interface{}{"template_id": "tpl", "recipient": "a@b.c"},
	}, evalEvent(nil))
	if res.Success {
		t.Fatal("collaborator failure must surface as failed result")
	}
	if res.Error != "smtp unreachable" {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}

func TestExecutor_MissingCollaborator(t *testing.T) {
	ex := NewExecutor(Collaborators{}, quietLogger())
	res := ex.Execute(context.Background(), Action{
		Type:   ActionFireWebhook,
		Config: map[string]interface{}{},
	}, evalEvent(nil))
	if res.Success {
		t.Fatal("missing collaborator must fail, not panic")
	}
}

type panickyNotifier struct{}

func (panickyNotifier) Notify(ctx context.Context, userID uint, payload map[string]interface{}) error {
	panic("boom")
}

func TestExecutor_PanicIsCaptured(t *testing.T) {
	ex := NewExecutor(Collaborators{Notifier: panickyNotifier{}}, quietLogger())
	res := ex.Execute(context.Background(), Action{
		Type:   ActionSendNotification,
		Config: map[string]interface{}{"user_id": 1, "message": "hi"},
	}, evalEvent(nil))
	if res.Success {
		t.Fatal("panicking collaborator must produce a failed result")
	}
	if !strings.Contains(res.Error, "panicked") {
		t.Fatalf("unexpected error: %s", res.Error)
	}
}
