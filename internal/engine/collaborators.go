package engine

import (
	"context"
	"time"
)

// Collaborator contracts the engine calls outward. Implementations live
// outside the engine (internal/collab provides store-backed defaults); each
// call here is at-most-once per action invocation — retries, if any, belong
// to the collaborator itself.

type TaskCreator interface {
	Create(ctx context.Context, projectID uint, fields map[string]interface{}) (taskID string, err error)
}

type FieldUpdater interface {
	Update(ctx context.Context, entityType, entityID, fieldName string, value interface{}) error
}

type StageChanger interface {
	ChangeStage(ctx context.Context, entityID, toStage string) error
	ChangeStatus(ctx context.Context, entityType, entityID, toStatus string) error
}

type OwnerAssigner interface {
	Assign(ctx context.Context, entityType, entityID string, userID uint) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uint, payload map[string]interface{}) error
}

type Mailer interface {
	SendFromTemplate(ctx context.Context, templateID, recipient string, variables map[string]interface{}) error
}

type SequenceEnroller interface {
	Enroll(ctx context.Context, personID uint, sequenceID, connectionID string) error
}

type TagMutator interface {
	AddTag(ctx context.Context, entityType, entityID, tag string) error
	RemoveTag(ctx context.Context, entityType, entityID, tag string) error
}

type ResearchTrigger interface {
	StartResearch(ctx context.Context, entityType, entityID string) (jobID string, err error)
}

// ActivityEntry is a single activity-stream line written by create_activity.
type ActivityEntry struct {
	ProjectID  uint
	EntityType string
	EntityID   string
	Kind       string
	Body       string
	OccurredAt time.Time
}

type ActivityLogger interface {
	Log(ctx context.Context, entry ActivityEntry) error
}

type WebhookDispatcher interface {
	Fire(ctx context.Context, eventType string, payload map[string]interface{}) error
}

// Collaborators bundles every outward dependency of the action executor.
// Nil members are allowed; actions needing a missing collaborator fail with
// a captured configuration error instead of panicking.
type Collaborators struct {
	Tasks      TaskCreator
	Fields     FieldUpdater
	Stages     StageChanger
	Owners     OwnerAssigner
	Notifier   Notifier
	Mailer     Mailer
	Sequences  SequenceEnroller
	Tags       TagMutator
	Research   ResearchTrigger
	Activities ActivityLogger
	Webhooks   WebhookDispatcher
}
