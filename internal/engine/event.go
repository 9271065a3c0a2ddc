package engine

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Trigger types the engine reacts to. Time-prefixed triggers are only ever
// synthesized by the scanner, never emitted by request handlers.
const (
	TriggerEntityCreated        = "entity.created"
	TriggerEntityUpdated        = "entity.updated"
	TriggerEntityDeleted        = "entity.deleted"
	TriggerFieldChanged         = "field.changed"
	TriggerStageChanged         = "opportunity.stage_changed"
	TriggerStatusChanged        = "entity.status_changed"
	TriggerEmailOpened          = "email.opened"
	TriggerEmailClicked         = "email.clicked"
	TriggerEmailReplied         = "email.replied"
	TriggerEntityInactive       = "time.entity_inactive"
	TriggerTaskOverdue          = "time.task_overdue"
	TriggerCloseDateApproaching = "time.close_date_approaching"
	TriggerCreatedAgo           = "time.created_ago"
)

var triggerTypes = map[string]bool{
	TriggerEntityCreated:        true,
	TriggerEntityUpdated:        true,
	TriggerEntityDeleted:        true,
	TriggerFieldChanged:         true,
	TriggerStageChanged:         true,
	TriggerStatusChanged:        true,
	TriggerEmailOpened:          true,
	TriggerEmailClicked:         true,
	TriggerEmailReplied:         true,
	TriggerEntityInactive:       true,
	TriggerTaskOverdue:          true,
	TriggerCloseDateApproaching: true,
	TriggerCreatedAgo:           true,
}

// KnownTriggerType reports whether t is part of the closed trigger enum.
func KnownTriggerType(t string) bool {
	return triggerTypes[t]
}

// TimeBasedTrigger reports whether t is originated by the scanner.
func TimeBasedTrigger(t string) bool {
	switch t {
	case TriggerEntityInactive, TriggerTaskOverdue, TriggerCloseDateApproaching, TriggerCreatedAgo:
		return true
	}
	return false
}

// Event is the engine's only input. It is transient: never persisted as-is,
// only a snapshot of it is captured inside an execution record.
type Event struct {
	ID           string                 `json:"id"`
	ProjectID    uint                   `json:"project_id"`
	TriggerType  string                 `json:"trigger_type"`
	EntityType   string                 `json:"entity_type"`
	EntityID     string                 `json:"entity_id"`
	Data         map[string]interface{} `json:"data"`
	PreviousData map[string]interface{} `json:"previous_data,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// NewEvent builds an event with a fresh correlation ID and timestamp.
func NewEvent(projectID uint, triggerType, entityType, entityID string, data map[string]interface{}) *Event {
	return &Event{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		TriggerType: triggerType,
		EntityType:  entityType,
		EntityID:    entityID,
		Data:        data,
		OccurredAt:  time.Now(),
	}
}

// Snapshot returns the serializable projection of the event stored on an
// execution record. Metadata is kept; the raw event itself is not.
func (e *Event) Snapshot() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}

// TriggerConfig carries the trigger-specific part of an automation. Only the
// fields relevant to the automation's trigger type are set; everything else
// stays at its zero value.
type TriggerConfig struct {
	EntityType string `json:"entity_type,omitempty"` // entity.* and time.* scoping
	FieldName  string `json:"field_name,omitempty"`  // field.changed
	FromStage  string `json:"from_stage,omitempty"`  // opportunity.stage_changed
	ToStage    string `json:"to_stage,omitempty"`
	FromStatus string `json:"from_status,omitempty"` // entity.status_changed
	ToStatus   string `json:"to_status,omitempty"`
	Days       int    `json:"days,omitempty"`        // time.entity_inactive, time.created_ago
	DaysBefore int    `json:"days_before,omitempty"` // time.close_date_approaching
}

// ParseTriggerConfig decodes the JSON trigger_config column. An empty column
// is a valid, fully permissive config.
func ParseTriggerConfig(raw string) (TriggerConfig, error) {
	var cfg TriggerConfig
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
