package models

import "time"

// Automation is a persisted, user-authored rule: one trigger plus an
// ordered condition list and an ordered action list. The engine never
// edits rule definitions; it only bumps ExecutionCount/LastExecutedAt.
type Automation struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	ProjectID     uint       `gorm:"index:idx_automations_project_trigger;not null" json:"project_id"`
	Name          string     `gorm:"not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description"`
	IsActive      bool       `gorm:"default:true" json:"is_active"`
	TriggerType   string     `gorm:"index:idx_automations_project_trigger;not null" json:"trigger_type"`
	TriggerConfig string     `gorm:"type:text" json:"trigger_config"` // JSON, shape depends on trigger_type
	Conditions    string     `gorm:"type:text" json:"conditions"`     // JSON: [{field,operator,value}]
	Actions       string     `gorm:"type:text" json:"actions"`        // JSON: [{type,config}]
	ExecutionCount int64     `gorm:"default:0" json:"execution_count"`
	LastExecutedAt *time.Time `json:"last_executed_at"`
	CreatedBy     uint       `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AutomationExecution is one immutable audit record of a rule firing.
// It survives deletion of its automation, so no foreign key constraint.
type AutomationExecution struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	AutomationID  uint      `gorm:"index" json:"automation_id"`
	ProjectID     uint      `gorm:"index" json:"project_id"`
	TriggerType   string    `json:"trigger_type"`
	EntityType    string    `gorm:"index:idx_executions_entity" json:"entity_type"`
	EntityID      string    `gorm:"index:idx_executions_entity" json:"entity_id"`
	EventSnapshot string    `gorm:"type:text" json:"event_snapshot"` // JSON projection of the triggering event
	ConditionsMet bool      `gorm:"default:true" json:"conditions_met"`
	ActionResults string    `gorm:"type:text" json:"action_results"` // JSON: [{action_type,success,error,result}]
	Status        string    `gorm:"index" json:"status"` // success, partial_failure, failed, skipped
	ErrorMessage  string    `gorm:"type:text" json:"error_message"`
	DurationMs    int64     `json:"duration_ms"`
	ExecutedAt    time.Time `gorm:"index" json:"executed_at"`
}

// AutomationFireMark is the time-based scanner's re-fire watermark: one row
// per (automation, entity), bumped each time the scanner fires that pair.
type AutomationFireMark struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"uniqueIndex:idx_fire_marks_pair" json:"automation_id"`
	EntityType   string    `gorm:"uniqueIndex:idx_fire_marks_pair" json:"entity_type"`
	EntityID     string    `gorm:"uniqueIndex:idx_fire_marks_pair" json:"entity_id"`
	LastFiredAt  time.Time `json:"last_fired_at"`
}
