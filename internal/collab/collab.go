// Package collab provides store-backed default implementations of the
// engine's collaborator contracts, operating directly on the CRM tables.
// Deployments that route these operations through other services can swap
// any of them out; the engine only sees the interfaces.
package collab

import (
	"context"
	"fmt"
	"strings"
	"time"

	"autoflow/internal/engine"
	"autoflow/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// Store implements every store-facing collaborator over one gorm handle.
type Store struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewStore(db *gorm.DB, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{db: db, logger: logger}
}

// entityModel maps an event entity type to its table model.
func entityModel(entityType string) (interface{}, error) {
	switch entityType {
	case "organization":
		return &models.Organization{}, nil
	case "person":
		return &models.Person{}, nil
	case "opportunity":
		return &models.Opportunity{}, nil
	case "task":
		return &models.Task{}, nil
	default:
		return nil, fmt.Errorf("unknown entity type: %s", entityType)
	}
}

// updatable columns per entity type; update_field may not touch anything
// outside this set.
var updatableColumns = map[string]bool{
	"name": true, "domain": true, "industry": true, "email": true,
	"phone": true, "title": true, "description": true, "stage": true,
	"status": true, "priority": true, "amount": true, "tags": true,
	"close_date": true, "due_date": true, "owner_id": true,
}

// Create inserts a task row and returns its id. Implements engine.TaskCreator.
func (s *Store) Create(ctx context.Context, projectID uint, fields map[string]interface{}) (string, error) {
	task := models.Task{
		ProjectID:   projectID,
		Title:       cast.ToString(fields["title"]),
		Description: cast.ToString(fields["description"]),
		Priority:    cast.ToString(fields["priority"]),
		EntityType:  cast.ToString(fields["entity_type"]),
		EntityID:    cast.ToString(fields["entity_id"]),
		Status:      "open",
	}
	if task.Title == "" {
		return "", fmt.Errorf("task title is required")
	}
	if task.Priority == "" {
		task.Priority = "normal"
	}
	if v, ok := fields["owner_id"]; ok {
		id := cast.ToUint(v)
		if id != 0 {
			task.OwnerID = &id
		}
	}
	if due, ok := fields["due_date"].(time.Time); ok {
		task.DueDate = &due
	}
	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	return fmt.Sprintf("%d", task.ID), nil
}

// Update writes one column of one entity row. Implements engine.FieldUpdater.
func (s *Store) Update(ctx context.Context, entityType, entityID, fieldName string, value interface{}) error {
	model, err := entityModel(entityType)
	if err != nil {
		return err
	}
	if !updatableColumns[fieldName] {
		return fmt.Errorf("field %q is not updatable on %s", fieldName, entityType)
	}
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", entityID).Update(fieldName, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s %s not found", entityType, entityID)
	}
	return nil
}

// ChangeStage moves an opportunity between pipeline stages.
func (s *Store) ChangeStage(ctx context.Context, entityID, toStage string) error {
	res := s.db.WithContext(ctx).Model(&models.Opportunity{}).
		Where("id = ?", entityID).Update("stage", toStage)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("opportunity %s not found", entityID)
	}
	return nil
}

// ChangeStatus sets the status column of an entity row.
func (s *Store) ChangeStatus(ctx context.Context, entityType, entityID, toStatus string) error {
	return s.Update(ctx, entityType, entityID, "status", toStatus)
}

// Assign sets an entity's owner. Implements engine.OwnerAssigner.
func (s *Store) Assign(ctx context.Context, entityType, entityID string, userID uint) error {
	return s.Update(ctx, entityType, entityID, "owner_id", userID)
}

// AddTag appends a tag to the comma-separated tags column if absent.
func (s *Store) AddTag(ctx context.Context, entityType, entityID, tag string) error {
	tags, err := s.loadTags(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	for _, t := range splitTags(tags) {
		if t == tag {
			return nil
		}
	}
	if tags == "" {
		tags = tag
	} else {
		tags = tags + "," + tag
	}
	return s.Update(ctx, entityType, entityID, "tags", tags)
}

// RemoveTag drops a tag from the tags column; removing a missing tag is a
// no-op, not an error.
func (s *Store) RemoveTag(ctx context.Context, entityType, entityID, tag string) error {
	tags, err := s.loadTags(ctx, entityType, entityID)
	if err != nil {
		return err
	}
	kept := make([]string, 0)
	removed := false
	for _, t := range splitTags(tags) {
		if t == tag {
			removed = true
			continue
		}
		kept = append(kept, t)
	}
	if !removed {
		return nil
	}
	return s.Update(ctx, entityType, entityID, "tags", strings.Join(kept, ","))
}

func (s *Store) loadTags(ctx context.Context, entityType, entityID string) (string, error) {
	model, err := entityModel(entityType)
	if err != nil {
		return "", err
	}
	var tags []string
	res := s.db.WithContext(ctx).Model(model).Where("id = ?", entityID).Pluck("tags", &tags)
	if res.Error != nil {
		return "", res.Error
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("%s %s not found", entityType, entityID)
	}
	return tags[0], nil
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Log appends an activity-stream entry. Implements engine.ActivityLogger.
func (s *Store) Log(ctx context.Context, entry engine.ActivityEntry) error {
	row := models.Activity{
		ProjectID:  entry.ProjectID,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Kind:       entry.Kind,
		Body:       entry.Body,
		CreatedAt:  entry.OccurredAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// Enroll records a sequence enrollment. Re-enrolling an already active
// (person, sequence) pair is rejected so automations can't double-enroll.
func (s *Store) Enroll(ctx context.Context, personID uint, sequenceID, connectionID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.SequenceEnrollment{}).
		Where("person_id = ? AND sequence_id = ? AND status = ?", personID, sequenceID, "active").
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("person %d already enrolled in sequence %s", personID, sequenceID)
	}
	return s.db.WithContext(ctx).Create(&models.SequenceEnrollment{
		PersonID:     personID,
		SequenceID:   sequenceID,
		ConnectionID: connectionID,
		Status:       "active",
		EnrolledAt:   time.Now(),
	}).Error
}

// StartResearch queues an AI research job and returns its id.
func (s *Store) StartResearch(ctx context.Context, entityType, entityID string) (string, error) {
	job := models.ResearchJob{
		JobID:      uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Status:     "queued",
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("queue research job: %w", err)
	}
	return job.JobID, nil
}

// SendFromTemplate records an outbound template email for the mail worker
// to pick up. Implements engine.Mailer.
func (s *Store) SendFromTemplate(ctx context.Context, templateID, recipient string, variables map[string]interface{}) error {
	vars := "{}"
	if len(variables) > 0 {
		vars = marshalVariables(variables)
	}
	return s.db.WithContext(ctx).Create(&models.OutboundEmail{
		TemplateID: templateID,
		Recipient:  recipient,
		Variables:  vars,
		Status:     "queued",
	}).Error
}
