package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"autoflow/internal/engine"
	"autoflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutomationService manages rule definitions and the execution history
// query surface. All structural validation happens here, at save time, so
// the engine never sees a malformed rule.
type AutomationService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger}
}

// AutomationRequest creates or updates a rule.
type AutomationRequest struct {
	ProjectID     uint                 `json:"project_id" binding:"required"`
	Name          string               `json:"name" binding:"required"`
	Description   string               `json:"description"`
	TriggerType   string               `json:"trigger_type" binding:"required"`
	TriggerConfig engine.TriggerConfig `json:"trigger_config"`
	Conditions    []engine.Condition   `json:"conditions"`
	Actions       []engine.Action      `json:"actions"`
	Active        *bool                `json:"active"`
}

func (s *AutomationService) validate(req *AutomationRequest) error {
	if req == nil {
		return fmt.Errorf("request required")
	}
	if err := engine.ValidateTriggerConfig(req.TriggerType, req.TriggerConfig); err != nil {
		return err
	}
	if err := engine.ValidateConditions(req.Conditions); err != nil {
		return err
	}
	return engine.ValidateActions(req.Actions)
}

func encodeRule(req *AutomationRequest) (triggerConfig, conditions, actions string, err error) {
	tc, err := json.Marshal(req.TriggerConfig)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid trigger_config: %w", err)
	}
	cj, err := json.Marshal(req.Conditions)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid conditions: %w", err)
	}
	aj, err := json.Marshal(req.Actions)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid actions: %w", err)
	}
	return string(tc), string(cj), string(aj), nil
}

// Create validates and persists a new automation.
func (s *AutomationService) Create(ctx context.Context, req *AutomationRequest) (*models.Automation, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	tc, cj, aj, err := encodeRule(req)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule := &models.Automation{
		ProjectID:     req.ProjectID,
		Name:          req.Name,
		Description:   req.Description,
		IsActive:      active,
		TriggerType:   req.TriggerType,
		TriggerConfig: tc,
		Conditions:    cj,
		Actions:       aj,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// Update rewrites an existing rule after full revalidation. Engine-owned
// statistics columns are left untouched.
func (s *AutomationService) Update(ctx context.Context, id uint, req *AutomationRequest) (*models.Automation, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	tc, cj, aj, err := encodeRule(req)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"project_id":     req.ProjectID,
		"name":           req.Name,
		"description":    req.Description,
		"trigger_type":   req.TriggerType,
		"trigger_config": tc,
		"conditions":     cj,
		"actions":        aj,
	}
	if req.Active != nil {
		updates["is_active"] = *req.Active
	}
	res := s.db.WithContext(ctx).Model(&models.Automation{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, fmt.Errorf("automation not found")
	}
	return s.Get(ctx, id)
}

// Get returns one rule.
func (s *AutomationService) Get(ctx context.Context, id uint) (*models.Automation, error) {
	var rule models.Automation
	if err := s.db.WithContext(ctx).First(&rule, id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

// List returns a project's rules in creation order.
func (s *AutomationService) List(ctx context.Context, projectID uint) ([]models.Automation, error) {
	var rules []models.Automation
	q := s.db.WithContext(ctx).Order("id ASC")
	if projectID != 0 {
		q = q.Where("project_id = ?", projectID)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// SetActive flips a rule's active flag. Deactivation takes effect on the
// next match, not on runs already queued.
func (s *AutomationService) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).Model(&models.Automation{}).Where("id = ?", id).Update("is_active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("automation not found")
	}
	return nil
}

// Delete removes a rule definition. Execution history is untouched and
// remains queryable.
func (s *AutomationService) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Automation{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("automation not found")
	}
	return nil
}

// ExecutionFilter narrows the history query surface.
type ExecutionFilter struct {
	AutomationID uint
	EntityType   string
	EntityID     string
	Status       string
	Page         int
	PageSize     int
}

// ExecutionPage is one page of execution history.
type ExecutionPage struct {
	Executions []models.AutomationExecution `json:"executions"`
	Total      int64                        `json:"total"`
	Page       int                          `json:"page"`
	PageSize   int                          `json:"page_size"`
}

// ListExecutions queries execution history, newest first.
func (s *AutomationService) ListExecutions(ctx context.Context, filter ExecutionFilter) (*ExecutionPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	q := s.db.WithContext(ctx).Model(&models.AutomationExecution{})
	if filter.AutomationID != 0 {
		q = q.Where("automation_id = ?", filter.AutomationID)
	}
	if filter.EntityType != "" {
		q = q.Where("entity_type = ?", filter.EntityType)
	}
	if filter.EntityID != "" {
		q = q.Where("entity_id = ?", filter.EntityID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, err
	}
	var executions []models.AutomationExecution
	if err := q.Order("executed_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&executions).Error; err != nil {
		return nil, err
	}
	return &ExecutionPage{
		Executions: executions,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

// DryRunMatch is one rule a dry-run event would fire.
type DryRunMatch struct {
	AutomationID uint   `json:"automation_id"`
	Name         string `json:"name"`
	ActionCount  int    `json:"action_count"`
}

// DryRunResponse reports which rules an event would fire, without running
// any action.
type DryRunResponse struct {
	EventID string        `json:"event_id"`
	Matches []DryRunMatch `json:"matches"`
}

// DryRun evaluates matching for a synthetic event without executing.
func (s *AutomationService) DryRun(ctx context.Context, ev *engine.Event) (*DryRunResponse, error) {
	if ev == nil {
		return nil, fmt.Errorf("event required")
	}
	if !engine.KnownTriggerType(ev.TriggerType) {
		return nil, fmt.Errorf("unknown trigger type: %s", ev.TriggerType)
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	matched, err := engine.NewMatcher(s.db, s.logger).Match(ctx, ev)
	if err != nil {
		return nil, err
	}
	resp := &DryRunResponse{EventID: ev.ID, Matches: make([]DryRunMatch, 0, len(matched))}
	for _, rule := range matched {
		actions, _ := engine.ParseActions(rule.Actions)
		resp.Matches = append(resp.Matches, DryRunMatch{
			AutomationID: rule.ID,
			Name:         rule.Name,
			ActionCount:  len(actions),
		})
	}
	return resp, nil
}
