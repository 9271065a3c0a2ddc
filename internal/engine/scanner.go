package engine

import (
	"context"
	"fmt"
	"time"

	"autoflow/internal/metrics"
	"autoflow/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ScannerConfig controls sweep cadence and re-fire suppression.
type ScannerConfig struct {
	Interval     time.Duration // sweep period, default 5m
	FireCooldown time.Duration // min gap between fires of one (automation, entity) pair, default 24h
}

// Scanner synthesizes events for time-relative triggers by sweeping the
// entity tables on a cron schedule. It is the only component that
// originates events. Candidates are scoped to the rule whose threshold they
// crossed: each one goes through the run → record path for that rule alone,
// never through the generic trigger-type match.
//
// Re-fire policy: a persisted watermark per (automation, entity) pair
// suppresses firing again until FireCooldown has elapsed, so an entity that
// keeps satisfying a time condition fires once per cooldown window instead
// of once per sweep.
type Scanner struct {
	db       *gorm.DB
	engine   *Engine
	logger   *logrus.Logger
	cron     *cron.Cron
	cooldown time.Duration
	interval time.Duration
}

func NewScanner(db *gorm.DB, eng *Engine, cfg ScannerConfig, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.FireCooldown <= 0 {
		cfg.FireCooldown = 24 * time.Hour
	}
	return &Scanner{
		db:       db,
		engine:   eng,
		logger:   logger,
		cron:     cron.New(),
		cooldown: cfg.FireCooldown,
		interval: cfg.Interval,
	}
}

// Start schedules the periodic sweep.
func (s *Scanner) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.Scan(ctx); err != nil {
			s.logger.Errorf("automation scanner: sweep failed: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule scanner: %w", err)
	}
	s.cron.Start()
	s.logger.Infof("automation scanner started: every %s, cooldown %s", s.interval, s.cooldown)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Scanner) Stop() {
	<-s.cron.Stop().Done()
}

// scanCandidate is one entity row that crossed a time threshold.
type scanCandidate struct {
	EntityType string
	EntityID   string
	Data       map[string]interface{}
}

// Scan performs a single sweep over every active time-based automation.
func (s *Scanner) Scan(ctx context.Context) error {
	var rules []models.Automation
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND trigger_type IN ?", true, []string{
			TriggerEntityInactive, TriggerTaskOverdue, TriggerCloseDateApproaching, TriggerCreatedAgo,
		}).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return fmt.Errorf("load time-based automations: %w", err)
	}

	for i := range rules {
		rule := &rules[i]
		cfg, err := ParseTriggerConfig(rule.TriggerConfig)
		if err != nil {
			s.logger.Warnf("automation %d: invalid trigger_config: %v", rule.ID, err)
			continue
		}
		candidates, err := s.candidates(ctx, rule, cfg)
		if err != nil {
			s.logger.Warnf("automation %d: candidate query failed: %v", rule.ID, err)
			continue
		}
		for _, cand := range candidates {
			if !s.shouldFire(ctx, rule.ID, cand) {
				continue
			}
			ev := NewEvent(rule.ProjectID, rule.TriggerType, cand.EntityType, cand.EntityID, cand.Data)
			ev.Metadata = map[string]interface{}{"origin": "scanner"}
			// Each candidate runs against its originating rule only: two
			// rules on the same trigger with different day thresholds must
			// never fire each other's candidates.
			s.engine.RunRule(ctx, rule, ev)
			s.markFired(ctx, rule.ID, cand)
		}
	}
	metrics.IncScanSweep()
	return nil
}

func (s *Scanner) candidates(ctx context.Context, rule *models.Automation, cfg TriggerConfig) ([]scanCandidate, error) {
	now := time.Now()
	switch rule.TriggerType {
	case TriggerEntityInactive:
		cutoff := now.AddDate(0, 0, -cfg.Days)
		return s.entityRows(ctx, rule.ProjectID, cfg.EntityType,
			"COALESCE(last_activity_at, created_at) < ?", cutoff)
	case TriggerTaskOverdue:
		var tasks []models.Task
		if err := s.db.WithContext(ctx).
			Where("project_id = ? AND due_date IS NOT NULL AND due_date < ? AND status IN ?",
				rule.ProjectID, now, []string{"open", "in_progress"}).
			Find(&tasks).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(tasks))
		for i := range tasks {
			out = append(out, taskCandidate(&tasks[i]))
		}
		return out, nil
	case TriggerCloseDateApproaching:
		var opps []models.Opportunity
		if err := s.db.WithContext(ctx).
			Where("project_id = ? AND status = ? AND close_date IS NOT NULL AND close_date BETWEEN ? AND ?",
				rule.ProjectID, "open", now, now.AddDate(0, 0, cfg.DaysBefore)).
			Find(&opps).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(opps))
		for i := range opps {
			out = append(out, opportunityCandidate(&opps[i]))
		}
		return out, nil
	case TriggerCreatedAgo:
		// "created exactly N days ago" is a one-day window, so a candidate
		// can only qualify on sweeps within that day.
		upper := now.AddDate(0, 0, -cfg.Days)
		lower := upper.AddDate(0, 0, -1)
		return s.entityRows(ctx, rule.ProjectID, cfg.EntityType,
			"created_at BETWEEN ? AND ?", lower, upper)
	}
	return nil, fmt.Errorf("unsupported scanner trigger: %s", rule.TriggerType)
}

// entityRows queries one of the scannable entity tables by type name.
func (s *Scanner) entityRows(ctx context.Context, projectID uint, entityType, cond string, args ...interface{}) ([]scanCandidate, error) {
	q := s.db.WithContext(ctx).Where("project_id = ?", projectID).Where(cond, args...)
	switch entityType {
	case "organization":
		var rows []models.Organization
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(rows))
		for i := range rows {
			out = append(out, organizationCandidate(&rows[i]))
		}
		return out, nil
	case "person":
		var rows []models.Person
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(rows))
		for i := range rows {
			out = append(out, personCandidate(&rows[i]))
		}
		return out, nil
	case "opportunity":
		var rows []models.Opportunity
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(rows))
		for i := range rows {
			out = append(out, opportunityCandidate(&rows[i]))
		}
		return out, nil
	case "task":
		var rows []models.Task
		if err := q.Find(&rows).Error; err != nil {
			return nil, err
		}
		out := make([]scanCandidate, 0, len(rows))
		for i := range rows {
			out = append(out, taskCandidate(&rows[i]))
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown entity type: %s", entityType)
}

func (s *Scanner) shouldFire(ctx context.Context, automationID uint, cand scanCandidate) bool {
	var mark models.AutomationFireMark
	err := s.db.WithContext(ctx).
		Where("automation_id = ? AND entity_type = ? AND entity_id = ?", automationID, cand.EntityType, cand.EntityID).
		First(&mark).Error
	if err != nil {
		return true // no mark yet
	}
	return time.Since(mark.LastFiredAt) >= s.cooldown
}

func (s *Scanner) markFired(ctx context.Context, automationID uint, cand scanCandidate) {
	mark := models.AutomationFireMark{
		AutomationID: automationID,
		EntityType:   cand.EntityType,
		EntityID:     cand.EntityID,
		LastFiredAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "automation_id"}, {Name: "entity_type"}, {Name: "entity_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_fired_at"}),
		}).
		Create(&mark).Error; err != nil {
		s.logger.Warnf("automation %d: fire mark upsert failed: %v", automationID, err)
	}
}

func organizationCandidate(o *models.Organization) scanCandidate {
	return scanCandidate{
		EntityType: "organization",
		EntityID:   fmt.Sprintf("%d", o.ID),
		Data: map[string]interface{}{
			"name":             o.Name,
			"domain":           o.Domain,
			"industry":         o.Industry,
			"tags":             o.Tags,
			"last_activity_at": o.LastActivityAt,
			"created_at":       o.CreatedAt,
		},
	}
}

func personCandidate(p *models.Person) scanCandidate {
	return scanCandidate{
		EntityType: "person",
		EntityID:   fmt.Sprintf("%d", p.ID),
		Data: map[string]interface{}{
			"name":             p.Name,
			"email":            p.Email,
			"title":            p.Title,
			"tags":             p.Tags,
			"last_activity_at": p.LastActivityAt,
			"created_at":       p.CreatedAt,
		},
	}
}

func opportunityCandidate(o *models.Opportunity) scanCandidate {
	return scanCandidate{
		EntityType: "opportunity",
		EntityID:   fmt.Sprintf("%d", o.ID),
		Data: map[string]interface{}{
			"name":       o.Name,
			"stage":      o.Stage,
			"status":     o.Status,
			"amount":     o.Amount,
			"close_date": o.CloseDate,
			"tags":       o.Tags,
			"created_at": o.CreatedAt,
		},
	}
}

func taskCandidate(t *models.Task) scanCandidate {
	return scanCandidate{
		EntityType: "task",
		EntityID:   fmt.Sprintf("%d", t.ID),
		Data: map[string]interface{}{
			"title":      t.Title,
			"status":     t.Status,
			"priority":   t.Priority,
			"due_date":   t.DueDate,
			"created_at": t.CreatedAt,
		},
	}
}
