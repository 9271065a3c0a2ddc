package engine

import (
	"context"
	"encoding/json"

	"autoflow/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// ParseConditions decodes the conditions column of an automation row.
func ParseConditions(raw string) ([]Condition, error) {
	if raw == "" {
		return nil, nil
	}
	var conds []Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, err
	}
	return conds, nil
}

// ParseActions decodes the actions column of an automation row.
func ParseActions(raw string) ([]Action, error) {
	if raw == "" {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		return nil, err
	}
	return actions, nil
}

// Matcher resolves which automations an event fires. It reads rule rows but
// never writes them.
type Matcher struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewMatcher(db *gorm.DB, logger *logrus.Logger) *Matcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Matcher{db: db, logger: logger}
}

// Match loads active automations for the event's project and trigger type
// in creation order, applies the trigger's structural filter, then the
// generic condition evaluator. A rule that fails to decode is skipped with
// a warning rather than failing the whole match.
func (m *Matcher) Match(ctx context.Context, ev *Event) ([]models.Automation, error) {
	var rules []models.Automation
	if err := m.db.WithContext(ctx).
		Where("project_id = ? AND trigger_type = ? AND is_active = ?", ev.ProjectID, ev.TriggerType, true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}

	matched := make([]models.Automation, 0, len(rules))
	for _, rule := range rules {
		cfg, err := ParseTriggerConfig(rule.TriggerConfig)
		if err != nil {
			m.logger.Warnf("automation %d: invalid trigger_config: %v", rule.ID, err)
			continue
		}
		if !triggerConfigMatches(ev, cfg) {
			continue
		}

		conds, err := ParseConditions(rule.Conditions)
		if err != nil {
			m.logger.Warnf("automation %d: invalid conditions: %v", rule.ID, err)
			continue
		}
		for _, c := range conds {
			if !KnownOperator(c.Operator) {
				m.logger.Warnf("automation %d: unknown operator %q on field %q", rule.ID, c.Operator, c.Field)
			}
		}
		if !EvaluateConditions(conds, ev) {
			continue
		}
		matched = append(matched, rule)
	}
	return matched, nil
}

// triggerConfigMatches applies the structural sub-match for triggers that
// carry one. An unset config field matches anything.
func triggerConfigMatches(ev *Event, cfg TriggerConfig) bool {
	if cfg.EntityType != "" && cfg.EntityType != ev.EntityType {
		return false
	}
	switch ev.TriggerType {
	case TriggerFieldChanged:
		changed := cast.ToString(metadataValue(ev, "field_name"))
		return cfg.FieldName == "" || cfg.FieldName == changed
	case TriggerStageChanged:
		from := cast.ToString(previousValue(ev, "stage"))
		to := cast.ToString(dataValue(ev, "stage"))
		if cfg.FromStage != "" && cfg.FromStage != from {
			return false
		}
		if cfg.ToStage != "" && cfg.ToStage != to {
			return false
		}
		return true
	case TriggerStatusChanged:
		from := cast.ToString(previousValue(ev, "status"))
		to := cast.ToString(dataValue(ev, "status"))
		if cfg.FromStatus != "" && cfg.FromStatus != from {
			return false
		}
		if cfg.ToStatus != "" && cfg.ToStatus != to {
			return false
		}
		return true
	}
	return true
}

func dataValue(ev *Event, key string) interface{} {
	if ev.Data == nil {
		return nil
	}
	return ev.Data[key]
}

func previousValue(ev *Event, key string) interface{} {
	if ev.PreviousData == nil {
		return nil
	}
	return ev.PreviousData[key]
}

func metadataValue(ev *Event, key string) interface{} {
	if ev.Metadata == nil {
		return nil
	}
	return ev.Metadata[key]
}
