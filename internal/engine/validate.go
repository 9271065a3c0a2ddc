package engine

import (
	"fmt"

	"github.com/spf13/cast"
)

// Save-time validation. Rules are checked once when they are created or
// edited so a malformed trigger_config, operator, or action can never reach
// evaluation. The evaluator still fails safe on anything that slips through
// (for example rows written before a schema change).

// ValidateTriggerConfig checks trigger_type/trigger_config consistency.
func ValidateTriggerConfig(triggerType string, cfg TriggerConfig) error {
	if !KnownTriggerType(triggerType) {
		return fmt.Errorf("unknown trigger type: %s", triggerType)
	}
	switch triggerType {
	case TriggerFieldChanged:
		if cfg.FieldName == "" {
			return fmt.Errorf("trigger %s requires field_name", triggerType)
		}
	case TriggerEntityInactive:
		if cfg.Days <= 0 {
			return fmt.Errorf("trigger %s requires days > 0", triggerType)
		}
		if cfg.EntityType == "" {
			return fmt.Errorf("trigger %s requires entity_type", triggerType)
		}
	case TriggerCreatedAgo:
		if cfg.Days <= 0 {
			return fmt.Errorf("trigger %s requires days > 0", triggerType)
		}
		if cfg.EntityType == "" {
			return fmt.Errorf("trigger %s requires entity_type", triggerType)
		}
	case TriggerCloseDateApproaching:
		if cfg.DaysBefore <= 0 {
			return fmt.Errorf("trigger %s requires days_before > 0", triggerType)
		}
	}
	// Stage/status triggers deliberately allow empty from/to: an empty side
	// matches any transition.
	return nil
}

// ValidateConditions rejects unknown operators and structurally invalid
// list operands.
func ValidateConditions(conds []Condition) error {
	for i, c := range conds {
		if c.Field == "" {
			return fmt.Errorf("condition %d: field is required", i)
		}
		if !KnownOperator(c.Operator) {
			return fmt.Errorf("condition %d: unknown operator: %s", i, c.Operator)
		}
		if c.Operator == OpIn || c.Operator == OpNotIn {
			if _, ok := asList(c.Value); !ok {
				return fmt.Errorf("condition %d: operator %s requires a list value", i, c.Operator)
			}
		}
	}
	return nil
}

// ValidateActions checks that every action has a registered type and the
// config keys its handler will demand at execution time.
func ValidateActions(actions []Action) error {
	for i, a := range actions {
		if err := validateAction(a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func validateAction(a Action) error {
	switch a.Type {
	case ActionCreateTask:
		return requireKeys(a.Config, "title")
	case ActionUpdateField:
		return requireKeys(a.Config, "field", "value")
	case ActionChangeStage:
		return requireKeys(a.Config, "stage")
	case ActionChangeStatus:
		return requireKeys(a.Config, "status")
	case ActionAssignOwner:
		return requireKeys(a.Config, "user_id")
	case ActionSendNotification:
		return requireKeys(a.Config, "user_id", "message")
	case ActionSendEmail:
		if err := requireKeys(a.Config, "template_id"); err != nil {
			return err
		}
		if cast.ToString(a.Config["recipient"]) == "" && cast.ToString(a.Config["recipient_field"]) == "" {
			return fmt.Errorf("requires recipient or recipient_field")
		}
		return nil
	case ActionEnrollInSequence:
		return requireKeys(a.Config, "sequence_id")
	case ActionAddTag, ActionRemoveTag:
		return requireKeys(a.Config, "tag")
	case ActionRunAIResearch, ActionFireWebhook:
		return nil
	case ActionCreateActivity:
		return requireKeys(a.Config, "body")
	default:
		return fmt.Errorf("unknown action type")
	}
}

func requireKeys(cfg map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if _, ok := cfg[k]; !ok {
			return fmt.Errorf("config key %q is required", k)
		}
	}
	return nil
}
