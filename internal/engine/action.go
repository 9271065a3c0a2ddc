package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Action types. Adding a new type means registering a handler in
// NewExecutor; the orchestrator never switches on types itself.
const (
	ActionCreateTask       = "create_task"
	ActionUpdateField      = "update_field"
	ActionChangeStage      = "change_stage"
	ActionChangeStatus     = "change_status"
	ActionAssignOwner      = "assign_owner"
	ActionSendNotification = "send_notification"
	ActionSendEmail        = "send_email"
	ActionEnrollInSequence = "enroll_in_sequence"
	ActionAddTag           = "add_tag"
	ActionRemoveTag        = "remove_tag"
	ActionRunAIResearch    = "run_ai_research"
	ActionCreateActivity   = "create_activity"
	ActionFireWebhook      = "fire_webhook"
)

// Action is one side-effecting operation on an automation's ordered list.
type Action struct {
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// ActionResult is the per-action outcome captured on the execution record.
type ActionResult struct {
	ActionType string                 `json:"action_type"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
}

// ActionHandler runs one action type against the collaborators. A handler
// returns its result payload or an error; the executor converts either into
// an ActionResult and never lets a failure escape.
type ActionHandler func(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error)

// Executor dispatches actions to registered handlers.
type Executor struct {
	collab   Collaborators
	handlers map[string]ActionHandler
	logger   *logrus.Logger
}

// NewExecutor wires the built-in handler registry over the given
// collaborators.
func NewExecutor(collab Collaborators, logger *logrus.Logger) *Executor {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Executor{collab: collab, logger: logger}
	e.handlers = map[string]ActionHandler{
		ActionCreateTask:       e.createTask,
		ActionUpdateField:      e.updateField,
		ActionChangeStage:      e.changeStage,
		ActionChangeStatus:     e.changeStatus,
		ActionAssignOwner:      e.assignOwner,
		ActionSendNotification: e.sendNotification,
		ActionSendEmail:        e.sendEmail,
		ActionEnrollInSequence: e.enrollInSequence,
		ActionAddTag:           e.addTag,
		ActionRemoveTag:        e.removeTag,
		ActionRunAIResearch:    e.runAIResearch,
		ActionCreateActivity:   e.createActivity,
		ActionFireWebhook:      e.fireWebhook,
	}
	return e
}

// KnownActionType reports whether t has a registered handler.
func (e *Executor) KnownActionType(t string) bool {
	_, ok := e.handlers[t]
	return ok
}

// Execute runs one action. Every failure mode, including an unknown action
// type or a panicking collaborator, is captured in the returned result so
// sibling actions are never aborted.
func (e *Executor) Execute(ctx context.Context, action Action, ev *Event) (res ActionResult) {
	res = ActionResult{ActionType: action.Type}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("action panicked: %v", r)
			e.logger.Errorf("automation: action %s panicked: %v", action.Type, r)
		}
	}()

	handler, ok := e.handlers[action.Type]
	if !ok {
		res.Error = fmt.Sprintf("unknown action type: %s", action.Type)
		return res
	}

	out, err := handler(ctx, action.Config, ev)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Result = out
	return res
}

// configString pulls a required string key out of an action config.
func configString(cfg map[string]interface{}, key string) (string, error) {
	v, ok := cfg[key]
	if !ok {
		return "", fmt.Errorf("config key %q is required", key)
	}
	s := cast.ToString(v)
	if s == "" {
		return "", fmt.Errorf("config key %q must be a non-empty string", key)
	}
	return s, nil
}

func configUint(cfg map[string]interface{}, key string) (uint, error) {
	v, ok := cfg[key]
	if !ok {
		return 0, fmt.Errorf("config key %q is required", key)
	}
	n, err := cast.ToUintE(v)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("config key %q must be a positive integer", key)
	}
	return n, nil
}

func configMap(cfg map[string]interface{}, key string) map[string]interface{} {
	if m, ok := cfg[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}
