package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Built-in action handlers. Each one validates its config keys, then makes
// exactly one collaborator call. Entity type/id default to the triggering
// event's entity and can be overridden per action via config.

func (e *Executor) targetEntity(cfg map[string]interface{}, ev *Event) (string, string) {
	entityType := ev.EntityType
	entityID := ev.EntityID
	if v := cast.ToString(cfg["entity_type"]); v != "" {
		entityType = v
	}
	if v := cast.ToString(cfg["entity_id"]); v != "" {
		entityID = v
	}
	return entityType, entityID
}

func (e *Executor) createTask(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Tasks == nil {
		return nil, fmt.Errorf("task creator is not configured")
	}
	title, err := configString(cfg, "title")
	if err != nil {
		return nil, err
	}
	fields := map[string]interface{}{
		"title":       title,
		"description": cast.ToString(cfg["description"]),
		"priority":    cast.ToString(cfg["priority"]),
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
	}
	if v, ok := cfg["owner_id"]; ok {
		fields["owner_id"] = v
	}
	if days := cast.ToInt(cfg["due_in_days"]); days > 0 {
		fields["due_date"] = time.Now().AddDate(0, 0, days)
	}
	taskID, err := e.collab.Tasks.Create(ctx, ev.ProjectID, fields)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"task_id": taskID}, nil
}

func (e *Executor) updateField(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Fields == nil {
		return nil, fmt.Errorf("field updater is not configured")
	}
	field, err := configString(cfg, "field")
	if err != nil {
		return nil, err
	}
	value, ok := cfg["value"]
	if !ok {
		return nil, fmt.Errorf("config key %q is required", "value")
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Fields.Update(ctx, entityType, entityID, field, value); err != nil {
		return nil, err
	}
	return map[string]interface{}{"field": field}, nil
}

func (e *Executor) changeStage(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Stages == nil {
		return nil, fmt.Errorf("stage changer is not configured")
	}
	stage, err := configString(cfg, "stage")
	if err != nil {
		return nil, err
	}
	_, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Stages.ChangeStage(ctx, entityID, stage); err != nil {
		return nil, err
	}
	return map[string]interface{}{"stage": stage}, nil
}

func (e *Executor) changeStatus(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Stages == nil {
		return nil, fmt.Errorf("stage changer is not configured")
	}
	status, err := configString(cfg, "status")
	if err != nil {
		return nil, err
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Stages.ChangeStatus(ctx, entityType, entityID, status); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": status}, nil
}

func (e *Executor) assignOwner(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Owners == nil {
		return nil, fmt.Errorf("owner assigner is not configured")
	}
	userID, err := configUint(cfg, "user_id")
	if err != nil {
		return nil, err
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Owners.Assign(ctx, entityType, entityID, userID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": userID}, nil
}

func (e *Executor) sendNotification(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Notifier == nil {
		return nil, fmt.Errorf("notifier is not configured")
	}
	userID, err := configUint(cfg, "user_id")
	if err != nil {
		return nil, err
	}
	message, err := configString(cfg, "message")
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"message":     message,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"trigger":     ev.TriggerType,
	}
	if err := e.collab.Notifier.Notify(ctx, userID, payload); err != nil {
		return nil, err
	}
	return map[string]interface{}{"user_id": userID}, nil
}

func (e *Executor) sendEmail(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Mailer == nil {
		return nil, fmt.Errorf("mailer is not configured")
	}
	templateID, err := configString(cfg, "template_id")
	if err != nil {
		return nil, err
	}
	// Recipient may be given literally or resolved from an event field.
	recipient := cast.ToString(cfg["recipient"])
	if recipient == "" {
		if f := cast.ToString(cfg["recipient_field"]); f != "" {
			v, _ := lookupField(ev.Data, f)
			recipient = cast.ToString(v)
		}
	}
	if recipient == "" {
		return nil, fmt.Errorf("config requires %q or a resolvable %q", "recipient", "recipient_field")
	}
	variables := configMap(cfg, "variables")
	if err := e.collab.Mailer.SendFromTemplate(ctx, templateID, recipient, variables); err != nil {
		return nil, err
	}
	return map[string]interface{}{"template_id": templateID, "recipient": recipient}, nil
}

func (e *Executor) enrollInSequence(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Sequences == nil {
		return nil, fmt.Errorf("sequence enroller is not configured")
	}
	sequenceID, err := configString(cfg, "sequence_id")
	if err != nil {
		return nil, err
	}
	personID := cast.ToUint(cfg["person_id"])
	if personID == 0 && ev.EntityType == "person" {
		personID = cast.ToUint(ev.EntityID)
	}
	if personID == 0 {
		return nil, fmt.Errorf("config key %q is required for non-person events", "person_id")
	}
	connectionID := cast.ToString(cfg["connection_id"])
	if err := e.collab.Sequences.Enroll(ctx, personID, sequenceID, connectionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"person_id": personID, "sequence_id": sequenceID}, nil
}

func (e *Executor) addTag(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Tags == nil {
		return nil, fmt.Errorf("tag mutator is not configured")
	}
	tag, err := configString(cfg, "tag")
	if err != nil {
		return nil, err
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Tags.AddTag(ctx, entityType, entityID, tag); err != nil {
		return nil, err
	}
	return map[string]interface{}{"tag": tag}, nil
}

func (e *Executor) removeTag(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Tags == nil {
		return nil, fmt.Errorf("tag mutator is not configured")
	}
	tag, err := configString(cfg, "tag")
	if err != nil {
		return nil, err
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	if err := e.collab.Tags.RemoveTag(ctx, entityType, entityID, tag); err != nil {
		return nil, err
	}
	return map[string]interface{}{"tag": tag}, nil
}

func (e *Executor) runAIResearch(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Research == nil {
		return nil, fmt.Errorf("research trigger is not configured")
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	jobID, err := e.collab.Research.StartResearch(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"job_id": jobID}, nil
}

func (e *Executor) createActivity(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Activities == nil {
		return nil, fmt.Errorf("activity logger is not configured")
	}
	body, err := configString(cfg, "body")
	if err != nil {
		return nil, err
	}
	kind := cast.ToString(cfg["kind"])
	if kind == "" {
		kind = "system"
	}
	entityType, entityID := e.targetEntity(cfg, ev)
	entry := ActivityEntry{
		ProjectID:  ev.ProjectID,
		EntityType: entityType,
		EntityID:   entityID,
		Kind:       kind,
		Body:       body,
		OccurredAt: time.Now(),
	}
	if err := e.collab.Activities.Log(ctx, entry); err != nil {
		return nil, err
	}
	return map[string]interface{}{"kind": kind}, nil
}

func (e *Executor) fireWebhook(ctx context.Context, cfg map[string]interface{}, ev *Event) (map[string]interface{}, error) {
	if e.collab.Webhooks == nil {
		return nil, fmt.Errorf("webhook dispatcher is not configured")
	}
	eventType := cast.ToString(cfg["event_type"])
	if eventType == "" {
		eventType = ev.TriggerType
	}
	payload := map[string]interface{}{
		"project_id":  ev.ProjectID,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"data":        ev.Data,
	}
	if extra := configMap(cfg, "payload"); extra != nil {
		for k, v := range extra {
			payload[k] = v
		}
	}
	if err := e.collab.Webhooks.Fire(ctx, eventType, payload); err != nil {
		return nil, err
	}
	return map[string]interface{}{"event_type": eventType}, nil
}
