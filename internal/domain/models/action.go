package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// Action is the closed set of things an action step can do. Only the types in
// this file implement it.
type Action interface {
	Kind() string
	isAction()
}

// CreateRecordAction inserts a record. FieldMappings map target field api_name
// to a formula evaluated against the triggering record.
type CreateRecordAction struct {
	TargetObject  string            `json:"target_object"`
	FieldMappings map[string]string `json:"field_mappings"`
}

// UpdateRecordAction updates a record. An empty TargetObject updates the
// triggering record; RecordID is a formula defaulting to the triggering id.
type UpdateRecordAction struct {
	TargetObject  string            `json:"target_object,omitempty"`
	RecordID      string            `json:"record_id,omitempty"`
	FieldMappings map[string]string `json:"field_mappings"`
}

// SendEmailAction sends a message. Subject and Body accept {!field} merge tags.
type SendEmailAction struct {
	To      []string `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// CallWebhookAction posts a payload built from formulas to an external URL.
type CallWebhookAction struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Payload map[string]string `json:"payload,omitempty"`
}

func (CreateRecordAction) Kind() string { return constants.ActionTypeCreateRecord }
func (UpdateRecordAction) Kind() string { return constants.ActionTypeUpdateRecord }
func (SendEmailAction) Kind() string    { return constants.ActionTypeSendEmail }
func (CallWebhookAction) Kind() string  { return constants.ActionTypeCallWebhook }

func (CreateRecordAction) isAction() {}
func (UpdateRecordAction) isAction() {}
func (SendEmailAction) isAction()    {}
func (CallWebhookAction) isAction()  {}

// ActionSpec wraps an Action for JSON storage as {"kind": ..., "config": {...}}.
type ActionSpec struct {
	Action Action
}

type actionEnvelope struct {
	Kind   string          `json:"kind"`
	Config json.RawMessage `json:"config"`
}

// MarshalJSON encodes the action with its kind tag.
func (s ActionSpec) MarshalJSON() ([]byte, error) {
	if s.Action == nil {
		return []byte("null"), nil
	}
	cfg, err := json.Marshal(s.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionEnvelope{Kind: s.Action.Kind(), Config: cfg})
}

// UnmarshalJSON decodes the tagged action. Unknown kinds are rejected here so
// that a stored flow can never carry an action the executor cannot run.
func (s *ActionSpec) UnmarshalJSON(b []byte) error {
	var env actionEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	action, err := DecodeAction(env.Kind, env.Config)
	if err != nil {
		return err
	}
	s.Action = action
	return nil
}

// DecodeAction builds the union member for kind from its JSON config.
func DecodeAction(kind string, config json.RawMessage) (Action, error) {
	if len(config) == 0 {
		config = json.RawMessage("{}")
	}
	switch kind {
	case constants.ActionTypeCreateRecord:
		var a CreateRecordAction
		if err := json.Unmarshal(config, &a); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", kind, err)
		}
		return a, nil
	case constants.ActionTypeUpdateRecord:
		var a UpdateRecordAction
		if err := json.Unmarshal(config, &a); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", kind, err)
		}
		return a, nil
	case constants.ActionTypeSendEmail:
		var a SendEmailAction
		if err := json.Unmarshal(config, &a); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", kind, err)
		}
		return a, nil
	case constants.ActionTypeCallWebhook:
		var a CallWebhookAction
		if err := json.Unmarshal(config, &a); err != nil {
			return nil, fmt.Errorf("invalid %s config: %w", kind, err)
		}
		if a.Method == "" {
			a.Method = "POST"
		}
		a.Method = strings.ToUpper(a.Method)
		return a, nil
	}
	return nil, fmt.Errorf("unknown action kind '%s'", kind)
}

// ActionKinds lists every member of the union.
func ActionKinds() []string {
	return []string{
		constants.ActionTypeCreateRecord,
		constants.ActionTypeUpdateRecord,
		constants.ActionTypeSendEmail,
		constants.ActionTypeCallWebhook,
	}
}
