package models

import (
	"time"
)

// Flow represents a trigger-bound automation
type Flow struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Status           string     `json:"status"` // Active, Draft, Inactive
	Description      *string    `json:"description,omitempty"`
	TriggerObject    string     `json:"trigger_object"`
	TriggerType      string     `json:"trigger_type"` // beforeCreate, afterCreate, ...
	TriggerCondition string     `json:"trigger_condition,omitempty"`
	Steps            []FlowStep `json:"steps"`
	LastModified     time.Time  `json:"last_modified_date,omitempty"`
}

// StepIndex returns the position of the step with the given id, or -1.
func (f *Flow) StepIndex(stepID string) int {
	for i := range f.Steps {
		if f.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// FlowStep represents one step of a flow
type FlowStep struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Order          int         `json:"order"`
	Kind           string      `json:"kind"` // action, approval, decision
	Action         *ActionSpec `json:"action,omitempty"`
	ProcessID      *string     `json:"process_id,omitempty"`      // approval steps; defaults to the object's active process
	EntryCondition *string     `json:"entry_condition,omitempty"` // skip if false; branch condition for decisions
	OnSuccessStep  *string     `json:"on_success_step,omitempty"`
	OnFailureStep  *string     `json:"on_failure_step,omitempty"`
}

// FlowInstance is the persisted state of a multi-step flow run
type FlowInstance struct {
	ID            string                 `json:"id"`
	FlowID        string                 `json:"flow_id"`
	ObjectAPIName string                 `json:"object_api_name"`
	RecordID      string                 `json:"record_id"`
	Status        string                 `json:"status"` // Running, Paused, Completed, Failed
	CurrentStepID *string                `json:"current_step_id,omitempty"`
	ContextData   map[string]interface{} `json:"context_data,omitempty"`
	ErrorMessage  *string                `json:"error_message,omitempty"`
	StartedByID   string                 `json:"started_by_id"`
	StartedDate   time.Time              `json:"started_date"`
	CompletedDate *time.Time             `json:"completed_date,omitempty"`
}
