package models

import (
	"time"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// ApprovalProcess configures how records of one object are approved.
type ApprovalProcess struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	ObjectAPIName  string                 `json:"object_api_name"`
	ApproverType   constants.ApproverType `json:"approver_type"`
	ApproverID     *string                `json:"approver_id,omitempty"`
	EntryCondition *string                `json:"entry_condition,omitempty"`
	IsActive       bool                   `json:"is_active"`
}

// ApprovalWorkItem is one approval request for one record.
type ApprovalWorkItem struct {
	ID               string     `json:"id"`
	ProcessID        string     `json:"process_id"`
	ObjectAPIName    string     `json:"object_api_name"`
	RecordID         string     `json:"record_id"`
	Status           string     `json:"status"`
	SubmittedByID    string     `json:"submitted_by_id"`
	SubmittedDate    time.Time  `json:"submitted_date"`
	ApproverID       *string    `json:"approver_id,omitempty"`
	ApprovedByID     *string    `json:"approved_by_id,omitempty"`
	ApprovedDate     *time.Time `json:"approved_date,omitempty"`
	Comments         *string    `json:"comments,omitempty"`
	ApproverComments *string    `json:"approver_comments,omitempty"`
	FlowInstanceID   *string    `json:"flow_instance_id,omitempty"`
	FlowStepID       *string    `json:"flow_step_id,omitempty"`
}

// IsPending reports whether the request can still be resolved.
func (w *ApprovalWorkItem) IsPending() bool {
	return w.Status == constants.ApprovalStatusPending
}
