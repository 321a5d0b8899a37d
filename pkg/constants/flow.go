package constants

// Flow status constants
const (
	FlowStatusActive   = "Active"
	FlowStatusInactive = "Inactive"
	FlowStatusDraft    = "Draft"
)

// Flow step kinds
const (
	FlowStepTypeAction   = "action"
	FlowStepTypeApproval = "approval"
	FlowStepTypeDecision = "decision"
)

// Flow instance status constants
const (
	FlowInstanceStatusRunning   = "Running"
	FlowInstanceStatusPaused    = "Paused"
	FlowInstanceStatusCompleted = "Completed"
	FlowInstanceStatusFailed    = "Failed"
)

// Approval work item status constants
const (
	ApprovalStatusPending  = "Pending"
	ApprovalStatusApproved = "Approved"
	ApprovalStatusRejected = "Rejected"
)

// Flow trigger types
const (
	TriggerBeforeCreate = "beforeCreate"
	TriggerAfterCreate  = "afterCreate"
	TriggerBeforeUpdate = "beforeUpdate"
	TriggerAfterUpdate  = "afterUpdate"
	TriggerBeforeDelete = "beforeDelete"
	TriggerAfterDelete  = "afterDelete"
)

// IsValidTrigger reports whether t is a known trigger type.
func IsValidTrigger(t string) bool {
	switch t {
	case TriggerBeforeCreate, TriggerAfterCreate,
		TriggerBeforeUpdate, TriggerAfterUpdate,
		TriggerBeforeDelete, TriggerAfterDelete:
		return true
	}
	return false
}

// IsBeforeTrigger reports whether t runs before persistence.
func IsBeforeTrigger(t string) bool {
	return t == TriggerBeforeCreate || t == TriggerBeforeUpdate || t == TriggerBeforeDelete
}
