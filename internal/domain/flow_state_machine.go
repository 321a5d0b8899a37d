package domain

import (
	"fmt"

	"github.com/nexuscrm/kernel/pkg/constants"
)

// FlowState is the state of a single flow invocation
type FlowState string

const (
	FlowStateNotTriggered FlowState = "NotTriggered"
	FlowStateEvaluating   FlowState = "Evaluating"
	FlowStateSkipped      FlowState = "Skipped"
	FlowStateExecuting    FlowState = "Executing"
	// FlowStateSuspended indicates the flow is parked on an approval step
	FlowStateSuspended FlowState = "Suspended"
	FlowStateCompleted FlowState = "Completed"
	FlowStateFailed    FlowState = "Failed"
)

// FlowTransition represents an action that can change flow state
type FlowTransition string

const (
	TransitionTrigger  FlowTransition = "Trigger"
	TransitionSkip     FlowTransition = "Skip"
	TransitionStart    FlowTransition = "Start"
	TransitionSuspend  FlowTransition = "Suspend"
	TransitionResume   FlowTransition = "Resume"
	TransitionComplete FlowTransition = "Complete"
	TransitionFail     FlowTransition = "Fail"
)

// FlowStateMachine enforces valid state transitions for flow invocations.
// Invalid transitions return an error.
type FlowStateMachine struct {
	transitions map[stateTransitionKey]FlowState
}

type stateTransitionKey struct {
	state      FlowState
	transition FlowTransition
}

// NewFlowStateMachine creates a new state machine with the flow lifecycle rules.
// State diagram:
//
//	[NotTriggered] ──Trigger──► [Evaluating] ──Skip──► [Skipped]
//	                                 │
//	                               Start
//	                                 ▼
//	        ┌──────Resume──────  [Executing] ──Complete──► [Completed]
//	        │                        │
//	        ▼                     Suspend
//	  [Executing] ◄──────────── [Suspended]
//
//	Evaluating, Executing and Suspended can transition to [Failed] via Fail
func NewFlowStateMachine() *FlowStateMachine {
	sm := &FlowStateMachine{
		transitions: make(map[stateTransitionKey]FlowState),
	}

	sm.addTransition(FlowStateNotTriggered, TransitionTrigger, FlowStateEvaluating)
	sm.addTransition(FlowStateEvaluating, TransitionSkip, FlowStateSkipped)
	sm.addTransition(FlowStateEvaluating, TransitionStart, FlowStateExecuting)
	sm.addTransition(FlowStateEvaluating, TransitionFail, FlowStateFailed)
	sm.addTransition(FlowStateExecuting, TransitionSuspend, FlowStateSuspended)
	sm.addTransition(FlowStateExecuting, TransitionComplete, FlowStateCompleted)
	sm.addTransition(FlowStateExecuting, TransitionFail, FlowStateFailed)
	sm.addTransition(FlowStateSuspended, TransitionResume, FlowStateExecuting)
	sm.addTransition(FlowStateSuspended, TransitionFail, FlowStateFailed)

	return sm
}

func (sm *FlowStateMachine) addTransition(from FlowState, via FlowTransition, to FlowState) {
	key := stateTransitionKey{state: from, transition: via}
	sm.transitions[key] = to
}

// Transition attempts to transition from the current state using the given action.
// Returns the new state or an error if the transition is invalid.
func (sm *FlowStateMachine) Transition(current FlowState, action FlowTransition) (FlowState, error) {
	key := stateTransitionKey{state: current, transition: action}
	next, ok := sm.transitions[key]
	if !ok {
		return current, fmt.Errorf("invalid state transition: cannot %s from %s", action, current)
	}
	return next, nil
}

// CanTransition checks if a transition is valid without performing it.
func (sm *FlowStateMachine) CanTransition(current FlowState, action FlowTransition) bool {
	key := stateTransitionKey{state: current, transition: action}
	_, ok := sm.transitions[key]
	return ok
}

// IsTerminal returns true if no further transitions leave the state.
func (sm *FlowStateMachine) IsTerminal(state FlowState) bool {
	return state == FlowStateCompleted || state == FlowStateFailed || state == FlowStateSkipped
}

// InstanceStatus maps an invocation state to the status persisted on the flow
// instance row. States that are never persisted map to "".
func InstanceStatus(state FlowState) string {
	switch state {
	case FlowStateExecuting:
		return constants.FlowInstanceStatusRunning
	case FlowStateSuspended:
		return constants.FlowInstanceStatusPaused
	case FlowStateCompleted:
		return constants.FlowInstanceStatusCompleted
	case FlowStateFailed:
		return constants.FlowInstanceStatusFailed
	}
	return ""
}

// StateFromInstanceStatus is the inverse of InstanceStatus.
func StateFromInstanceStatus(status string) FlowState {
	switch status {
	case constants.FlowInstanceStatusRunning:
		return FlowStateExecuting
	case constants.FlowInstanceStatusPaused:
		return FlowStateSuspended
	case constants.FlowInstanceStatusCompleted:
		return FlowStateCompleted
	case constants.FlowInstanceStatusFailed:
		return FlowStateFailed
	}
	return FlowStateNotTriggered
}
