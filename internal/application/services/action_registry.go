package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nexuscrm/kernel/internal/domain/models"
	"github.com/nexuscrm/kernel/pkg/formula"
	pkgmodels "github.com/nexuscrm/kernel/pkg/models"
)

// ActionContext carries the triggering record into an action handler.
type ActionContext struct {
	ObjectAPIName string
	TriggerType   string
	FlowID        string
	StepID        string
	// Record is the in-flight record. Before-trigger handlers may mutate it.
	Record pkgmodels.SObject
	Old    pkgmodels.SObject
	IsNew  bool
	Caller *pkgmodels.UserSession
	// Known reports whether a field exists on the triggering object.
	Known func(field string) bool
}

// FormulaContext builds the evaluation context for mapping formulas.
func (ac *ActionContext) FormulaContext() *formula.Context {
	return &formula.Context{
		Record: ac.Record,
		Prior:  ac.Old,
		User:   ac.Caller.ToMap(),
		IsNew:  ac.IsNew,
		Known:  ac.Known,
	}
}

// ActionHandler runs one member of the action union.
type ActionHandler interface {
	// Type returns the action kind this handler supports.
	Type() string

	// Validate checks an action's configuration for a flow on the given trigger.
	Validate(ctx context.Context, action models.Action, triggerType string) error

	// Execute runs the action.
	Execute(ctx context.Context, actx *ActionContext, action models.Action) error
}

// ActionHandlerRegistry maps action kinds to handlers. Handlers are
// registered once the services they depend on exist.
type ActionHandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ActionHandler
}

// NewActionHandlerRegistry creates a new empty registry
func NewActionHandlerRegistry() *ActionHandlerRegistry {
	return &ActionHandlerRegistry{
		handlers: make(map[string]ActionHandler),
	}
}

// Register adds an action handler to the registry.
// If a handler for the same type already exists, it will be replaced.
func (r *ActionHandlerRegistry) Register(handler ActionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handler.Type()] = handler
}

// Get retrieves a handler for the given action type.
// Returns nil if no handler is registered.
func (r *ActionHandlerRegistry) Get(actionType string) ActionHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[actionType]
}

// Types returns all registered action types, sorted.
func (r *ActionHandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Validate dispatches to the handler of the action's kind.
func (r *ActionHandlerRegistry) Validate(ctx context.Context, action models.Action, triggerType string) error {
	if action == nil {
		return fmt.Errorf("action step has no action")
	}
	handler := r.Get(action.Kind())
	if handler == nil {
		return fmt.Errorf("no handler registered for action kind '%s'", action.Kind())
	}
	return handler.Validate(ctx, action, triggerType)
}

// Execute dispatches to the handler of the action's kind.
func (r *ActionHandlerRegistry) Execute(ctx context.Context, actx *ActionContext, action models.Action) error {
	if action == nil {
		return fmt.Errorf("action step has no action")
	}
	handler := r.Get(action.Kind())
	if handler == nil {
		return fmt.Errorf("no handler registered for action kind '%s'", action.Kind())
	}
	return handler.Execute(ctx, actx, action)
}
