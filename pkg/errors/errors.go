package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// AppError is the base interface for all kernel errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a referenced object, field or record that is missing
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int {
	return http.StatusNotFound
}

func (e *NotFoundError) Code() string {
	return "NOT_FOUND"
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PermissionError represents an operation or field the caller may not use
type PermissionError struct {
	Action   string
	Resource string
	Field    string
}

func (e *PermissionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("permission denied: cannot %s field '%s' on %s", e.Action, e.Field, e.Resource)
	}
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int {
	return http.StatusForbidden
}

func (e *PermissionError) Code() string {
	return "PERMISSION_DENIED"
}

// NewPermissionError creates a new PermissionError
func NewPermissionError(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// NewFieldPermissionError creates a PermissionError for a single field
func NewFieldPermissionError(action, resource, field string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource, Field: field}
}

// UnauthorizedError represents a missing or invalid identity
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return "unauthorized"
}

func (e *UnauthorizedError) HTTPStatus() int {
	return http.StatusUnauthorized
}

func (e *UnauthorizedError) Code() string {
	return "UNAUTHORIZED"
}

// NewUnauthorizedError creates a new UnauthorizedError
func NewUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

// ConflictError represents a duplicate object, field, permission or a state
// transition that is no longer possible
type ConflictError struct {
	Resource string
	Field    string
	Value    string
}

func (e *ConflictError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("%s already exists with %s='%s'", e.Resource, e.Field, e.Value)
	}
	if e.Value != "" {
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Value)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

func (e *ConflictError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *ConflictError) Code() string {
	return "CONFLICT"
}

// NewConflictError creates a new ConflictError
func NewConflictError(resource, field, value string) *ConflictError {
	return &ConflictError{Resource: resource, Field: field, Value: value}
}

// FormulaError is returned when an expression fails to compile or evaluate
type FormulaError struct {
	Expression string
	Message    string
	Cause      error
}

func (e *FormulaError) Error() string {
	return fmt.Sprintf("formula error in '%s': %s", e.Expression, e.Message)
}

func (e *FormulaError) HTTPStatus() int {
	return http.StatusUnprocessableEntity
}

func (e *FormulaError) Code() string {
	return "FORMULA_ERROR"
}

func (e *FormulaError) Unwrap() error {
	return e.Cause
}

// NewFormulaError creates a new FormulaError
func NewFormulaError(expression string, cause error) *FormulaError {
	msg := "invalid expression"
	if cause != nil {
		msg = strings.TrimSpace(cause.Error())
	}
	return &FormulaError{Expression: expression, Message: msg, Cause: cause}
}

// SchemaIntegrityError reports a mismatch between metadata rows and the
// physical schema, or a metadata row pointing at something that does not exist.
type SchemaIntegrityError struct {
	Object  string
	Message string
}

func (e *SchemaIntegrityError) Error() string {
	if e.Object != "" {
		return fmt.Sprintf("schema integrity violation on %s: %s", e.Object, e.Message)
	}
	return fmt.Sprintf("schema integrity violation: %s", e.Message)
}

func (e *SchemaIntegrityError) HTTPStatus() int {
	return http.StatusConflict
}

func (e *SchemaIntegrityError) Code() string {
	return "SCHEMA_INTEGRITY"
}

// NewSchemaIntegrityError creates a new SchemaIntegrityError
func NewSchemaIntegrityError(object, message string) *SchemaIntegrityError {
	return &SchemaIntegrityError{Object: object, Message: message}
}

// InternalError represents unexpected failures
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}

func (e *InternalError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *InternalError) Code() string {
	return "INTERNAL_ERROR"
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// NewInternalError creates a new InternalError
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// Helper functions for error checking

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsPermission checks if an error is a PermissionError
func IsPermission(err error) bool {
	var permission *PermissionError
	return errors.As(err, &permission)
}

// IsUnauthorized checks if an error is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}

// IsConflict checks if an error is a ConflictError
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}

// IsFormula checks if an error is a FormulaError
func IsFormula(err error) bool {
	var formula *FormulaError
	return errors.As(err, &formula)
}

// IsSchemaIntegrity checks if an error is a SchemaIntegrityError
func IsSchemaIntegrity(err error) bool {
	var integrity *SchemaIntegrityError
	return errors.As(err, &integrity)
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "UNKNOWN_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
