package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// NotFoundError represents a resource that was not found
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

// ValidationError represents invalid input
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

// UnauthorizedError is raised when the last grant on a context is a deny, or
// there are no grants at all.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("Unauthorized: %s", e.Reason)
	}
	return "Unauthorized"
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

// NoParametersError is raised when a create, update, delete or related read
// is invoked without any parameter set.
type NoParametersError struct {
	ContextName string
}

func (e *NoParametersError) Error() string {
	if e.ContextName != "" {
		return fmt.Sprintf("no parameters passed to %s", e.ContextName)
	}
	return "no parameters"
}

func (e *NoParametersError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *NoParametersError) Code() string {
	return "NO_PARAMETERS"
}

// NewNoParametersError creates a new NoParametersError
func NewNoParametersError(contextName string) *NoParametersError {
	return &NoParametersError{ContextName: contextName}
}

// SchemaIntrospectionError means a database could not describe its tables.
// It takes that one database out of the engine, nothing else.
type SchemaIntrospectionError struct {
	Database string
	Cause    error
}

func (e *SchemaIntrospectionError) Error() string {
	return fmt.Sprintf("schema introspection of database '%s' failed: %v", e.Database, e.Cause)
}

func (e *SchemaIntrospectionError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *SchemaIntrospectionError) Code() string {
	return "SCHEMA_INTROSPECTION"
}

func (e *SchemaIntrospectionError) Unwrap() error {
	return e.Cause
}

// NewSchemaIntrospectionError creates a new SchemaIntrospectionError
func NewSchemaIntrospectionError(database string, cause error) *SchemaIntrospectionError {
	return &SchemaIntrospectionError{Database: database, Cause: cause}
}

// ModuleGenerationError means a single module could not be generated. It is
// logged and skipped, typos happen all the time.
type ModuleGenerationError struct {
	ContextName string
	Cause       error
}

func (e *ModuleGenerationError) Error() string {
	return fmt.Sprintf("generating module '%s' failed: %v", e.ContextName, e.Cause)
}

func (e *ModuleGenerationError) HTTPStatus() int {
	return http.StatusInternalServerError
}

func (e *ModuleGenerationError) Code() string {
	return "MODULE_GENERATION"
}

func (e *ModuleGenerationError) Unwrap() error {
	return e.Cause
}

// NewModuleGenerationError creates a new ModuleGenerationError
func NewModuleGenerationError(contextName string, cause error) *ModuleGenerationError {
	return &ModuleGenerationError{ContextName: contextName, Cause: cause}
}

// InternalError represents unexpected server errors
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

// IsUnauthorized checks if an error is an UnauthorizedError
func IsUnauthorized(err error) bool {
	var unauthorized *UnauthorizedError
	return errors.As(err, &unauthorized)
}

// IsNoParameters checks if an error is a NoParametersError
func IsNoParameters(err error) bool {
	var noParameters *NoParametersError
	return errors.As(err, &noParameters)
}

// IsSchemaIntrospection checks if an error is a SchemaIntrospectionError
func IsSchemaIntrospection(err error) bool {
	var introspection *SchemaIntrospectionError
	return errors.As(err, &introspection)
}

// IsModuleGeneration checks if an error is a ModuleGenerationError
func IsModuleGeneration(err error) bool {
	var generation *ModuleGenerationError
	return errors.As(err, &generation)
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
// Returns "UNKNOWN_ERROR" if the error doesn't implement AppError
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
	Details any    `json:"details,omitempty"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
