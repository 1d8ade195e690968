// Package apperror defines the error kinds surfaced by the approval engine and
// their transport mapping.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is implemented by every error kind the HTTP layer knows how to map
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// ErrApproverNotFound is matched by every ApproverResolutionError
var ErrApproverNotFound = errors.New("approver not found")

// NotFoundError represents a missing request, template, user or role
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Code() string    { return "NOT_FOUND" }

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource string, id any) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
}

// AuthorizationError is returned when the actor may not perform the action:
// not the current step's approver, or not the requester for a cancel.
type AuthorizationError struct {
	Action  string
	ActorID int64
	Reason  string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %d is not allowed to %s: %s", e.ActorID, e.Action, e.Reason)
}

func (e *AuthorizationError) HTTPStatus() int { return http.StatusForbidden }
func (e *AuthorizationError) Code() string    { return "FORBIDDEN" }

// NewAuthorizationError creates a new AuthorizationError
func NewAuthorizationError(action string, actorID int64, reason string) *AuthorizationError {
	return &AuthorizationError{Action: action, ActorID: actorID, Reason: reason}
}

// ApproverResolutionError is returned when a step strategy resolves to nobody
type ApproverResolutionError struct {
	Strategy string
	Detail   string
}

func (e *ApproverResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve approver for %s: %s", e.Strategy, e.Detail)
}

func (e *ApproverResolutionError) Unwrap() error   { return ErrApproverNotFound }
func (e *ApproverResolutionError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *ApproverResolutionError) Code() string    { return "APPROVER_NOT_FOUND" }

// NewApproverResolutionError creates a new ApproverResolutionError
func NewApproverResolutionError(strategy, detail string) *ApproverResolutionError {
	return &ApproverResolutionError{Strategy: strategy, Detail: detail}
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

func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }
func (e *ValidationError) Code() string    { return "VALIDATION_ERROR" }

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IllegalStateError is returned for actions on a terminal or already-advanced request
type IllegalStateError struct {
	Action string
	Status string
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %s", e.Action, e.Status)
}

func (e *IllegalStateError) HTTPStatus() int { return http.StatusConflict }
func (e *IllegalStateError) Code() string    { return "ILLEGAL_STATE" }

// NewIllegalStateError creates a new IllegalStateError
func NewIllegalStateError(action, status string) *IllegalStateError {
	return &IllegalStateError{Action: action, Status: status}
}

// ConflictError is returned when a concurrent writer changed the row first, or
// a unique value is already taken.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %s", e.Resource, e.Detail)
}

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *ConflictError) Code() string    { return "CONFLICT" }

// NewConflictError creates a new ConflictError
func NewConflictError(resource, detail string) *ConflictError {
	return &ConflictError{Resource: resource, Detail: detail}
}

// UnauthorizedError represents authentication failures
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unauthorized: %s", e.Reason)
	}
	return "unauthorized"
}

func (e *UnauthorizedError) HTTPStatus() int { return http.StatusUnauthorized }
func (e *UnauthorizedError) Code() string    { return "UNAUTHORIZED" }

// NewUnauthorizedError creates a new UnauthorizedError
func NewUnauthorizedError(reason string) *UnauthorizedError {
	return &UnauthorizedError{Reason: reason}
}

// As extracts the AppError in err's chain, if any
func As(err error) (AppError, bool) {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// StatusOf returns the HTTP status for err, 500 when err is not an AppError
func StatusOf(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
