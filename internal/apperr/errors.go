// Package apperr defines the error taxonomy shared by the engines and mapped
// to HTTP status codes by the response package.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports caller input that violates a precondition. It
// always names the offending entity and the violated bound.
type ValidationError struct {
	Entity  string `json:"entity"`
	ID      int64  `json:"id,omitempty"`
	Field   string `json:"field"`
	Limit   any    `json:"limit,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Limit != nil {
		msg = fmt.Sprintf("%s (limit %v)", msg, e.Limit)
	}
	if e.ID != 0 {
		return fmt.Sprintf("%s %d: %s: %s", e.Entity, e.ID, e.Field, msg)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s: %s", e.Entity, e.Field, msg)
	}
	return e.Field + ": " + msg
}

// NotFoundError reports a referenced record that does not exist or is not
// linked the way the caller expected.
type NotFoundError struct {
	Entity string `json:"entity"`
	ID     any    `json:"id"`
	Detail string `json:"detail,omitempty"`
}

func (e *NotFoundError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %v not found: %s", e.Entity, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// ConflictError reports an operation the current state of a record forbids.
type ConflictError struct {
	Entity string `json:"entity"`
	ID     any    `json:"id"`
	Reason string `json:"reason"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %v: %s", e.Entity, e.ID, e.Reason)
}

// PermissionError reports an actor lacking the permission an action needs.
type PermissionError struct {
	Action string `json:"action"`
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Action
}

// Invalid builds a ValidationError.
func Invalid(entity string, id int64, field string, limit any, format string, args ...any) error {
	return &ValidationError{Entity: entity, ID: id, Field: field, Limit: limit, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// Conflict builds a ConflictError.
func Conflict(entity string, id any, format string, args ...any) error {
	return &ConflictError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
}

// Forbidden builds a PermissionError.
func Forbidden(action string) error {
	return &PermissionError{Action: action}
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsPermission reports whether err wraps a PermissionError.
func IsPermission(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
