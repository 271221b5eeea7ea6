package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return "validation failed"
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// AppError is an error that knows which HTTP status and code it should be reported with.
type AppError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func NewAppError(status int, code, msg string) *AppError {
	return &AppError{Status: status, Code: code, Message: msg}
}

func (err *AppError) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

func (err *AppError) Unwrap() error { return err.Err }

// ConstraintKind identifies which storage constraint was violated.
type ConstraintKind int

const (
	ConstraintUnique ConstraintKind = iota + 1
	ConstraintForeignKey
	ConstraintOther
)

// ConstraintError is returned by repositories when a write violates a storage constraint.
type ConstraintError struct {
	Kind       ConstraintKind
	Constraint string
	Field      string
	Message    string
	Err        error
}

func NewUniqueViolation(field, msg string) *ConstraintError {
	return &ConstraintError{Kind: ConstraintUnique, Field: field, Message: msg}
}

func (err *ConstraintError) Error() string {
	if err.Message != "" {
		return err.Message
	}
	if err.Err != nil {
		return err.Err.Error()
	}
	return "constraint violation: " + err.Constraint
}

func (err *ConstraintError) Unwrap() error { return err.Err }

// UploadError reports an uploaded file that was rejected before processing.
type UploadError struct {
	Field  string
	Reason string
}

func (err *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", err.Field, err.Reason)
}

// ConfigurationError is fatal at startup: a required setting is missing or unsafe.
type ConfigurationError struct {
	Key    string
	Reason string
}

func NewConfigurationError(key, reason string) error {
	return &ConfigurationError{Key: key, Reason: reason}
}

func (err *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", err.Key, err.Reason)
}

// shutdown reports a condition the process cannot serve through, such as losing its database.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s *shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	var s *shutdown
	return errors.As(err, &s)
}
