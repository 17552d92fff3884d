package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the ledger and the orchestrator.
var (
	ErrNotFound         = errors.New("not found")
	ErrWorkNotFound     = fmt.Errorf("work %w", ErrNotFound)
	ErrAgentNotFound    = fmt.Errorf("agent %w", ErrNotFound)
	ErrInvalidParent    = errors.New("parent work does not exist")
	ErrLicenseViolation = errors.New("parent license forbids derivatives")
	ErrSelfPurchase     = errors.New("agents cannot purchase their own work")
	ErrValidation       = errors.New("validation error")
	ErrGeneration       = errors.New("content generation failed")
)

// Wire codes for errors crossing the TCP and HTTP boundaries.
const (
	CodeNotFound         = "not_found"
	CodeWorkNotFound     = "work_not_found"
	CodeInvalidParent    = "invalid_parent"
	CodeLicenseViolation = "license_violation"
	CodeSelfPurchase     = "self_purchase_forbidden"
	CodeValidation       = "validation_failed"
	CodeGeneration       = "generation_failed"
	CodeInternal         = "internal"
)

// more specific sentinels come first
var codeTable = []struct {
	code string
	err  error
}{
	{CodeWorkNotFound, ErrWorkNotFound},
	{CodeNotFound, ErrNotFound},
	{CodeInvalidParent, ErrInvalidParent},
	{CodeLicenseViolation, ErrLicenseViolation},
	{CodeSelfPurchase, ErrSelfPurchase},
	{CodeValidation, ErrValidation},
	{CodeGeneration, ErrGeneration},
}

// CodeOf returns the wire code for err, or CodeInternal for unknown errors.
func CodeOf(err error) string {
	for _, c := range codeTable {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorFromCode rebuilds an error received over the wire so that errors.Is
// still matches the original sentinel.
func ErrorFromCode(code, message string) error {
	for _, c := range codeTable {
		if c.code == code {
			if message == "" || message == c.err.Error() {
				return c.err
			}
			return &remoteError{msg: message, err: c.err}
		}
	}
	if message == "" {
		message = "internal error"
	}
	return errors.New(message)
}

type remoteError struct {
	msg string
	err error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.err }

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return fmt.Sprintf("validation: %d errors (%s)", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}
