package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrConfiguration is returned when a field action declaration is invalid
	// or conflicts with an existing declaration.
	ErrConfiguration = errors.New("invalid field configuration")

	// ErrInvalidValue is returned when a field value cannot be interpreted as
	// the type its declared actions require.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrConnClosed is returned when operating on a closed connection.
	ErrConnClosed = errors.New("connection closed")

	// ErrStaleView is returned when a search view has been invalidated by a
	// concurrent modification of the underlying index.
	ErrStaleView = errors.New("stale search view")

	// ErrDocNotFound is returned when a document is not found
	ErrDocNotFound = errors.New("document not found")
)

// ConfigurationError represents an invalid field action declaration with context
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("configuration error for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// ValueError represents a field value which cannot be parsed as the declared type
type ValueError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValueError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("value error for field '%s' (value '%s'): %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("value error for '%s': %s", e.Value, e.Message)
}

func (e *ValueError) Is(target error) bool {
	return target == ErrInvalidValue
}

// NewValueError creates a new ValueError
func NewValueError(field, value, message string) *ValueError {
	return &ValueError{Field: field, Value: value, Message: message}
}

// ClosedError represents an operation attempted on a closed connection
type ClosedError struct {
	Operation string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("cannot %s: connection has been closed", e.Operation)
}

func (e *ClosedError) Is(target error) bool {
	return target == ErrConnClosed
}

// NewClosedError creates a new ClosedError
func NewClosedError(operation string) *ClosedError {
	return &ClosedError{Operation: operation}
}

// StaleViewError represents a search view invalidated by a concurrent write.
// A single occurrence during query evaluation is retried internally after a
// reopen; repeated occurrences are surfaced to the caller.
type StaleViewError struct {
	Revision     uint64
	ViewRevision uint64
}

func (e *StaleViewError) Error() string {
	return fmt.Sprintf("search view at revision %d is stale (index at revision %d)", e.ViewRevision, e.Revision)
}

func (e *StaleViewError) Is(target error) bool {
	return target == ErrStaleView
}

// NewStaleViewError creates a new StaleViewError
func NewStaleViewError(viewRevision, revision uint64) *StaleViewError {
	return &StaleViewError{ViewRevision: viewRevision, Revision: revision}
}

// DocumentNotFoundError represents a document not found error with context
type DocumentNotFoundError struct {
	DocumentID string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("document with ID '%s' not found", e.DocumentID)
}

func (e *DocumentNotFoundError) Is(target error) bool {
	return target == ErrDocNotFound
}

// NewDocumentNotFoundError creates a new DocumentNotFoundError
func NewDocumentNotFoundError(documentID string) *DocumentNotFoundError {
	return &DocumentNotFoundError{DocumentID: documentID}
}
