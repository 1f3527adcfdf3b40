package core

import (
	"errors"
	"fmt"

	"readycore/pkg/domain"
)

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ValidationError reports input the caller can correct: malformed fields,
// unknown statuses, or operations the audit trail forbids.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// PersistenceError wraps a failure in the persistent store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error { return e.Err }

// StorageError wraps a failure in the blob backend. The triggering write is
// aborted; no partial records are committed.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e StorageError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// IsValidation reports whether err (or anything it wraps) is a ValidationError
// or a blocking rule violation.
func IsValidation(err error) bool {
	var ve ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var rv domain.RuleViolationError
	return errors.As(err, &rv)
}

// isDomainError reports whether err carries a domain meaning the caller acts
// on directly. Everything else coming out of a transaction is a store fault.
func isDomainError(err error) bool {
	var nf ErrNotFound
	if errors.As(err, &nf) {
		return true
	}
	return IsValidation(err)
}
