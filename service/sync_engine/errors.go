package sync_engine

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrSyncInProgress another run of the same kind holds the kind lock
	ErrSyncInProgress = errors.New("a sync run for this entity kind is already in progress")
	// ErrRunTerminal the run already reached success or error
	ErrRunTerminal = errors.New("sync run already finished")
	// ErrRunNotFound no run with the given id
	ErrRunNotFound = errors.New("sync run not found")
)

// ValidationError bad trigger input, rejected before any run is opened
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersistenceError storage failure; the whole batch was rolled back
type PersistenceError struct {
	Op         string
	Constraint bool // unique/foreign key violation
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Constraint {
		return fmt.Sprintf("%s: constraint violation: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func newPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{
		Op:         op,
		Constraint: errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated),
		Err:        err,
	}
}
