package clinic

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ValidationError reports input that breaks a business rule. It is raised
// before the store is touched.
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

// PersistenceError reports a statement that did not affect the rows it had to,
// a missing generated key, a missing relationship field, or a constraint the
// store rejected.
type PersistenceError struct {
	Op      string
	Entity  string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Entity, e.Op, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NotFound reports whether the error came from a statement that matched no
// row.
func (e *PersistenceError) NotFound() bool { return e.Message == msgNoRows }

// Conflict reports whether the store rejected the statement on a unique index.
func (e *PersistenceError) Conflict() bool { return uniqueViolation(e.Err) != "" }

// MissingReference reports whether the statement pointed at a row that does
// not exist.
func (e *PersistenceError) MissingReference() bool { return pgCode(e.Err) == pgForeignKeyViolation }

// MappingError reports a stored value with no domain representation.
type MappingError struct {
	Column string
	Value  string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("cannot map column %s value %q", e.Column, e.Value)
}

// ServiceError is the only error type returned by the services. The original
// cause stays reachable through errors.As.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

const (
	msgNoRows        = "no row matched"
	msgNoGeneratedID = "no generated id returned"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// uniqueViolation returns the violated constraint name, or "" when err is not a
// unique violation.
func uniqueViolation(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == "" {
			return "unique"
		}
		return pgErr.ConstraintName
	}
	return ""
}

// storeError classifies a driver error for entity/op. Unique violations become
// a PersistenceError naming the constraint; anything else is wrapped as is.
func storeError(entity, op string, err error) error {
	if c := uniqueViolation(err); c != "" {
		return &PersistenceError{Op: op, Entity: entity, Message: "duplicate value violates " + c, Err: err}
	}
	if pgCode(err) == pgForeignKeyViolation {
		return &PersistenceError{Op: op, Entity: entity, Message: "referenced row does not exist", Err: err}
	}
	var mapErr *MappingError
	var perr *PersistenceError
	if errors.As(err, &mapErr) || errors.As(err, &perr) {
		return err
	}
	return fmt.Errorf("%s %s: %w", entity, op, err)
}

func wrapService(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Op: op, Err: err}
}
