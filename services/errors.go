package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies a service failure so the HTTP layer can pick a status code
type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindConflict     Kind = "CONFLICT"
	KindTransient    Kind = "TRANSIENT_ERROR"
	KindInternal     Kind = "INTERNAL_ERROR"
)

// Error is the typed error returned by every service operation
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError reports input that violates a domain rule
func ValidationError(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

// NotFoundError reports a missing entity
func NotFoundError(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

// ForbiddenError reports a caller that may not perform the operation
func ForbiddenError(format string, args ...interface{}) *Error {
	return newError(KindForbidden, format, args...)
}

// UnauthorizedError reports missing or wrong credentials
func UnauthorizedError(format string, args ...interface{}) *Error {
	return newError(KindUnauthorized, format, args...)
}

// ConflictError reports a uniqueness or version clash
func ConflictError(format string, args ...interface{}) *Error {
	return newError(KindConflict, format, args...)
}

// KindOf returns the kind of err, KindInternal for untyped errors
func KindOf(err error) Kind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// classifyStoreError maps a database failure onto an error kind. The cause is
// kept for logging but never shown to callers.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTransient, Message: op + " timed out, retry later", Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Message: op + " conflicts with an existing record", Err: err}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &Error{Kind: KindValidation, Message: op + " references a missing record", Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return &Error{Kind: KindConflict, Message: op + " conflicts with an existing record", Err: err}
		case pgErr.Code == "23503":
			return &Error{Kind: KindValidation, Message: op + " references a missing record", Err: err}
		case pgErr.Code == "40001", pgErr.Code == "40P01", pgErr.Code == "57014", pgErr.Code == "55P03",
			strings.HasPrefix(pgErr.Code, "08"):
			return &Error{Kind: KindTransient, Message: op + " could not complete, retry later", Err: err}
		}
	}

	return &Error{Kind: KindInternal, Message: op + " failed", Err: err}
}
