package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/lib/pq"
)

// postgres SQLSTATE codes we classify
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqUndefinedTable      = "42P01"
)

// MapError converts a driver or library error into the repository taxonomy.
// Errors that are already *Error pass through unchanged.
func MapError(err error) *Error {
	if err == nil {
		return NewError(CodeUnknown, "unknown error")
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr
	}

	if bunrepo.IsRecordNotFound(err) || bunrepo.IsSQLExpectedCountViolation(err) {
		return NewError(CodeNotFound, "record not found")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDatabase, err.Error())
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return &Error{Code: CodeUniqueViolation, Message: pqErr.Message, Details: constraintDetails(pqErr.Constraint, pqErr.Detail)}
		case pqForeignKeyViolation:
			return &Error{Code: CodeForeignKeyViolation, Message: pqErr.Message, Details: constraintDetails(pqErr.Constraint, pqErr.Detail)}
		case pqUndefinedTable:
			return NewError(CodeTableNotFound, pqErr.Message)
		}
	}

	if code, ok := sqliteCode(err); ok {
		return NewError(code, err.Error())
	}

	if mapped, ok := mapCategory(err); ok {
		return mapped
	}

	return mapMessage(err.Error())
}

// mapCategory classifies the categorized errors go-repository-bun returns from
// reads. They replace the driver error, so pq and sqlite codes are gone.
func mapCategory(err error) (*Error, bool) {
	base := categorized(err)
	if base == nil {
		return nil, false
	}

	switch {
	case bunrepo.IsDuplicatedKey(err):
		return &Error{Code: CodeUniqueViolation, Message: base.Message, Details: metadataDetails(base.Metadata)}, true
	case base.TextCode == "FOREIGN_KEY_VIOLATION":
		return &Error{Code: CodeForeignKeyViolation, Message: base.Message, Details: metadataDetails(base.Metadata)}, true
	case bunrepo.IsConstraintViolation(err):
		return NewError(CodeDatabase, base.Message), true
	}
	return nil, false
}

func categorized(err error) *goerrors.Error {
	var retryable *goerrors.RetryableError
	if goerrors.As(err, &retryable) && retryable.BaseError != nil {
		return retryable.BaseError
	}
	var base *goerrors.Error
	if goerrors.As(err, &base) {
		return base
	}
	return nil
}

func metadataDetails(meta map[string]any) map[string]string {
	constraint, _ := meta["constraint"].(string)
	detail, _ := meta["detail"].(string)
	return constraintDetails(constraint, detail)
}

func constraintDetails(constraint, detail string) map[string]string {
	if constraint == "" && detail == "" {
		return nil
	}
	return map[string]string{"constraint": constraint, "detail": detail}
}

// mapMessage classifies errors that carry no structured code.
func mapMessage(msg string) *Error {
	if strings.TrimSpace(msg) == "" {
		return NewError(CodeUnknown, "unknown error")
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "duplicate key"), strings.Contains(lower, "unique constraint"):
		return NewError(CodeUniqueViolation, msg)
	case strings.Contains(lower, "foreign key"):
		return NewError(CodeForeignKeyViolation, msg)
	case strings.Contains(lower, "no such table"),
		strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist"):
		return NewError(CodeTableNotFound, msg)
	case strings.Contains(lower, "no rows"), strings.Contains(lower, "not found"):
		return NewError(CodeNotFound, msg)
	}
	return NewError(CodeDatabase, msg)
}

// mapPanic converts a recovered value. Non-error values are UNKNOWN_ERROR.
func mapPanic(v any) *Error {
	if err, ok := v.(error); ok {
		return MapError(err)
	}
	return NewError(CodeUnknown, fmt.Sprint(v))
}

// IsCode reports whether err is a repository *Error with code.
func IsCode(err error, code Code) bool {
	var repoErr *Error
	return errors.As(err, &repoErr) && repoErr.Code == code
}
