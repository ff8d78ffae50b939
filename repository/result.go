package repository

import "fmt"

// Code classifies a repository failure.
type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeUniqueViolation        Code = "UNIQUE_VIOLATION"
	CodeDuplicateEmail         Code = "DUPLICATE_EMAIL"
	CodeDuplicateHouseholdCode Code = "DUPLICATE_HOUSEHOLD_CODE"
	CodeForeignKeyViolation    Code = "FOREIGN_KEY_VIOLATION"
	CodeNotFound               Code = "NOT_FOUND"
	CodeTableNotFound          Code = "TABLE_NOT_FOUND"
	CodeDatabase               Code = "DATABASE_ERROR"
	CodeUnknown                Code = "UNKNOWN_ERROR"
	CodeAccountLocked          Code = "ACCOUNT_LOCKED"
)

// Error is the failure half of a Result. Field names the offending input field
// when there is one, so callers can highlight it.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (field %s)", e.Code, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an Error with code and message.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ValidationError reports invalid input on field.
func ValidationError(field, message string, details any) *Error {
	return &Error{Code: CodeValidation, Message: message, Field: field, Details: details}
}

// Result is the envelope every repository operation returns. Exactly one of
// Data and Error is meaningful, selected by Success.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// Ok wraps data in a successful Result.
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// OkCount wraps a page of data together with the total row count.
func OkCount[T any](data T, count int) Result[T] {
	return Result[T]{Success: true, Data: data, Count: count}
}

// Fail wraps err in a failed Result.
func Fail[T any](err *Error) Result[T] {
	if err == nil {
		err = NewError(CodeUnknown, "unknown error")
	}
	return Result[T]{Error: err}
}

// Err returns the failure as an error, or nil on success.
func (r Result[T]) Err() error {
	if r.Success || r.Error == nil {
		return nil
	}
	return r.Error
}

// Code returns the error code, or "" on success.
func (r Result[T]) Code() Code {
	if r.Error == nil {
		return ""
	}
	return r.Error.Code
}

// Recast carries a failed result over to another data type.
func Recast[R, T any](r Result[T]) Result[R] {
	return Fail[R](r.Error)
}
