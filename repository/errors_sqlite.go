//go:build cgo

package repository

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

func sqliteCode(err error) (Code, bool) {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return "", false
	}

	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return CodeUniqueViolation, true
	case sqlite3.ErrConstraintForeignKey:
		return CodeForeignKeyViolation, true
	}
	return "", false
}
