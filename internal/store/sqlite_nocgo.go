//go:build !cgo

package store

import "github.com/uptrace/bun"

func openSQLite(string) (*bun.DB, error) {
	return nil, ErrSQLiteUnavailable
}
