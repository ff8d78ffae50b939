//go:build !cgo

package repository

// sqlite3 needs cgo; without it only message matching applies.
func sqliteCode(error) (Code, bool) {
	return "", false
}
