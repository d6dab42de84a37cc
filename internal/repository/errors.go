// Package repository provides persistence for devices and photo
// sessions. Queries use $n placeholders and run unchanged against
// PostgreSQL and SQLite.
package repository

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when no row matches.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate is returned when a unique constraint is violated.
	ErrDuplicate = errors.New("repository: duplicate")
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
