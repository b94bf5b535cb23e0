package database

import "strings"

// IsUniqueViolation reports whether err came from a unique/primary-key
// constraint violation, independent of which backend raised it (SQLite's
// mattn driver and pgx phrase these differently).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

// IsNoSuchTableError helps callers gracefully degrade before migrations
// have been applied.
func IsNoSuchTableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "undefined table")
}
