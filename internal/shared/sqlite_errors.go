// Package shared provides common utilities used across the codebase.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// IsSQLiteBusyError checks if the error is a SQLITE_BUSY error.
func IsSQLiteBusyError(err error) bool {
	return errContains(err, "SQLITE_BUSY")
}

// IsSQLiteLockedError checks if the error is a "database is locked" error.
func IsSQLiteLockedError(err error) bool {
	return errContains(err, "database is locked")
}

// IsSQLiteConflictError reports SQLITE_BUSY or "database is locked" errors.
// Both are transient and safe to retry.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}

// IsSQLiteUniqueError reports a UNIQUE or PRIMARY KEY constraint violation.
func IsSQLiteUniqueError(err error) bool {
	return errContains(err, "UNIQUE constraint failed") ||
		errContains(err, "SQLITE_CONSTRAINT_UNIQUE") ||
		errContains(err, "SQLITE_CONSTRAINT_PRIMARYKEY")
}

func errContains(err error, substr string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), substr)
}
