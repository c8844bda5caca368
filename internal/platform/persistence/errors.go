package persistence

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the repositories translate into domain errors
const (
	CodeUniqueViolation  = "23505"
	CodeCheckViolation   = "23514"
	CodeLockNotAvailable = "55P03"
	CodeRaiseException   = "P0001"
)

// PgErrorCode returns the SQLSTATE of a PostgreSQL error, or "" for any other error
func PgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsLockTimeout reports whether err is a lock_timeout expiry
func IsLockTimeout(err error) bool {
	return PgErrorCode(err) == CodeLockNotAvailable
}

// IsUniqueViolation reports whether err violates the named constraint, or any unique constraint if name is empty
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
