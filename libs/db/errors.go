package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the services react to.
const (
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func IsUniqueViolation(err error) bool {
	return pgCode(err) == CodeUniqueViolation
}

// IsRetryable reports errors caused by lock contention between transactions.
func IsRetryable(err error) bool {
	switch pgCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable:
		return true
	}
	return false
}
