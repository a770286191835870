package pgerror

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

func GetConstraintName(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505",
			"23503",
			"23514",
			"23502":
			if pgErr.ConstraintName != "" {
				return pgErr.ConstraintName, true
			}
		}
	}
	return "", false
}

// IsLockConflict reports whether err is a deadlock or a failed NOWAIT row
// lock acquisition. Both mean another scheduler holds the placeholder rows
// and the caller should back off and retry.
func IsLockConflict(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40P01", // deadlock_detected
			"55P03": // lock_not_available
			return true
		}
	}
	return false
}
