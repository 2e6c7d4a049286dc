package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsTransient reports whether the error is worth retrying: connection
// loss, serialization failure, deadlock, resource exhaustion, or a
// locked SQLite database. Constraint violations and other logic errors
// are permanent and fail fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientSQLState(pgErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"conn closed",
		"database is locked", // sqlite
		"database table is locked",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// isTransientSQLState classifies Postgres SQLSTATE codes. Class 08 is
// connection failure, class 53 is resource exhaustion; 40001 and 40P01
// are serialization failure and deadlock, 57P03 is a server still
// starting up.
func isTransientSQLState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"):
		return true
	case strings.HasPrefix(code, "53"):
		return true
	case code == "40001", code == "40P01", code == "57P03":
		return true
	default:
		return false
	}
}
