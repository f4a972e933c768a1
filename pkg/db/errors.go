package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is set, only violations of that constraint match.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}

	if pg, ok := pkgerrors.PostgresDiagnostics(err); ok {
		return pg.Code == uniqueViolationCode &&
			(constraintName == "" || pg.Constraint == constraintName)
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName) || sqliteColumnsMatch(msg, constraintName)
}

// sqliteColumnsMatch maps SQLite's "UNIQUE constraint failed: table.column"
// message onto the ux_<table>_<columns> index naming used in migrations.
func sqliteColumnsMatch(msg, constraintName string) bool {
	const marker = "UNIQUE constraint failed: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return false
	}
	for _, col := range strings.Split(msg[idx+len(marker):], ", ") {
		table, column, ok := strings.Cut(strings.TrimSpace(col), ".")
		if !ok {
			continue
		}
		rest, ok := strings.CutPrefix(constraintName, "ux_"+table+"_")
		if ok && strings.HasPrefix(rest, strings.TrimSuffix(column, "_id")) {
			return true
		}
	}
	return false
}
