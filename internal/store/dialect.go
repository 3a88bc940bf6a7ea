package store

import (
	"fmt"
	"strings"
)

// Dialect hides the SQL differences between the supported drivers.
type Dialect interface {
	DriverName() string
	Placeholder(position int) string
	InitStatements() []string
}

type sqliteDialect struct{}

// DriverName returns "sqlite" for the modernc.org/sqlite driver.
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) InitStatements() []string {
	return []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
}

type postgresDialect struct{}

// DriverName returns "postgres" for the lib/pq driver.
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Placeholder(position int) string { return fmt.Sprintf("$%d", position) }

func (postgresDialect) InitStatements() []string { return nil }

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	case "postgres", "postgresql", "pq":
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}

// placeholders returns n comma-separated placeholders starting at position 1.
func placeholders(d Dialect, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.Placeholder(i + 1)
	}
	return strings.Join(parts, ", ")
}
