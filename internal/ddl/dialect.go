package ddl

import (
	"context"
	"errors"
	"fmt"

	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

type Dialect interface {
	// Driver-level name, matches goose and gorm naming
	Name() string
	ColumnType(t ColumnType) string
	// Bind parameter for the n-th (1-based) argument
	Placeholder(n int) string
	// Live columns of table in declaration order; empty when table is absent
	Columns(ctx context.Context, exec Executor, table string) ([]ColumnInfo, error)
	// Whether op can run as a plain ALTER TABLE on this engine
	InPlace(op Op) bool
	AlterStatements(table string, op Op) ([]string, error)
	// Maps driver errors onto SchemaConflict / ConnectivityError, otherwise
	// returns err as is
	Translate(err error) error
}

// Implemented by engines whose tables can be rebuilt by CopyAndSwapAlter
type Rebuilder interface {
	Reflect(ctx context.Context, exec Executor, table string) (*TableDef, error)
}

const (
	NamePostgres = "postgres"
	NameSQLite   = "sqlite3"
)

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

func ForName(name string) (Dialect, error) {
	switch name {
	case NamePostgres, "postgresql", "pgx":
		return Postgres, nil
	case NameSQLite, "sqlite":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

func classified(err error) bool {
	return errors.Is(err, migrationerrors.ErrSchemaConflict) ||
		errors.Is(err, migrationerrors.ErrConnectivity)
}
