package ddl

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

type postgresDialect struct{}

func (postgresDialect) Name() string { return NamePostgres }

func (postgresDialect) ColumnType(t ColumnType) string {
	switch t {
	case UUID:
		return "UUID"
	case String:
		return "VARCHAR"
	case Text:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP WITHOUT TIME ZONE"
	case TimestampTZ:
		return "TIMESTAMP WITH TIME ZONE"
	default:
		return t.String()
	}
}

func (postgresDialect) Placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (postgresDialect) Columns(ctx context.Context, exec Executor, table string) ([]ColumnInfo, error) {
	rows, err := exec.QueryContext(ctx, `
SELECT c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default,
       EXISTS (
           SELECT 1
           FROM information_schema.table_constraints tc
           JOIN information_schema.key_column_usage kcu
             ON kcu.constraint_name = tc.constraint_name
            AND kcu.table_schema = tc.table_schema
           WHERE tc.constraint_type = 'PRIMARY KEY'
             AND tc.table_schema = c.table_schema
             AND tc.table_name = c.table_name
             AND kcu.column_name = c.column_name
       )
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position;`, table)
	if err != nil {
		return nil, Postgres.Translate(err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var c ColumnInfo
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Default, &c.PrimaryKey); err != nil {
			return nil, err
		}
		columns = append(columns, c)
	}

	return columns, Postgres.Translate(rows.Err())
}

func (postgresDialect) InPlace(Op) bool { return true }

func (d postgresDialect) AlterStatements(table string, op Op) ([]string, error) {
	prefix := "ALTER TABLE " + Quote(table)

	switch o := op.(type) {
	case AddColumn:
		return []string{fmt.Sprintf("%s ADD COLUMN %s", prefix, columnDefinition(d, o.Column))}, nil
	case DropColumn:
		return []string{fmt.Sprintf("%s DROP COLUMN %s", prefix, Quote(o.Name))}, nil
	case AlterColumn:
		var statements []string
		if o.Type != nil {
			statements = append(statements, fmt.Sprintf(
				"%s ALTER COLUMN %s TYPE %s", prefix, Quote(o.Name), d.ColumnType(*o.Type),
			))
		}
		if o.Nullable != nil {
			change := "SET NOT NULL"
			if *o.Nullable {
				change = "DROP NOT NULL"
			}
			statements = append(statements, fmt.Sprintf(
				"%s ALTER COLUMN %s %s", prefix, Quote(o.Name), change,
			))
		}
		return statements, nil
	default:
		return nil, fmt.Errorf("unsupported op %T", op)
	}
}

func (postgresDialect) Translate(err error) error {
	if err == nil || classified(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.DuplicateColumn:
			return migrationerrors.SchemaConflict(
				pgErr.TableName, pgErr.ColumnName, migrationerrors.ReasonColumnExists, err,
			)
		case pgErr.Code == pgerrcode.UndefinedColumn:
			return migrationerrors.SchemaConflict(
				pgErr.TableName, pgErr.ColumnName, migrationerrors.ReasonColumnMissing, err,
			)
		case pgErr.Code == pgerrcode.DuplicateTable:
			return migrationerrors.SchemaConflict(
				pgErr.TableName, "", migrationerrors.ReasonTableExists, err,
			)
		case pgErr.Code == pgerrcode.UndefinedTable:
			return migrationerrors.SchemaConflict(
				pgErr.TableName, "", migrationerrors.ReasonTableMissing, err,
			)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return migrationerrors.Connectivity(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return migrationerrors.Connectivity(err)
	}

	return err
}
