package ddl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-sqlite3"

	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return NameSQLite }

func (sqliteDialect) ColumnType(t ColumnType) string {
	switch t {
	case UUID:
		return "CHAR(36)"
	case String:
		return "VARCHAR"
	case Text:
		return "TEXT"
	case Integer:
		return "INTEGER"
	case Boolean:
		return "BOOLEAN"
	case Timestamp, TimestampTZ:
		return "DATETIME"
	default:
		return t.String()
	}
}

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) Columns(ctx context.Context, exec Executor, table string) ([]ColumnInfo, error) {
	rows, err := exec.QueryContext(ctx, `
SELECT name, type, "notnull" = 0, dflt_value, pk > 0
FROM pragma_table_info(?)
ORDER BY cid;`, table)
	if err != nil {
		return nil, SQLite.Translate(err)
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

	return columns, SQLite.Translate(rows.Err())
}

// Only nullable or defaulted columns can be added without a rebuild
func (sqliteDialect) InPlace(op Op) bool {
	add, ok := op.(AddColumn)
	return ok && (add.Column.Nullable || add.Column.Default != "")
}

func (d sqliteDialect) AlterStatements(table string, op Op) ([]string, error) {
	add, ok := op.(AddColumn)
	if !ok {
		return nil, fmt.Errorf("sqlite cannot %s in place", op)
	}

	return []string{fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN %s", Quote(table), columnDefinition(d, add.Column),
	)}, nil
}

func (sqliteDialect) Translate(err error) error {
	if err == nil || classified(err) {
		return err
	}

	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}

	switch sqliteErr.Code {
	case sqlite3.ErrCantOpen, sqlite3.ErrNotADB:
		return migrationerrors.Connectivity(err)
	case sqlite3.ErrError:
		msg := sqliteErr.Error()
		switch {
		case strings.Contains(msg, "duplicate column name"):
			return migrationerrors.SchemaConflict("", "", migrationerrors.ReasonColumnExists, err)
		case strings.Contains(msg, "no such column"):
			return migrationerrors.SchemaConflict("", "", migrationerrors.ReasonColumnMissing, err)
		case strings.Contains(msg, "no such table"):
			return migrationerrors.SchemaConflict("", "", migrationerrors.ReasonTableMissing, err)
		case strings.Contains(msg, "already exists"):
			return migrationerrors.SchemaConflict("", "", migrationerrors.ReasonTableExists, err)
		}
	}

	return err
}

func (sqliteDialect) Reflect(ctx context.Context, exec Executor, table string) (*TableDef, error) {
	def := &TableDef{Name: table}

	columns, err := SQLite.Columns(ctx, exec, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, migrationerrors.SchemaConflict(table, "", migrationerrors.ReasonTableMissing, nil)
	}
	for _, c := range columns {
		def.Columns = append(def.Columns, ColumnDef{
			Name:    c.Name,
			Type:    c.Type,
			NotNull: !c.Nullable,
			Default: c.Default,
		})
	}

	if def.PrimaryKey, err = sqlitePrimaryKey(ctx, exec, table); err != nil {
		return nil, err
	}
	if def.ForeignKeys, err = sqliteForeignKeys(ctx, exec, table); err != nil {
		return nil, err
	}
	if def.Uniques, def.Indexes, err = sqliteIndexes(ctx, exec, table); err != nil {
		return nil, err
	}

	return def, nil
}

func sqlitePrimaryKey(ctx context.Context, exec Executor, table string) ([]string, error) {
	return queryStrings(ctx, exec, `
SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk;`, table)
}

func sqliteForeignKeys(ctx context.Context, exec Executor, table string) ([]ForeignKeyDef, error) {
	rows, err := exec.QueryContext(ctx, `
SELECT id, "table", "from", "to", on_update, on_delete
FROM pragma_foreign_key_list(?)
ORDER BY id, seq;`, table)
	if err != nil {
		return nil, SQLite.Translate(err)
	}
	defer rows.Close()

	var fks []ForeignKeyDef
	lastID := -1
	for rows.Next() {
		var (
			id                 int
			refTable, from     string
			to                 sql.NullString
			onUpdate, onDelete string
		)
		if err := rows.Scan(&id, &refTable, &from, &to, &onUpdate, &onDelete); err != nil {
			return nil, err
		}

		if id != lastID {
			fks = append(fks, ForeignKeyDef{RefTable: refTable, OnUpdate: onUpdate, OnDelete: onDelete})
			lastID = id
		}
		fk := &fks[len(fks)-1]
		fk.Columns = append(fk.Columns, from)
		if to.Valid {
			fk.RefColumns = append(fk.RefColumns, to.String)
		}
	}

	return fks, rows.Err()
}

// Table-level named unique constraints; the autoindexes SQLite builds for them keep no name
var sqliteNamedUnique = regexp.MustCompile(`(?i)CONSTRAINT\s+("(?:[^"]|"")+"|` + "`[^`]+`" + `|\[[^\]]+\]|\w+)\s+UNIQUE\s*\(([^)]*)\)`)

func unquoteIdent(ident string) string {
	if len(ident) < 2 {
		return ident
	}
	switch ident[0] {
	case '"':
		return strings.ReplaceAll(ident[1:len(ident)-1], `""`, `"`)
	case '`', '[':
		return ident[1 : len(ident)-1]
	}

	return ident
}

func uniqueKey(columns []string) string {
	return strings.ToLower(strings.Join(columns, "\x00"))
}

// Maps the column list of each named unique constraint in a CREATE TABLE statement to its name
func sqliteUniqueNames(tableSQL string) map[string]string {
	names := map[string]string{}
	for _, m := range sqliteNamedUnique.FindAllStringSubmatch(tableSQL, -1) {
		var columns []string
		for _, c := range strings.Split(m[2], ",") {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if c[0] != '"' && c[0] != '`' && c[0] != '[' {
				c = strings.Fields(c)[0]
			}
			columns = append(columns, unquoteIdent(c))
		}
		names[uniqueKey(columns)] = unquoteIdent(m[1])
	}

	return names
}

func sqliteIndexes(ctx context.Context, exec Executor, table string) ([]Unique, []IndexDef, error) {
	type listed struct {
		name   string
		origin string
		unique bool
	}

	rows, err := exec.QueryContext(ctx, `
SELECT il.name, il."unique", il.origin, COALESCE(m.sql, '')
FROM pragma_index_list(?) il
LEFT JOIN sqlite_master m ON m.type = 'index' AND m.name = il.name
ORDER BY il.seq DESC;`, table)
	if err != nil {
		return nil, nil, SQLite.Translate(err)
	}

	var (
		indexes []listed
		sqls    = map[string]string{}
	)
	for rows.Next() {
		var l listed
		var stmt string
		if err := rows.Scan(&l.name, &l.unique, &l.origin, &stmt); err != nil {
			rows.Close()
			return nil, nil, err
		}
		indexes = append(indexes, l)
		sqls[l.name] = stmt
	}
	if err := rows.Close(); err != nil {
		return nil, nil, err
	}

	tableSQL, err := queryStrings(ctx, exec, `
SELECT COALESCE(sql, '') FROM sqlite_master WHERE type = 'table' AND name = ?;`, table)
	if err != nil {
		return nil, nil, err
	}
	names := map[string]string{}
	if len(tableSQL) > 0 {
		names = sqliteUniqueNames(tableSQL[0])
	}

	var (
		uniques []Unique
		defs    []IndexDef
	)
	for _, l := range indexes {
		columns, err := queryStrings(ctx, exec, `
SELECT COALESCE(name, '') FROM pragma_index_info(?) ORDER BY seqno;`, l.name)
		if err != nil {
			return nil, nil, err
		}

		switch l.origin {
		case "u":
			uniques = append(uniques, Unique{Name: names[uniqueKey(columns)], Columns: columns})
		case "c":
			defs = append(defs, IndexDef{Name: l.name, Columns: columns, SQL: sqls[l.name]})
		}
	}

	return uniques, defs, nil
}

func queryStrings(ctx context.Context, exec Executor, query string, args ...any) ([]string, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, SQLite.Translate(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
