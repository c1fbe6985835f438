// Package ddl renders and applies schema changes across the storage engines
// exodus-gw runs on.
//
// Engines differ in what they can alter in place. PostgreSQL handles every
// column operation with ALTER TABLE, SQLite can only add columns and needs the
// table rebuilt for anything else. Callers describe the change as a list of
// [Op] values and let [SelectAlterStep] pick between [DirectAlter] and
// [CopyAndSwapAlter].
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/LinglingXiang/exodus-gw/internal/ddl")

// Anything that can run statements: *sql.DB, *sql.Tx, *sql.Conn
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type ColumnType int

const (
	UUID ColumnType = iota + 1
	String
	Text
	Integer
	Boolean
	Timestamp
	TimestampTZ
)

func (t ColumnType) String() string {
	switch t {
	case UUID:
		return "uuid"
	case String:
		return "string"
	case Text:
		return "text"
	case Integer:
		return "integer"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	case TimestampTZ:
		return "timestamptz"
	default:
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
}

type Column struct {
	Name string
	// Raw SQL expression, empty for no server default
	Default  string
	Type     ColumnType
	Nullable bool
}

type ForeignKey struct {
	RefTable   string
	Columns    []string
	RefColumns []string
}

type Unique struct {
	Name    string
	Columns []string
}

func (u Unique) definition() string {
	if u.Name == "" {
		return fmt.Sprintf("UNIQUE (%s)", quoteAll(u.Columns))
	}

	return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", Quote(u.Name), quoteAll(u.Columns))
}

type Table struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey
	Uniques     []Unique
}

// A column as reported by the live catalog
type ColumnInfo struct {
	Default    *string
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func quoteAll(idents []string) string {
	quoted := make([]string, 0, len(idents))
	for _, ident := range idents {
		quoted = append(quoted, Quote(ident))
	}

	return strings.Join(quoted, ", ")
}

func columnDefinition(d Dialect, c Column) string {
	var b strings.Builder
	b.WriteString(Quote(c.Name))
	b.WriteString(" ")
	b.WriteString(d.ColumnType(c.Type))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}

	return b.String()
}

func createTableStatement(d Dialect, t Table) string {
	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+len(t.Uniques)+1)
	for _, c := range t.Columns {
		defs = append(defs, columnDefinition(d, c))
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(t.PrimaryKey)))
	}
	for _, u := range t.Uniques {
		defs = append(defs, u.definition())
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf(
			"FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteAll(fk.Columns), Quote(fk.RefTable), quoteAll(fk.RefColumns),
		))
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", Quote(t.Name), strings.Join(defs, ",\n\t"))
}
