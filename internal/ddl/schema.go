package ddl

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

// Schema operations bound to one connection or transaction
type Schema struct {
	exec    Executor
	dialect Dialect
}

func NewSchema(exec Executor, dialect Dialect) *Schema {
	return &Schema{exec: exec, dialect: dialect}
}

//nolint:ireturn // dialects are stateless values.
func (s *Schema) Dialect() Dialect {
	return s.dialect
}

func (s *Schema) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.exec.ExecContext(ctx, query, args...)
	return s.dialect.Translate(err)
}

func (s *Schema) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	return s.dialect.Columns(ctx, s.exec, table)
}

func (s *Schema) HasTable(ctx context.Context, table string) (bool, error) {
	columns, err := s.Columns(ctx, table)
	if err != nil {
		return false, err
	}

	return len(columns) > 0, nil
}

func (s *Schema) CreateTable(ctx context.Context, t Table) error {
	ctx, span := tracer.Start(ctx, "Schema.CreateTable", trace.WithAttributes(
		attribute.String("table", t.Name),
	))
	defer span.End()

	exists, err := s.HasTable(ctx, t.Name)
	if err != nil {
		return err
	}
	if exists {
		return migrationerrors.SchemaConflict(t.Name, "", migrationerrors.ReasonTableExists, nil)
	}

	return s.Exec(ctx, createTableStatement(s.dialect, t))
}

func (s *Schema) DropTable(ctx context.Context, table string) error {
	ctx, span := tracer.Start(ctx, "Schema.DropTable", trace.WithAttributes(
		attribute.String("table", table),
	))
	defer span.End()

	exists, err := s.HasTable(ctx, table)
	if err != nil {
		return err
	}
	if !exists {
		return migrationerrors.SchemaConflict(table, "", migrationerrors.ReasonTableMissing, nil)
	}

	return s.Exec(ctx, "DROP TABLE "+Quote(table))
}

// Always a plain ALTER TABLE ... ADD COLUMN, on every engine
func (s *Schema) AddColumn(ctx context.Context, table string, column Column) error {
	return DirectAlter{}.AlterTable(ctx, s.exec, s.dialect, table, AddColumn{Column: column})
}

func (s *Schema) DropColumn(ctx context.Context, table string, column string) error {
	return s.BatchAlter(ctx, table, RecreateAuto, DropColumn{Name: column})
}

// Groups ops on one table so that engines needing a rebuild do it once
func (s *Schema) BatchAlter(ctx context.Context, table string, recreate Recreate, ops ...Op) error {
	step := SelectAlterStep(s.dialect, recreate, ops)
	return step.AlterTable(ctx, s.exec, s.dialect, table, ops...)
}

// Inserts rows that all share the same column set
func (s *Schema) Insert(ctx context.Context, table string, rows ...map[string]any) error {
	if len(rows) == 0 {
		return nil
	}

	columns := make([]string, 0, len(rows[0]))
	for column := range rows[0] {
		columns = append(columns, column)
	}
	slices.Sort(columns)

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		Quote(table), quoteAll(columns), strings.Join(placeholders, ", "),
	)

	for _, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("insert into %s: rows have differing columns", table)
		}

		args := make([]any, 0, len(columns))
		for _, column := range columns {
			value, ok := row[column]
			if !ok {
				return fmt.Errorf("insert into %s: row missing column %s", table, column)
			}
			args = append(args, value)
		}

		if err := s.Exec(ctx, query, args...); err != nil {
			return err
		}
	}

	return nil
}
