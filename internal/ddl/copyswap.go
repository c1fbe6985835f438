package ddl

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tmpTablePrefix = "_tmp_"

type ColumnDef struct {
	Default *string
	Name    string
	// Engine type name exactly as declared
	Type    string
	NotNull bool
}

type ForeignKeyDef struct {
	RefTable   string
	OnUpdate   string
	OnDelete   string
	Columns    []string
	RefColumns []string
}

type IndexDef struct {
	Name    string
	SQL     string
	Columns []string
}

// Full reflected layout of a table, enough to recreate it
type TableDef struct {
	Name        string
	Columns     []ColumnDef
	PrimaryKey  []string
	ForeignKeys []ForeignKeyDef
	Uniques     []Unique
	Indexes     []IndexDef
}

func (t *TableDef) column(name string) int {
	return slices.IndexFunc(t.Columns, func(c ColumnDef) bool { return c.Name == name })
}

func (t *TableDef) dropColumn(name string) {
	t.Columns = slices.DeleteFunc(t.Columns, func(c ColumnDef) bool { return c.Name == name })
	t.PrimaryKey = slices.DeleteFunc(t.PrimaryKey, func(c string) bool { return c == name })
	t.Uniques = slices.DeleteFunc(t.Uniques, func(u Unique) bool { return slices.Contains(u.Columns, name) })
	t.ForeignKeys = slices.DeleteFunc(t.ForeignKeys, func(fk ForeignKeyDef) bool {
		return slices.Contains(fk.Columns, name)
	})
	t.Indexes = slices.DeleteFunc(t.Indexes, func(ix IndexDef) bool {
		return slices.Contains(ix.Columns, name)
	})
}

// Applies ops to the layout and returns the columns whose data carries over
func (t *TableDef) apply(d Dialect, ops []Op) ([]string, error) {
	original := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		original[c.Name] = true
	}
	added := map[string]bool{}

	for _, op := range ops {
		switch o := op.(type) {
		case AddColumn:
			def := ColumnDef{
				Name:    o.Column.Name,
				Type:    d.ColumnType(o.Column.Type),
				NotNull: !o.Column.Nullable,
			}
			if o.Column.Default != "" {
				def.Default = Ptr(o.Column.Default)
			}
			t.Columns = append(t.Columns, def)
			added[o.Column.Name] = true
		case DropColumn:
			t.dropColumn(o.Name)
			delete(added, o.Name)
			delete(original, o.Name)
		case AlterColumn:
			i := t.column(o.Name)
			if i < 0 {
				return nil, fmt.Errorf("column %s not in %s", o.Name, t.Name)
			}
			if o.Nullable != nil {
				t.Columns[i].NotNull = !*o.Nullable
			}
			if o.Type != nil {
				t.Columns[i].Type = d.ColumnType(*o.Type)
			}
		default:
			return nil, fmt.Errorf("unsupported op %T", op)
		}
	}

	var copied []string
	for _, c := range t.Columns {
		if original[c.Name] && !added[c.Name] {
			copied = append(copied, c.Name)
		}
	}

	return copied, nil
}

func (t *TableDef) createStatement(name string) string {
	defs := make([]string, 0, len(t.Columns)+len(t.Uniques)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		def := Quote(c.Name)
		if c.Type != "" {
			def += " " + c.Type
		}
		if c.NotNull {
			def += " NOT NULL"
		}
		if c.Default != nil {
			def += " DEFAULT " + *c.Default
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(t.PrimaryKey)))
	}
	for _, u := range t.Uniques {
		defs = append(defs, u.definition())
	}
	for _, fk := range t.ForeignKeys {
		def := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s", quoteAll(fk.Columns), Quote(fk.RefTable))
		if len(fk.RefColumns) > 0 {
			def += fmt.Sprintf(" (%s)", quoteAll(fk.RefColumns))
		}
		if fk.OnUpdate != "" && fk.OnUpdate != "NO ACTION" {
			def += " ON UPDATE " + fk.OnUpdate
		}
		if fk.OnDelete != "" && fk.OnDelete != "NO ACTION" {
			def += " ON DELETE " + fk.OnDelete
		}
		defs = append(defs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", Quote(name), strings.Join(defs, ",\n\t"))
}

func (ix IndexDef) statement(table string) string {
	if ix.SQL != "" {
		return ix.SQL
	}

	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", Quote(ix.Name), Quote(table), quoteAll(ix.Columns))
}

// Rebuilds the table under a temporary name with the new layout, copies the
// rows across, drops the original and renames the copy into place.
type CopyAndSwapAlter struct{}

func (CopyAndSwapAlter) AlterTable(ctx context.Context, exec Executor, d Dialect, table string, ops ...Op) error {
	ctx, span := tracer.Start(ctx, "CopyAndSwapAlter", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("dialect", d.Name()),
		attribute.Int("ops", len(ops)),
	))
	defer span.End()

	rebuilder, ok := d.(Rebuilder)
	if !ok {
		err := fmt.Errorf("%s: %w", d.Name(), ErrNoRebuild)
		span.RecordError(err)
		span.SetStatus(codes.Error, "dialect cannot rebuild tables")
		return err
	}

	existing, err := d.Columns(ctx, exec, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read columns")
		return err
	}

	if err = checkOps(table, existing, ops); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "schema conflict")
		return err
	}

	def, err := rebuilder.Reflect(ctx, exec, table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to reflect table")
		return err
	}

	copied, err := def.apply(d, ops)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to apply ops to table layout")
		return err
	}

	tmp := tmpTablePrefix + table
	statements := []string{def.createStatement(tmp)}
	if len(copied) > 0 {
		statements = append(statements, fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s",
			Quote(tmp), quoteAll(copied), quoteAll(copied), Quote(table),
		))
	}
	statements = append(statements,
		fmt.Sprintf("DROP TABLE %s", Quote(table)),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", Quote(tmp), Quote(table)),
	)
	for _, ix := range def.Indexes {
		statements = append(statements, ix.statement(table))
	}

	for i, statement := range statements {
		if _, err := exec.ExecContext(ctx, statement); err != nil {
			err = d.Translate(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to rebuild table")

			// the original is untouched until the copy is complete
			if i < len(statements)-len(def.Indexes)-2 {
				_, _ = exec.ExecContext(ctx, "DROP TABLE IF EXISTS "+Quote(tmp))
			}
			return err
		}
	}

	span.AddEvent("rebuilt table", trace.WithAttributes(attribute.Int("copied_columns", len(copied))))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "altered table")
	return nil
}
