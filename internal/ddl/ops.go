package ddl

import (
	"fmt"

	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

// A single column change inside an ALTER TABLE batch
type Op interface {
	column() string
	String() string
}

type AddColumn struct {
	Column Column
}

func (o AddColumn) column() string { return o.Column.Name }

func (o AddColumn) String() string {
	return fmt.Sprintf("add column %s (%s)", o.Column.Name, o.Column.Type)
}

type DropColumn struct {
	Name string
}

func (o DropColumn) column() string { return o.Name }

func (o DropColumn) String() string {
	return fmt.Sprintf("drop column %s", o.Name)
}

// Changes nullability and/or type; nil fields are left alone
type AlterColumn struct {
	Nullable *bool
	Type     *ColumnType
	Name     string
}

func (o AlterColumn) column() string { return o.Name }

func (o AlterColumn) String() string {
	return fmt.Sprintf("alter column %s", o.Name)
}

func Ptr[T any](v T) *T {
	return &v
}

// Replays ops against the live column set so that conflicts surface before
// any DDL is issued.
func checkOps(table string, existing []ColumnInfo, ops []Op) error {
	if len(existing) == 0 {
		return migrationerrors.SchemaConflict(table, "", migrationerrors.ReasonTableMissing, nil)
	}

	present := make(map[string]bool, len(existing))
	for _, c := range existing {
		present[c.Name] = true
	}

	for _, op := range ops {
		name := op.column()
		switch op.(type) {
		case AddColumn:
			if present[name] {
				return migrationerrors.SchemaConflict(table, name, migrationerrors.ReasonColumnExists, nil)
			}
			present[name] = true
		case DropColumn:
			if !present[name] {
				return migrationerrors.SchemaConflict(table, name, migrationerrors.ReasonColumnMissing, nil)
			}
			delete(present, name)
		case AlterColumn:
			if !present[name] {
				return migrationerrors.SchemaConflict(table, name, migrationerrors.ReasonColumnMissing, nil)
			}
		default:
			return fmt.Errorf("unsupported op %T", op)
		}
	}

	return nil
}
