package ddl

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrNotInPlace = errors.New("operation cannot be performed in place")
	ErrNoRebuild  = errors.New("engine cannot rebuild tables")
)

// Applies a batch of column changes to one table
type AlterTableStep interface {
	AlterTable(ctx context.Context, exec Executor, d Dialect, table string, ops ...Op) error
}

type Recreate int

const (
	// Rebuild only when the engine cannot run every op in place
	RecreateAuto Recreate = iota
	// Rebuild whenever the engine supports it
	RecreateAlways
	RecreateNever
)

func (r Recreate) String() string {
	switch r {
	case RecreateAuto:
		return "auto"
	case RecreateAlways:
		return "always"
	case RecreateNever:
		return "never"
	default:
		return fmt.Sprintf("Recreate(%d)", int(r))
	}
}

// Picks the alteration technique for this engine and batch. Engines that
// cannot rebuild tables always get DirectAlter.
//
//nolint:ireturn // callers only need the capability.
func SelectAlterStep(d Dialect, recreate Recreate, ops []Op) AlterTableStep {
	if _, ok := d.(Rebuilder); !ok {
		return DirectAlter{}
	}

	switch recreate {
	case RecreateAlways:
		return CopyAndSwapAlter{}
	case RecreateNever:
		return DirectAlter{}
	default:
		for _, op := range ops {
			if !d.InPlace(op) {
				return CopyAndSwapAlter{}
			}
		}
		return DirectAlter{}
	}
}

// Issues one ALTER TABLE per op
type DirectAlter struct{}

func (DirectAlter) AlterTable(ctx context.Context, exec Executor, d Dialect, table string, ops ...Op) error {
	ctx, span := tracer.Start(ctx, "DirectAlter", trace.WithAttributes(
		attribute.String("table", table),
		attribute.String("dialect", d.Name()),
		attribute.Int("ops", len(ops)),
	))
	defer span.End()

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

	for _, op := range ops {
		if !d.InPlace(op) {
			err = fmt.Errorf("%s on %s: %w", op, table, ErrNotInPlace)
			span.RecordError(err)
			span.SetStatus(codes.Error, "op not supported in place")
			return err
		}

		statements, err := d.AlterStatements(table, op)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to render op")
			return err
		}

		for _, statement := range statements {
			if _, err := exec.ExecContext(ctx, statement); err != nil {
				err = d.Translate(err)
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to alter table")
				return err
			}
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "altered table")
	return nil
}
