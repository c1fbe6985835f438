// Package migrations holds the exodus-gw revision chain and applies it with
// goose. Each revision maps onto a goose version by its position in the
// chain, so goose's version table is the record of what is applied.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
)

const name string = "github.com/LinglingXiang/exodus-gw/internal/migrations"

var (
	tracer = otel.Tracer(name)
	meter  = otel.Meter(name)
)

type RevisionStatus struct {
	AppliedAt time.Time
	Revision  *Revision
	Applied   bool
}

type options struct {
	chain    *Chain
	testData bool
}

type Option func(*options)

// Runs each revision's test data hook before its upgrade
func WithTestData(enabled bool) Option {
	return func(o *options) {
		o.testData = enabled
	}
}

// Replaces the shipped revisions
func WithChain(chain *Chain) Option {
	return func(o *options) {
		o.chain = chain
	}
}

// Applies a revision chain to one database. Operations are serialized.
type Migrator struct {
	db       *sql.DB
	dialect  ddl.Dialect
	chain    *Chain
	provider *goose.Provider
	applied  metric.Int64Counter

	// first failing revision of the running operation
	failed *migrationerrors.RevisionError

	mu       sync.Mutex
	testData bool
}

func New(db *sql.DB, dialect ddl.Dialect, opts ...Option) (*Migrator, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.chain == nil {
		chain, err := Default()
		if err != nil {
			return nil, err
		}
		o.chain = chain
	}

	applied, err := meter.Int64Counter(
		"exodus_gw.migrations.applied",
		metric.WithDescription("Revisions upgraded or downgraded"),
	)
	if err != nil {
		return nil, err
	}

	m := &Migrator{
		db:       db,
		dialect:  dialect,
		chain:    o.chain,
		applied:  applied,
		testData: o.testData,
	}

	providerOpts := []goose.ProviderOption{
		goose.WithDisableGlobalRegistry(true),
		goose.WithGoMigrations(m.gooseMigrations()...),
	}

	var gooseDialect goose.Dialect
	switch dialect.Name() {
	case ddl.NamePostgres:
		gooseDialect = goose.DialectPostgres

		locker, err := lock.NewPostgresSessionLocker()
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, goose.WithSessionLocker(locker))
	case ddl.NameSQLite:
		gooseDialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("no migration support for dialect %q", dialect.Name())
	}

	m.provider, err = goose.NewProvider(gooseDialect, db, nil, providerOpts...)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Migrator) Chain() *Chain {
	return m.chain
}

func (m *Migrator) gooseMigrations() []*goose.Migration {
	revisions := m.chain.History()
	out := make([]*goose.Migration, 0, len(revisions))

	for i, r := range revisions {
		out = append(out, goose.NewGoMigration(
			int64(i+1),
			&goose.GoFunc{RunTx: m.step(r, migrationerrors.DirectionUpgrade)},
			&goose.GoFunc{RunTx: m.step(r, migrationerrors.DirectionDowngrade)},
		))
	}

	return out
}

func (m *Migrator) step(r *Revision, direction string) func(context.Context, *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		ctx, span := tracer.Start(ctx, direction, trace.WithAttributes(
			attribute.String("revision", r.ID),
			attribute.String("direction", direction),
		))
		defer span.End()

		logger.Database().InfoContext(ctx, "running migration",
			"direction", direction,
			"revision", r.ID,
			"down_revision", r.DownRevision,
			"message", r.Message,
		)

		s := ddl.NewSchema(tx, m.dialect)

		var err error
		if direction == migrationerrors.DirectionUpgrade {
			if m.testData && r.UpgradeTestData != nil {
				span.AddEvent("inserting test data")
				err = r.UpgradeTestData(ctx, s)
			}
			if err == nil {
				err = r.Upgrade(ctx, s)
			}
		} else {
			err = r.Downgrade(ctx, s)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "migration failed")

			m.failed = &migrationerrors.RevisionError{
				Err:       m.dialect.Translate(err),
				Revision:  r.ID,
				Direction: direction,
			}
			return m.failed
		}

		m.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))

		span.RecordError(nil)
		span.SetStatus(codes.Ok, "migration complete")
		return nil
	}
}

// Runs fn against the database, returning the failing revision's error when
// one is known and a classified driver error otherwise
func (m *Migrator) run(ctx context.Context, fn func(ctx context.Context) ([]*goose.MigrationResult, error)) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed = nil

	if err := m.db.PingContext(ctx); err != nil {
		return nil, migrationerrors.Connectivity(err)
	}

	results, err := fn(ctx)

	ids := make([]string, 0, len(results))
	for _, result := range results {
		if result != nil && result.Source != nil && result.Error == nil {
			ids = append(ids, m.chain.revisionAt(result.Source.Version))
		}
	}

	if err == nil {
		return ids, nil
	}

	// revisions before the failing one are committed
	var partial *goose.PartialError
	if errors.As(err, &partial) {
		for _, result := range partial.Applied {
			if result != nil && result.Source != nil {
				ids = append(ids, m.chain.revisionAt(result.Source.Version))
			}
		}
	}

	if m.failed != nil {
		return ids, *m.failed
	}

	return ids, m.dialect.Translate(err)
}

// Applies every revision after the current one up to and including target
// ("head" or a revision ID). Returns the applied revision IDs in order, which
// on failure are the revisions committed before the failing one.
func (m *Migrator) Upgrade(ctx context.Context, target string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Upgrade", trace.WithAttributes(
		attribute.String("target", target),
	))
	defer span.End()

	version, err := m.chain.upgradeTarget(target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid upgrade target")
		return nil, err
	}

	applied, err := m.run(ctx, func(ctx context.Context) ([]*goose.MigrationResult, error) {
		current, err := m.provider.GetDBVersion(ctx)
		if err != nil {
			return nil, err
		}

		if version < current {
			return nil, fmt.Errorf(
				"%w: cannot upgrade from %s to %s",
				ErrWrongDirection, m.chain.revisionAt(current), target,
			)
		}
		if version == current {
			return nil, nil
		}

		return m.provider.UpTo(ctx, version)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		return applied, err
	}

	logger.Database().InfoContext(ctx, "upgrade complete", "target", target, "applied", applied)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upgraded")
	return applied, nil
}

// Reverts applied revisions down to target: "base", a relative step like
// "-1", or a revision ID which itself stays applied. Returns the reverted
// revision IDs in order, including those reverted before a failure.
func (m *Migrator) Downgrade(ctx context.Context, target string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Downgrade", trace.WithAttributes(
		attribute.String("target", target),
	))
	defer span.End()

	reverted, err := m.run(ctx, func(ctx context.Context) ([]*goose.MigrationResult, error) {
		current, err := m.provider.GetDBVersion(ctx)
		if err != nil {
			return nil, err
		}

		version, err := m.chain.downgradeTarget(target, current)
		if err != nil {
			return nil, err
		}

		if version > current {
			return nil, fmt.Errorf(
				"%w: cannot downgrade from %s to %s",
				ErrWrongDirection, m.chain.revisionAt(current), target,
			)
		}
		if version == current {
			return nil, nil
		}

		return m.provider.DownTo(ctx, version)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "downgrade failed")
		return reverted, err
	}

	logger.Database().InfoContext(ctx, "downgrade complete", "target", target, "reverted", reverted)

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "downgraded")
	return reverted, nil
}

// Applied revision ID, "" when nothing is applied
func (m *Migrator) Current(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Current")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		err = m.dialect.Translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read applied revision")
		return "", err
	}

	return m.chain.revisionAt(version), nil
}

func (m *Migrator) Status(ctx context.Context) ([]RevisionStatus, error) {
	ctx, span := tracer.Start(ctx, "Status")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	statuses, err := m.provider.Status(ctx)
	if err != nil {
		err = m.dialect.Translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read migration status")
		return nil, err
	}

	out := make([]RevisionStatus, 0, len(statuses))
	for _, status := range statuses {
		r, ok := m.chain.Lookup(m.chain.revisionAt(status.Source.Version))
		if !ok {
			continue
		}

		out = append(out, RevisionStatus{
			Revision:  r,
			Applied:   status.State == goose.StateApplied,
			AppliedAt: status.AppliedAt,
		})
	}

	return out, nil
}
