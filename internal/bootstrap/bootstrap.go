// Package bootstrap brings a database into the state the configuration asks
// for before exodus-gw starts using it.
package bootstrap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/LinglingXiang/exodus-gw/internal/config"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
)

var tracer = otel.Tracer("github.com/LinglingXiang/exodus-gw/internal/bootstrap")

//go:generate mockgen -destination ./mock/mock.go -package mock . Database,Migrator

type Database interface {
	// Drops every table
	Reset(ctx context.Context) error
	// Creates tables from the models
	AutoMigrate(ctx context.Context) error
}

type Migrator interface {
	Upgrade(ctx context.Context, target string) ([]string, error)
}

type Settings struct {
	Mode     config.MigrationMode
	Revision string
	Reset    bool
}

func SettingsFromConfig(c *config.Config) Settings {
	return Settings{
		Mode:     c.DB.Migration.Mode,
		Revision: c.DB.Migration.Revision,
		Reset:    c.DB.Reset,
	}
}

// Resets the database when asked to, then migrates it according to the
// migration mode. Errors come back unchanged so the caller can report the
// failing revision.
func DBMigrate(ctx context.Context, db Database, m Migrator, s Settings) error {
	ctx, span := tracer.Start(ctx, "DBMigrate", trace.WithAttributes(
		attribute.String("mode", string(s.Mode)),
		attribute.String("revision", s.Revision),
		attribute.Bool("reset", s.Reset),
	))
	defer span.End()

	l := logger.Database().With("mode", s.Mode, "revision", s.Revision)

	if s.Reset {
		l.WarnContext(ctx, "dropping all tables before migration")
		if err := db.Reset(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to reset database")
			return err
		}
		span.AddEvent("reset database")
	}

	switch s.Mode {
	case config.MigrationNone:
		l.InfoContext(ctx, "skipping migration")
	case config.MigrationUpgrade:
		applied, err := m.Upgrade(ctx, s.Revision)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upgrade database")
			return err
		}
		l.InfoContext(ctx, "database upgraded", "applied", applied)
	case config.MigrationModel:
		l.WarnContext(ctx, "creating schema from models, this is not meant for production")
		if err := db.AutoMigrate(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to create schema from models")
			return err
		}
	default:
		err := fmt.Errorf("unknown migration mode %q", s.Mode)
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown migration mode")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "database ready")
	return nil
}
