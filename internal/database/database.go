// Package database opens the exodus-gw database with gorm and knows how to
// wipe it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	sloggorm "github.com/orandin/slog-gorm"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/LinglingXiang/exodus-gw/internal/config"
	"github.com/LinglingXiang/exodus-gw/internal/ddl"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
	"github.com/LinglingXiang/exodus-gw/internal/models"
)

var tracer = otel.Tracer("github.com/LinglingXiang/exodus-gw/internal/database")

type Options struct {
	URL            string
	Pool           config.PoolConfig
	Logging        config.GormLogConfig
	ConnectTimeout time.Duration
}

func OptionsFromConfig(c *config.Config) Options {
	return Options{
		URL:            c.DatabaseURL(),
		Pool:           *c.DB.Pool,
		Logging:        c.Logging.Gorm,
		ConnectTimeout: c.DB.ConnectTimeout,
	}
}

type DB struct {
	Gorm    *gorm.DB
	SQL     *sql.DB
	Dialect ddl.Dialect
}

// Picks the gorm driver for a database URL. postgres:// and postgresql://
// URLs are passed to pgx as is, sqlite:///path opens the file at path.
//
//nolint:ireturn // gorm drivers are only exposed as gorm.Dialector.
func Dialector(rawURL string) (gorm.Dialector, ddl.Dialect, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid database url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(rawURL), ddl.Postgres, nil
	case "sqlite", "sqlite3":
		path := u.Host + u.Path
		if path == "" {
			return nil, nil, fmt.Errorf("sqlite database url %q has no path", rawURL)
		}

		dsn := "file:" + path
		if u.RawQuery != "" {
			dsn += "?" + u.RawQuery
		}
		return sqlite.Open(dsn), ddl.SQLite, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}
}

//nolint:ireturn // slog-gorm does not export its logger type.
func gormLogger(c config.GormLogConfig) gormlogger.Interface {
	level, err := logger.ParseLevel(c.Level)
	if err != nil {
		level = slog.LevelWarn
	}

	if c.TraceQueries {
		return sloggorm.New(
			sloggorm.WithHandler(logger.Handler),
			sloggorm.WithTraceAll(),
			sloggorm.SetLogLevel(sloggorm.DefaultLogType, level),
		)
	}

	return sloggorm.New(
		sloggorm.WithHandler(logger.Handler),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, level),
	)
}

// Connects and waits up to opts.ConnectTimeout for the database to answer.
// A database that never answers is reported as a ConnectivityError.
func Open(ctx context.Context, opts Options) (*DB, error) {
	ctx, span := tracer.Start(ctx, "Open")
	defer span.End()

	dialector, dialect, err := Dialector(opts.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid database url")
		return nil, err
	}
	span.SetAttributes(attribute.String("dialect", dialect.Name()))

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:               gormLogger(opts.Logging),
		TranslateError:       true,
		DisableAutomaticPing: true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to initialize database")
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire underlying database connection")
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}

	// Configure db connection pool
	sqlDB.SetMaxIdleConns(opts.Pool.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(opts.Pool.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(opts.Pool.ConnectionTTL)
	if dialect.Name() == ddl.NameSQLite {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}

	span.AddEvent("initialized database connection")

	if err = db.Use(gormtracing.NewPlugin()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to add otel plugin to gorm")
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	span.AddEvent("added the otel plugin to gorm")

	if err = waitForDatabase(ctx, sqlDB, dialect, opts.ConnectTimeout); err != nil {
		_ = sqlDB.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "database unreachable")
		return nil, err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "opened database")
	return &DB{Gorm: db, SQL: sqlDB, Dialect: dialect}, nil
}

func waitForDatabase(ctx context.Context, db *sql.DB, dialect ddl.Dialect, timeout time.Duration) error {
	var b retry.Backoff
	b = retry.NewFibonacci(250 * time.Millisecond)
	b = retry.WithCappedDuration(5*time.Second, b)
	if timeout > 0 {
		b = retry.WithMaxDuration(timeout, b)
	} else {
		b = retry.WithMaxRetries(0, b)
	}

	attempt := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		err := db.PingContext(ctx)
		if err != nil {
			logger.Database().WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}

		return nil
	})
	if err != nil {
		return migrationerrors.Connectivity(dialect.Translate(err))
	}

	return nil
}

// Creates the schema straight from the models
func (db *DB) AutoMigrate(ctx context.Context) error {
	return models.AutoMigrate(ctx, db.Gorm)
}

func (db *DB) Close() error {
	return db.SQL.Close()
}

// Drops every table, including the migration version table
func (db *DB) Reset(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Reset")
	defer span.End()

	m := db.Gorm.WithContext(ctx).Migrator()

	tables, err := m.GetTables()
	if err != nil {
		err = db.Dialect.Translate(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list tables")
		return err
	}

	logger.Database().WarnContext(ctx, "resetting database", "tables", tables)

	for _, table := range tables {
		span.AddEvent("dropping table", trace.WithAttributes(attribute.String("table", table)))
		if err := m.DropTable(table); err != nil {
			err = db.Dialect.Translate(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to drop table")
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reset database")
	return nil
}
