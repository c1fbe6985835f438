package cmds

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/LinglingXiang/exodus-gw/internal/config"
	"github.com/LinglingXiang/exodus-gw/internal/database"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
	"github.com/LinglingXiang/exodus-gw/internal/migrations"
	otelexodusgw "github.com/LinglingXiang/exodus-gw/internal/otel"
)

var tracer = otel.Tracer("github.com/LinglingXiang/exodus-gw/cmd/exodus-gw-migrate/cmds")

// State shared by the subcommands of one invocation
type app struct {
	config       *config.Config
	otelShutdown func(context.Context) error
	span         trace.Span
	configDirs   []string
	// Install the OpenTelemetry SDK once the config is loaded
	telemetry bool
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "exodus-gw-migrate",
		Short:         "Manages the exodus-gw database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.loadConfig(); err != nil {
				return err
			}

			if a.telemetry {
				a.setupTelemetry(cmd)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringSliceVar(
		&a.configDirs,
		"config-dir",
		config.DefaultPaths,
		"Directories searched for exodus-gw.yaml",
	)

	rootCmd.AddCommand(
		newUpgradeCmd(a),
		newDowngradeCmd(a),
		newCurrentCmd(a),
		newHistoryCmd(a),
		newStatusCmd(a),
		newResetCmd(a),
		newBootstrapCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}

func Execute(ctx context.Context) error {
	a := &app{telemetry: true}
	defer a.shutdownTelemetry(ctx)

	return newRootCmd(a).ExecuteContext(ctx)
}

func (a *app) setupTelemetry(cmd *cobra.Command) {
	ctx := cmd.Context()

	shutdown, err := otelexodusgw.SetupOTelSDK(ctx, "migrate", a.config.Logging.UseOTLP)
	a.otelShutdown = shutdown
	if err != nil {
		logger.Logger.WarnContext(ctx, "failed to setup otel sdk", "error", err)
	}

	ctx, a.span = tracer.Start(ctx, cmd.CommandPath())
	cmd.SetContext(ctx)
}

func (a *app) shutdownTelemetry(ctx context.Context) {
	if a.span != nil {
		a.span.End()
	}
	if a.otelShutdown == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.WithoutCancel(ctx),
		time.Second*time.Duration(a.config.GracefulShutdownSecs),
	)
	defer cancel()

	if err := a.otelShutdown(shutdownCtx); err != nil {
		logger.Logger.Warn("no clean shutdown for otel", "error", err)
	}
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.configDirs...)
	if err != nil {
		return migrationerrors.ExitErrorWrap(
			migrationerrors.ExitInvalidSettings,
			fmt.Errorf("invalid settings: %w", err),
		)
	}

	// validated by config.Load
	level, _ := logger.ParseLevel(cfg.Logging.App.Level)
	logger.LogLevel.Set(level)

	a.config = cfg
	return nil
}

func (a *app) openDatabase(ctx context.Context) (*database.DB, error) {
	return database.Open(ctx, database.OptionsFromConfig(a.config))
}

// Opens the database and a migrator over it. Close the returned database
// when done.
func (a *app) openMigrator(
	ctx context.Context,
	opts ...migrations.Option,
) (*database.DB, *migrations.Migrator, error) {
	db, err := a.openDatabase(ctx)
	if err != nil {
		return nil, nil, err
	}

	m, err := migrations.New(db.SQL, db.Dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return db, m, nil
}

func closeDatabase(ctx context.Context, db *database.DB) {
	if err := db.Close(); err != nil {
		logger.Database().WarnContext(ctx, "failed to close database", "error", err)
	}
}
