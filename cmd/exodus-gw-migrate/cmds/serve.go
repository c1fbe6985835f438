package cmds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/LinglingXiang/exodus-gw/cmd/exodus-gw-migrate/internal/routes"
	"github.com/LinglingXiang/exodus-gw/internal/bootstrap"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstraps the database, then serves health and task endpoints until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			db, m, err := a.openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeDatabase(ctx, db)

			if err := bootstrap.DBMigrate(ctx, db, m, bootstrap.SettingsFromConfig(a.config)); err != nil {
				return err
			}

			e, err := routes.BuildEcho(logger.Logger, &routes.Handler{
				DB:       db.Gorm,
				Migrator: m,
				Head:     m.Chain().Head().ID,
			})
			if err != nil {
				return fmt.Errorf("error building router: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Logger.Info("Starting services...", "address", a.config.ListenAddress)

				err := e.Start(a.config.ListenAddress)
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				logger.Logger.Info("Got shutdown signal!")

				shutdownCtx, cancel := context.WithTimeout(
					context.WithoutCancel(ctx),
					time.Second*time.Duration(a.config.GracefulShutdownSecs),
				)
				defer cancel()

				return e.Shutdown(shutdownCtx)
			})

			return g.Wait()
		},
	}
}
