package cmds

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LinglingXiang/exodus-gw/internal/bootstrap"
	"github.com/LinglingXiang/exodus-gw/internal/logger"
)

var errResetNotConfirmed = errors.New("refusing to drop all tables without --yes")

func newResetCmd(a *app) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Drops every table, including the revision marker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errResetNotConfirmed
			}

			db, err := a.openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			if err := db.Reset(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "dropped all tables")
			return nil
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm that all data should be lost")

	return cmd
}

func newBootstrapCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Prepares the database as configured by db.reset and db.migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, m, err := a.openMigrator(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDatabase(cmd.Context(), db)

			settings := bootstrap.SettingsFromConfig(a.config)
			if err := bootstrap.DBMigrate(cmd.Context(), db, m, settings); err != nil {
				return err
			}

			logger.Database().InfoContext(cmd.Context(), "database ready", "mode", settings.Mode)
			return nil
		},
	}
}
