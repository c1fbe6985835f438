package bootstrap_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/LinglingXiang/exodus-gw/internal/bootstrap"
	mockbootstrap "github.com/LinglingXiang/exodus-gw/internal/bootstrap/mock"
	"github.com/LinglingXiang/exodus-gw/internal/config"
	"github.com/LinglingXiang/exodus-gw/internal/database"
	migrationerrors "github.com/LinglingXiang/exodus-gw/internal/migration_errors"
	"github.com/LinglingXiang/exodus-gw/internal/migrations"
	"github.com/LinglingXiang/exodus-gw/internal/models"
	"github.com/LinglingXiang/exodus-gw/internal/testdb"
)

func TestDBMigrate(t *testing.T) {
	t.Run("Upgrade", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		m.EXPECT().Upgrade(gomock.Any(), "head").Return([]string{"c164c7b69e55"}, nil).Times(1)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{
			Mode:     config.MigrationUpgrade,
			Revision: "head",
		})
		require.NoError(t, err)
	})

	t.Run("ResetThenNothing", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		db.EXPECT().Reset(gomock.Any()).Return(nil).Times(1)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{
			Mode:  config.MigrationNone,
			Reset: true,
		})
		require.NoError(t, err)
	})

	t.Run("ResetBeforeUpgrade", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		gomock.InOrder(
			db.EXPECT().Reset(gomock.Any()).Return(nil),
			m.EXPECT().Upgrade(gomock.Any(), "c164c7b69e55").Return(nil, nil),
		)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{
			Mode:     config.MigrationUpgrade,
			Revision: "c164c7b69e55",
			Reset:    true,
		})
		require.NoError(t, err)
	})

	t.Run("Model", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		db.EXPECT().AutoMigrate(gomock.Any()).Return(nil).Times(1)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{Mode: config.MigrationModel})
		require.NoError(t, err)
	})

	t.Run("ResetFailureStops", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		expected := migrationerrors.Connectivity(errors.New("connection refused"))
		db.EXPECT().Reset(gomock.Any()).Return(expected).Times(1)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{
			Mode:     config.MigrationUpgrade,
			Revision: "head",
			Reset:    true,
		})
		require.ErrorIs(t, err, migrationerrors.ErrConnectivity)
	})

	t.Run("UpgradeErrorUnchanged", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		db := mockbootstrap.NewMockDatabase(ctrl)
		m := mockbootstrap.NewMockMigrator(ctrl)

		expected := migrationerrors.RevisionError{
			Revision:  "c164c7b69e55",
			Direction: migrationerrors.DirectionUpgrade,
			Err:       migrationerrors.SchemaConflict("tasks", "updated", migrationerrors.ReasonColumnExists, nil),
		}
		m.EXPECT().Upgrade(gomock.Any(), "head").Return(nil, expected).Times(1)

		err := bootstrap.DBMigrate(context.Background(), db, m, bootstrap.Settings{
			Mode:     config.MigrationUpgrade,
			Revision: "head",
		})
		assert.Equal(t, expected, err)
	})

	t.Run("UnknownMode", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		err := bootstrap.DBMigrate(
			context.Background(),
			mockbootstrap.NewMockDatabase(ctrl),
			mockbootstrap.NewMockMigrator(ctrl),
			bootstrap.Settings{Mode: "sideways"},
		)
		assert.Error(t, err)
	})
}

func openSQLite(t *testing.T) (*database.DB, *migrations.Migrator) {
	t.Helper()

	db, err := database.Open(context.Background(), database.Options{
		URL:     "sqlite://" + testdb.SQLitePath(t),
		Logging: config.GormLogConfig{Level: "warn"},
	})
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.New(db.SQL, db.Dialect)
	require.NoError(t, err, "failed to create migrator")

	return db, m
}

func countPublishes(db *database.DB) (int64, error) {
	var count int64
	err := db.Gorm.Model(&models.Publish{}).Count(&count).Error
	return count, err
}

func TestDBMigrateSQLite(t *testing.T) {
	ctx := context.Background()

	t.Run("Typical", func(t *testing.T) {
		db, m := openSQLite(t)

		_, err := countPublishes(db)
		require.Error(t, err, "there should be no tables yet")

		err = bootstrap.DBMigrate(ctx, db, m, bootstrap.Settings{Mode: config.MigrationUpgrade, Revision: "head"})
		require.NoError(t, err)

		count, err := countPublishes(db)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("Reset", func(t *testing.T) {
		db, m := openSQLite(t)

		err := bootstrap.DBMigrate(ctx, db, m, bootstrap.Settings{Mode: config.MigrationUpgrade, Revision: "head"})
		require.NoError(t, err)

		err = bootstrap.DBMigrate(ctx, db, m, bootstrap.Settings{Mode: config.MigrationNone, Reset: true})
		require.NoError(t, err)

		_, err = countPublishes(db)
		require.Error(t, err, "tables should be gone after a reset")

		current, err := m.Current(ctx)
		require.NoError(t, err)
		assert.Empty(t, current, "the applied marker should be gone too")
	})

	t.Run("Model", func(t *testing.T) {
		db, m := openSQLite(t)

		err := bootstrap.DBMigrate(ctx, db, m, bootstrap.Settings{Mode: config.MigrationModel})
		require.NoError(t, err)

		count, err := countPublishes(db)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
