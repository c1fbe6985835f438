package migrations

import (
	"context"
	"time"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
)

func init() {
	register(&Revision{
		ID:              "c164c7b69e55",
		DownRevision:    "854e06069e65",
		Message:         "Add updated column to publishes and tasks",
		Created:         time.Date(2021, time.February, 23, 17, 49, 13, 493461000, time.UTC),
		Upgrade:         Upc164c7b69e55,
		Downgrade:       Downc164c7b69e55,
		UpgradeTestData: testDatac164c7b69e55,
	})
}

var updatedColumn = ddl.Column{Name: "updated", Type: ddl.TimestampTZ, Nullable: true}

// Existing rows are left with a NULL updated, the models fill it in on their
// next write.
func Upc164c7b69e55(ctx context.Context, s *ddl.Schema) error {
	if err := s.AddColumn(ctx, "publishes", updatedColumn); err != nil {
		return err
	}

	return s.AddColumn(ctx, "tasks", updatedColumn)
}

func Downc164c7b69e55(ctx context.Context, s *ddl.Schema) error {
	if err := s.BatchAlter(ctx, "tasks", ddl.RecreateAuto, ddl.DropColumn{Name: "updated"}); err != nil {
		return err
	}

	return s.BatchAlter(ctx, "publishes", ddl.RecreateAuto, ddl.DropColumn{Name: "updated"})
}

func testDatac164c7b69e55(ctx context.Context, s *ddl.Schema) error {
	err := s.Insert(ctx, "publishes",
		map[string]any{"id": "f7a38eb1-0d75-4245-a4ef-3dfd02d8129f", "env": "live", "state": "COMMITTED"},
		map[string]any{"id": "e7c4d0b0-d158-49a3-a87a-3aeb7ce94e0d", "env": "pre", "state": "PENDING"},
	)
	if err != nil {
		return err
	}

	return s.Insert(ctx, "tasks",
		map[string]any{
			"id":         "fb870e73-ac62-4eb7-a75e-917b758a5d64",
			"publish_id": "f7a38eb1-0d75-4245-a4ef-3dfd02d8129f",
			"state":      "COMPLETE",
		},
		map[string]any{
			"id":         "0f31777e-8171-4f83-99bb-0464d7f7cec8",
			"publish_id": nil,
			"state":      "NOT_STARTED",
		},
	)
}
