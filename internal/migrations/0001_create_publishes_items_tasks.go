package migrations

import (
	"context"
	"time"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
)

func init() {
	register(&Revision{
		ID:        "854e06069e65",
		Message:   "Create publishes, items and tasks",
		Created:   time.Date(2021, time.February, 18, 9, 51, 18, 0, time.UTC),
		Upgrade:   Up854e06069e65,
		Downgrade: Down854e06069e65,
	})
}

func Up854e06069e65(ctx context.Context, s *ddl.Schema) error {
	err := s.CreateTable(ctx, ddl.Table{
		Name: "publishes",
		Columns: []ddl.Column{
			{Name: "id", Type: ddl.UUID},
			{Name: "env", Type: ddl.String},
			{Name: "state", Type: ddl.String},
		},
		PrimaryKey: []string{"id"},
	})
	if err != nil {
		return err
	}

	err = s.CreateTable(ctx, ddl.Table{
		Name: "items",
		Columns: []ddl.Column{
			{Name: "id", Type: ddl.UUID},
			{Name: "web_uri", Type: ddl.String},
			{Name: "object_key", Type: ddl.String},
			{Name: "from_date", Type: ddl.String},
			{Name: "publish_id", Type: ddl.UUID, Nullable: true},
		},
		PrimaryKey: []string{"id"},
		ForeignKeys: []ddl.ForeignKey{
			{Columns: []string{"publish_id"}, RefTable: "publishes", RefColumns: []string{"id"}},
		},
		Uniques: []ddl.Unique{
			{Name: "items_publish_id_web_uri_key", Columns: []string{"publish_id", "web_uri"}},
		},
	})
	if err != nil {
		return err
	}

	return s.CreateTable(ctx, ddl.Table{
		Name: "tasks",
		Columns: []ddl.Column{
			{Name: "id", Type: ddl.UUID},
			{Name: "publish_id", Type: ddl.UUID, Nullable: true},
			{Name: "state", Type: ddl.String},
		},
		PrimaryKey: []string{"id"},
	})
}

func Down854e06069e65(ctx context.Context, s *ddl.Schema) error {
	for _, table := range []string{"tasks", "items", "publishes"} {
		if err := s.DropTable(ctx, table); err != nil {
			return err
		}
	}

	return nil
}
