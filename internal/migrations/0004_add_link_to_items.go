package migrations

import (
	"context"
	"time"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
)

func init() {
	register(&Revision{
		ID:           "c46641b76073",
		DownRevision: "55d4111a0e09",
		Message:      "Add link_to column to items table and make it and object_key nullable",
		Created:      time.Date(2021, time.November, 3, 13, 0, 30, 443526000, time.UTC),
		Upgrade:      Upc46641b76073,
		Downgrade:    Downc46641b76073,
	})
}

func Upc46641b76073(ctx context.Context, s *ddl.Schema) error {
	if err := s.Exec(ctx, "DELETE FROM items"); err != nil {
		return err
	}

	return s.BatchAlter(ctx, "items", ddl.RecreateAlways,
		ddl.AddColumn{Column: ddl.Column{Name: "link_to", Type: ddl.String, Nullable: true}},
		ddl.AlterColumn{Name: "object_key", Nullable: ddl.Ptr(true)},
	)
}

func Downc46641b76073(ctx context.Context, s *ddl.Schema) error {
	return s.BatchAlter(ctx, "items", ddl.RecreateAuto,
		ddl.AlterColumn{Name: "object_key", Nullable: ddl.Ptr(false)},
		ddl.DropColumn{Name: "link_to"},
	)
}
