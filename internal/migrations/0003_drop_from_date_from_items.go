package migrations

import (
	"context"
	"time"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
)

func init() {
	register(&Revision{
		ID:           "55d4111a0e09",
		DownRevision: "c164c7b69e55",
		Message:      "Remove from_date column from items",
		Created:      time.Date(2021, time.February, 23, 10, 47, 33, 420762000, time.UTC),
		Upgrade:      Up55d4111a0e09,
		Downgrade:    Down55d4111a0e09,
	})
}

func Up55d4111a0e09(ctx context.Context, s *ddl.Schema) error {
	return s.BatchAlter(ctx, "items", ddl.RecreateAuto, ddl.DropColumn{Name: "from_date"})
}

func Down55d4111a0e09(ctx context.Context, s *ddl.Schema) error {
	// from_date cannot be NULL and there is nothing to fill it with
	if err := s.Exec(ctx, "DELETE FROM items"); err != nil {
		return err
	}

	return s.BatchAlter(ctx, "items", ddl.RecreateAuto,
		ddl.AddColumn{Column: ddl.Column{Name: "from_date", Type: ddl.String}},
	)
}
