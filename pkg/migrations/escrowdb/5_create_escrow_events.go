package escrowdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/creatorpay/escrowd/pkg/escrowstore"
	mghelper "github.com/creatorpay/escrowd/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating escrow_events table...")
		if err := mghelper.CreateSchema(ctx, db, &escrowstore.EventDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &escrowstore.EventDao{}, "deposit_id", "event_type")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping escrow_events table...")
		return mghelper.DropTables(ctx, db, &escrowstore.EventDao{})
	})
}
