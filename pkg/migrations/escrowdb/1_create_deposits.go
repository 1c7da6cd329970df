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
		log.Println("creating deposits table...")
		if err := mghelper.CreateSchema(ctx, db, &escrowstore.DepositDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &escrowstore.DepositDao{}, "depositor", "platform_id", "finalized")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping deposits table...")
		return mghelper.DropTables(ctx, db, &escrowstore.DepositDao{})
	})
}
