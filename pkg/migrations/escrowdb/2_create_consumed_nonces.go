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
		log.Println("creating consumed_nonces table...")
		return mghelper.CreateSchema(ctx, db, &escrowstore.NonceDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping consumed_nonces table...")
		return mghelper.DropTables(ctx, db, &escrowstore.NonceDao{})
	})
}
