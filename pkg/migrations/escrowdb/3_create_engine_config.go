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
		log.Println("creating engine_config table...")
		return mghelper.CreateSchema(ctx, db, &escrowstore.ConfigDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping engine_config table...")
		return mghelper.DropTables(ctx, db, &escrowstore.ConfigDao{})
	})
}
