// Package escrowdb holds all the migrations for the settlement database
package escrowdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the settlement database
var Migrations = migrate.NewMigrations()
