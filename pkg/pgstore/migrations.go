package pgstore

import "embed"

// Migrations holds the goose migrations creating the profiles and
// usage_tracking tables. Pass it to pg.Migrate with MigrationsDir.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
