// Package pgstore persists subscriptions and daily usage in PostgreSQL.
//
// SubscriptionStore reads and upserts the profiles table; UsageStore keeps
// one usage_tracking row per user and calendar day and increments counters
// with a single upsert, so concurrent increments never lose updates.
// The schema ships as goose migrations in Migrations:
//
//	pool, _ := pg.Connect(ctx, cfg, log)
//	_ = pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log)
//
//	subs := pgstore.NewSubscriptionStore(pool)
//	tracker := pgstore.NewUsageStore(pool)
//
// Every database failure is wrapped with ErrQueryFailed, which matches
// subscription.ErrNetwork.
package pgstore
