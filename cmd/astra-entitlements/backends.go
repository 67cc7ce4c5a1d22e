package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/astra-social/entitlements/pkg/broadcast"
	"github.com/astra-social/entitlements/pkg/config"
	"github.com/astra-social/entitlements/pkg/httpserver"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/pg"
	"github.com/astra-social/entitlements/pkg/pgstore"
	"github.com/astra-social/entitlements/pkg/redis"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/supastore"
	"github.com/astra-social/entitlements/pkg/usage"
)

// backends holds the stores selected by configuration and the readiness
// probes of the connections behind them.
type backends struct {
	store   subscription.Store
	tracker usage.Tracker
	feed    broadcast.Broadcaster[subscription.Change]
	checks  []httpserver.Check
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg appConfig, log *slog.Logger) (*backends, error) {
	b := &backends{}

	var (
		pool        *pgxpool.Pool
		redisClient *goredis.Client
		redisCfg    redis.Config
	)

	// Postgres and Redis connect concurrently; both retry for a while.
	g, gctx := errgroup.WithContext(ctx)
	if cfg.StoreDriver == driverPostgres {
		g.Go(func() error {
			var pgCfg pg.Config
			if err := config.Load(&pgCfg); err != nil {
				return err
			}
			p, err := pg.Connect(gctx, pgCfg, log)
			if err != nil {
				return err
			}
			pool = p
			if pgCfg.AutoMigrate {
				return pg.Migrate(gctx, p, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log)
			}
			return nil
		})
	}
	if cfg.RedisEnabled {
		g.Go(func() error {
			if err := config.Load(&redisCfg); err != nil {
				return err
			}
			c, err := redis.Connect(gctx, redisCfg, log)
			if err != nil {
				return err
			}
			redisClient = c
			return nil
		})
	}
	err := g.Wait()
	if pool != nil {
		b.closers = append(b.closers, pool.Close)
	}
	if redisClient != nil {
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
	}
	if err != nil {
		b.close()
		return nil, err
	}

	switch cfg.StoreDriver {
	case driverMemory:
		b.store = subscription.NewMemoryStore()
		if redisClient == nil {
			mem := usage.NewMemoryTracker()
			b.tracker = mem
			b.closers = append(b.closers, mem.Close)
		}
	case driverPostgres:
		b.store = pgstore.NewSubscriptionStore(pool)
		b.tracker = pgstore.NewUsageStore(pool)
		b.checks = append(b.checks, httpserver.Check{Name: "postgres", Probe: pg.Healthcheck(pool)})
	case driverSupabase:
		client, err := supastore.Connect(cfg.Supabase)
		if err != nil {
			b.close()
			return nil, err
		}
		b.store = supastore.NewSubscriptionStore(client, cfg.Supabase)
		b.tracker = supastore.NewUsageStore(client, cfg.Supabase)
	default:
		b.close()
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if redisClient != nil {
		b.tracker = usage.NewRedisTracker(redisClient, usage.WithKeyPrefix(redisCfg.KeyPrefix+"usage:"))
		feed := broadcast.NewRedisBroadcaster[subscription.Change](redisClient,
			broadcast.WithChannelPrefix(redisCfg.KeyPrefix+"changes:"),
			broadcast.WithLogger(log.With(logger.Component("broadcast"))))
		b.feed = feed
		b.checks = append(b.checks, httpserver.Check{Name: "redis", Probe: redis.Healthcheck(redisClient)})
	} else {
		b.feed = broadcast.NewMemoryBroadcaster[subscription.Change](16)
	}
	b.closers = append(b.closers, func() { _ = b.feed.Close() })

	return b, nil
}
