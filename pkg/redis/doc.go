// Package redis connects to Redis with go-redis/v9, retrying until the server
// answers, and exposes a health check. The client backs the Redis usage
// tracker and the cross-process change feed.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
package redis
