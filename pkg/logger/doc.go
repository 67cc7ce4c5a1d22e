// Package logger builds *slog.Logger values with functional options and
// provides attribute helpers that keep key names consistent across the
// entitlement services.
//
//	log := logger.New(
//		logger.WithEnvironment(logger.ParseEnvironment(cfg.AppEnv), cfg.AppName),
//		logger.WithLevelName(cfg.LogLevel),
//	)
//	slog.SetDefault(log)
//
//	ctx = logger.ContextWithUserID(ctx, userID)
//	log.InfoContext(ctx, "usage persisted", logger.Limit(l), logger.Day(day))
//
// Records logged with a context carrying a user id get a user_id attribute.
// Error and UserID return an empty Attr for nil values, which slog drops.
package logger
