// Package usage stores the per-user, per-day counters behind daily plan limits.
//
// A record is keyed by user id and calendar day. Reading a day that has no
// record returns zero usage; the first Increment creates it. Old days are
// never read by the evaluator and expire (Redis TTL, memory cleanup) or stay
// as history (SQL stores).
//
//	tracker := usage.NewRedisTracker(client, usage.WithKeyPrefix("astra:usage:"))
//	if err := tracker.Increment(ctx, userID, day, subscription.LimitSignalsPerDay, 1); err != nil {
//		// soft limit: log and move on
//	}
package usage
