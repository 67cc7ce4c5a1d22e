// Package session keeps the entitlement state of logged-in users fresh and
// answers entitlement questions against it.
//
// A Session moves through four states:
//
//	uninitialized --login--> loading --loaded--> ready
//	                                 --failed--> error --loaded--> ready
//
// and back to uninitialized on logout. Outside ready every read answers for
// the free plan, so callers degrade to the most restrictive behavior instead
// of failing.
//
// While logged in, a background loop checks the calendar day and plan expiry
// every rollover interval, retries failed loads, and refetches whenever the
// change feed reports a write made elsewhere (another device, a billing
// webhook). Expired subscriptions are written back as free.
//
// Basic usage:
//
//	sess := session.New(catalog, store, tracker,
//		session.WithChangeFeed(feed),
//		session.WithLogger(log),
//	)
//	defer sess.Close()
//
//	if err := sess.Login(ctx, userID); err != nil {
//		log.Warn("entitlements degraded", logger.Error(err))
//	}
//
//	if _, err := sess.Attempt(ctx, subscription.LimitAstraMessagesPerDay); err != nil {
//		var denied *subscription.ActionError
//		if errors.As(err, &denied) {
//			// denied.Upgrade names the plan that unlocks the action.
//		}
//	}
//
// Servers hosting many users keep sessions in a Registry, which bounds memory
// with an LRU and closes evicted sessions.
package session
