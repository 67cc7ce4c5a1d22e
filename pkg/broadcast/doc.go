// Package broadcast provides typed, topic-keyed fan-out of messages.
//
// It backs the entitlement change feed: billing webhooks and usage writers
// broadcast a subscription.Change on the user's topic, live sessions for that
// user subscribe and refetch.
//
//	feed := broadcast.NewMemoryBroadcaster[subscription.Change](16)
//	defer feed.Close()
//
//	sub := feed.Subscribe(ctx, subscription.Topic(userID))
//	defer sub.Close()
//
//	for msg := range sub.Receive(ctx) {
//		// refetch msg.Data.UserID
//	}
//
// MemoryBroadcaster works within one process and drops slow consumers by
// closing their channel. RedisBroadcaster spans processes through Redis
// pub/sub with JSON payloads; a full buffer loses the message but keeps the
// subscription.
//
// A closed Receive channel means the subscription ended. Consumers that must
// not miss changes resubscribe and reload state.
package broadcast
