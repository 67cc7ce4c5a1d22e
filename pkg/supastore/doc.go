// Package supastore persists subscriptions and daily usage in a Supabase
// project through its PostgREST API, using the same profiles and
// usage_tracking tables as package pgstore.
//
//	client, err := supastore.Connect(cfg)
//	if err != nil {
//		return err
//	}
//	subs := supastore.NewSubscriptionStore(client, cfg)
//	tracker := supastore.NewUsageStore(client, cfg)
//
// Request failures wrap ErrRequestFailed, which matches subscription.ErrNetwork.
package supastore
