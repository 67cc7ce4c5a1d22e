// Package httpapi exposes entitlement sessions as a JSON API for UI gates,
// badges and upsell prompts.
//
// Every /me route resolves the caller through an Authenticator and serves
// the caller's cached session from a session.Registry. Gated actions fail
// with the entitlement error taxonomy mapped onto HTTP statuses:
//
//	AUTH_REQUIRED   401
//	FEATURE_LOCKED  403  body carries the upgrade that unlocks the feature
//	LIMIT_REACHED   402  body carries the limit check and the upgrade
//	NETWORK_ERROR   503
//	INVALID_REQUEST 400
//
// Billing routes are optional. Without a billing service, checkout and
// portal answer 501 and the webhook route is not mounted.
package httpapi
