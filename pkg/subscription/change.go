package subscription

import (
	"time"

	"github.com/google/uuid"
)

// ChangeKind names the record a Change refers to.
type ChangeKind string

const (
	ChangeSubscription ChangeKind = "subscription"
	ChangeUsage        ChangeKind = "usage"
)

// Change notifies listeners that a user's subscription or usage row changed
// in the backing store. Origin identifies the writer so it can skip its own
// echoes; billing webhooks leave it empty.
type Change struct {
	UserID uuid.UUID  `json:"user_id"`
	Kind   ChangeKind `json:"kind"`
	Origin string     `json:"origin,omitempty"`
	At     time.Time  `json:"at"`
}

// Topic returns the broadcast topic carrying changes for userID.
func Topic(userID uuid.UUID) string {
	return "entitlements:" + userID.String()
}
