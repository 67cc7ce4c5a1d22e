package usage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/astra-social/entitlements/pkg/subscription"
)

var (
	ErrInvalidAmount = errors.New("usage increment must be positive")

	// ErrStoreUnavailable wraps backend failures. It matches subscription.ErrNetwork.
	ErrStoreUnavailable = fmt.Errorf("usage store unavailable: %w", subscription.ErrNetwork)
)

// Tracker persists per-user, per-day usage counters.
//
// Counters are soft limits: concurrent increments from several devices may
// race and the last write wins.
type Tracker interface {
	// Get returns the counters of userID for day. A missing record yields an
	// all-zero Usage and is not written through.
	Get(ctx context.Context, userID uuid.UUID, day subscription.Day) (subscription.Usage, error)

	// Increment adds amount to one counter, creating the day's record when
	// absent. Calling it twice adds twice.
	Increment(ctx context.Context, userID uuid.UUID, day subscription.Day, l subscription.LimitName, amount int64) error

	// ResetDay zeroes every counter of userID for day.
	ResetDay(ctx context.Context, userID uuid.UUID, day subscription.Day) error
}

// ValidateIncrement checks the arguments shared by every Increment implementation.
func ValidateIncrement(l subscription.LimitName, amount int64) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %s", subscription.ErrUnknownLimit, l)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	return nil
}
