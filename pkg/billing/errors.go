package billing

import (
	"errors"
	"fmt"

	"github.com/astra-social/entitlements/pkg/subscription"
)

var (
	ErrMissingConfig      = errors.New("billing provider is not configured")
	ErrInvalidRequest     = errors.New("invalid billing request")
	ErrInvalidSignature   = errors.New("webhook signature verification failed")
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrPriceNotConfigured = errors.New("no price configured for plan")
	ErrNotAnUpgrade       = errors.New("target plan is not above the current plan")
	ErrNoBillingAccount   = errors.New("user has no billing account")
	ErrUnresolvedUser     = errors.New("webhook does not identify a user")

	// ErrProviderFailed wraps provider API failures. It matches subscription.ErrNetwork.
	ErrProviderFailed = fmt.Errorf("billing provider request failed: %w", subscription.ErrNetwork)
)
