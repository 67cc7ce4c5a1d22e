package subscription

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")
	ErrUnknownLimit             = errors.New("unknown limit name")
	ErrUnknownFeature           = errors.New("unknown feature")

	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrMissingUserID        = errors.New("subscription without user id")

	// Gated action outcomes. ActionError matches them with errors.Is.
	ErrAuthRequired  = errors.New("authentication required")
	ErrFeatureLocked = errors.New("feature not available on current plan")
	ErrLimitReached  = errors.New("daily limit reached")
	ErrNetwork       = errors.New("backing store unavailable")
)

// ErrorKind classifies why an entitlement-gated action did not happen.
type ErrorKind string

const (
	KindAuthRequired  ErrorKind = "AUTH_REQUIRED"
	KindFeatureLocked ErrorKind = "FEATURE_LOCKED"
	KindLimitReached  ErrorKind = "LIMIT_REACHED"
	KindNetworkError  ErrorKind = "NETWORK_ERROR"
	KindUnknown       ErrorKind = "UNKNOWN"
)

// ActionError is returned by gated actions. Locked and limit outcomes carry
// the upgrade that would unlock the action.
type ActionError struct {
	Kind    ErrorKind         `json:"kind"`
	Check   *LimitCheckResult `json:"check,omitempty"`
	Upgrade *UpgradeInfo      `json:"upgrade,omitempty"`
	Err     error             `json:"-"`
}

func (e *ActionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Upgrade != nil && e.Upgrade.MinimumPlanRequired != "":
		return fmt.Sprintf("%s: upgrade to %s", e.Kind, e.Upgrade.MinimumPlanRequired)
	default:
		return string(e.Kind)
	}
}

func (e *ActionError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *ActionError) Is(target error) bool {
	return target == kindSentinel(e.Kind)
}

// NewAuthRequired returns an AUTH_REQUIRED action error.
func NewAuthRequired() *ActionError {
	return &ActionError{Kind: KindAuthRequired}
}

// NewFeatureLocked returns a FEATURE_LOCKED error carrying the upgrade path.
func NewFeatureLocked(upgrade UpgradeInfo) *ActionError {
	return &ActionError{Kind: KindFeatureLocked, Upgrade: &upgrade}
}

// NewLimitReached returns a LIMIT_REACHED error carrying the check and upgrade path.
func NewLimitReached(check LimitCheckResult, upgrade UpgradeInfo) *ActionError {
	return &ActionError{Kind: KindLimitReached, Check: &check, Upgrade: &upgrade}
}

// NewNetworkError wraps a backing store failure.
func NewNetworkError(err error) *ActionError {
	return &ActionError{Kind: KindNetworkError, Err: err}
}

// KindOf classifies err. Context and store errors count as network errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrFeatureLocked):
		return KindFeatureLocked
	case errors.Is(err, ErrLimitReached):
		return KindLimitReached
	case errors.Is(err, ErrNetwork),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindNetworkError
	}
	return KindUnknown
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindAuthRequired:
		return ErrAuthRequired
	case KindFeatureLocked:
		return ErrFeatureLocked
	case KindLimitReached:
		return ErrLimitReached
	case KindNetworkError:
		return ErrNetwork
	}
	return nil
}
