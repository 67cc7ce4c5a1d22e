package supastore

import (
	"errors"
	"fmt"

	"github.com/astra-social/entitlements/pkg/subscription"
)

var (
	// ErrRequestFailed wraps every PostgREST failure. It matches subscription.ErrNetwork.
	ErrRequestFailed = fmt.Errorf("supabase request failed: %w", subscription.ErrNetwork)
	ErrDecodeFailed  = errors.New("supabase: unexpected response body")
)
