package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/pkg/usage"
	"github.com/astra-social/entitlements/svc/session"
)

// Error kinds outside the entitlement taxonomy.
const (
	KindInvalidRequest   subscription.ErrorKind = "INVALID_REQUEST"
	KindNoBillingAccount subscription.ErrorKind = "NO_BILLING_ACCOUNT"
	KindBillingDisabled  subscription.ErrorKind = "BILLING_DISABLED"
	KindServiceShutdown  subscription.ErrorKind = "SHUTTING_DOWN"
	KindInternal         subscription.ErrorKind = "INTERNAL"
)

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrBillingDisabled = errors.New("billing is not enabled")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Kind    subscription.ErrorKind         `json:"kind"`
	Message string                         `json:"message"`
	Check   *subscription.LimitCheckResult `json:"check,omitempty"`
	Upgrade *subscription.UpgradeInfo      `json:"upgrade,omitempty"`
}

// classify maps err onto a status and an error body.
func classify(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Message: err.Error()}

	var ae *subscription.ActionError
	if errors.As(err, &ae) {
		resp.Kind, resp.Check, resp.Upgrade = ae.Kind, ae.Check, ae.Upgrade
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, subscription.ErrUnknownLimit),
		errors.Is(err, subscription.ErrUnknownFeature),
		errors.Is(err, usage.ErrInvalidAmount),
		errors.Is(err, billing.ErrInvalidRequest),
		errors.Is(err, billing.ErrNotAnUpgrade),
		errors.Is(err, billing.ErrPriceNotConfigured),
		errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, billing.ErrInvalidPayload):
		resp.Kind = KindInvalidRequest
		return http.StatusBadRequest, resp
	case errors.Is(err, billing.ErrNoBillingAccount):
		resp.Kind = KindNoBillingAccount
		return http.StatusConflict, resp
	case errors.Is(err, ErrBillingDisabled):
		resp.Kind = KindBillingDisabled
		return http.StatusNotImplemented, resp
	case errors.Is(err, session.ErrClosed):
		resp.Kind = KindServiceShutdown
		return http.StatusServiceUnavailable, resp
	}

	switch kind := subscription.KindOf(err); kind {
	case subscription.KindAuthRequired:
		resp.Kind = kind
		return http.StatusUnauthorized, resp
	case subscription.KindFeatureLocked:
		resp.Kind = kind
		return http.StatusForbidden, resp
	case subscription.KindLimitReached:
		resp.Kind = kind
		return http.StatusPaymentRequired, resp
	case subscription.KindNetworkError:
		resp.Kind = kind
		return http.StatusServiceUnavailable, resp
	}

	resp.Kind = KindInternal
	resp.Message = http.StatusText(http.StatusInternalServerError)
	return http.StatusInternalServerError, resp
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		a.log.ErrorContext(r.Context(), "request failed", logger.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}
