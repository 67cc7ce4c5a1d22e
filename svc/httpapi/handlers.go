package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/astra-social/entitlements/pkg/billing"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
	"github.com/astra-social/entitlements/svc/session"
)

// Signature headers of the supported billing providers.
var signatureHeaders = []string{"Paddle-Signature", "Stripe-Signature"}

type plansResponse struct {
	Plans []subscription.Plan `json:"plans"`
}

type featureResponse struct {
	Feature   subscription.Feature     `json:"feature"`
	Available bool                     `json:"available"`
	Upgrade   subscription.UpgradeInfo `json:"upgrade"`
}

type limitResponse struct {
	Check   subscription.LimitCheckResult `json:"check"`
	Upgrade subscription.UpgradeInfo      `json:"upgrade"`
}

type usageRequest struct {
	Amount int64 `json:"amount"`
}

type checkoutRequest struct {
	Target     subscription.PlanID `json:"target"`
	SuccessURL string              `json:"success_url"`
	CancelURL  string              `json:"cancel_url,omitempty"`
	Email      string              `json:"email,omitempty"`
}

type portalRequest struct {
	ReturnURL string `json:"return_url,omitempty"`
}

// session returns the caller's session, held until release is called. A
// session that failed to load is still served; it answers for the free plan
// until a refetch succeeds.
func (a *API) session(w http.ResponseWriter, r *http.Request) (*session.Session, func(), bool) {
	userID, _ := logger.UserIDFromContext(r.Context())
	sess, release, err := a.registry.Acquire(r.Context(), userID)
	if sess == nil || errors.Is(err, session.ErrClosed) {
		if release != nil {
			release()
		}
		a.writeError(w, r, err)
		return nil, nil, false
	}
	if err != nil {
		a.log.WarnContext(r.Context(), "serving degraded entitlements", logger.Error(err))
	}
	return sess, release, true
}

func (a *API) listPlans(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, plansResponse{Plans: a.catalog.AllPlans()})
}

func (a *API) comparePlans(w http.ResponseWriter, r *http.Request) {
	from := subscription.PlanID(r.URL.Query().Get("from"))
	to := subscription.PlanID(r.URL.Query().Get("to"))
	if !from.Valid() || !to.Valid() {
		a.writeError(w, r, fmt.Errorf("%w: from and to must be plan ids", ErrInvalidRequest))
		return
	}
	writeJSON(w, http.StatusOK, subscription.ComparePlans(a.catalog.GetPlan(from), a.catalog.GetPlan(to)))
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (a *API) feature(w http.ResponseWriter, r *http.Request) {
	f, err := subscription.ParseFeature(chi.URLParam(r, "feature"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	writeJSON(w, http.StatusOK, featureResponse{
		Feature:   f,
		Available: sess.HasFeature(f),
		Upgrade:   sess.RequiresUpgradeFor(f),
	})
}

func (a *API) limit(w http.ResponseWriter, r *http.Request) {
	l, err := subscription.ParseLimitName(chi.URLParam(r, "limit"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	writeJSON(w, http.StatusOK, limitResponse{
		Check:   sess.CanPerformAction(l),
		Upgrade: sess.UpgradeForLimit(l),
	})
}

// attempt checks the required features and the limit, then counts the
// action. Required features come as ?requires=a,b.
func (a *API) attempt(w http.ResponseWriter, r *http.Request) {
	l, err := subscription.ParseLimitName(chi.URLParam(r, "limit"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var requires []subscription.Feature
	if raw := r.URL.Query().Get("requires"); raw != "" {
		for name := range strings.SplitSeq(raw, ",") {
			f, err := subscription.ParseFeature(strings.TrimSpace(name))
			if err != nil {
				a.writeError(w, r, err)
				return
			}
			requires = append(requires, f)
		}
	}

	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	check, err := sess.Attempt(r.Context(), l, requires...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// incrementUsage counts amount actions without enforcing the limit.
func (a *API) incrementUsage(w http.ResponseWriter, r *http.Request) {
	l, err := subscription.ParseLimitName(chi.URLParam(r, "limit"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	req := usageRequest{Amount: 1}
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	if err := sess.IncrementUsage(r.Context(), l, req.Amount); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.CanPerformAction(l))
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	if err := sess.Refresh(r.Context()); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (a *API) checkout(w http.ResponseWriter, r *http.Request) {
	if a.billing == nil {
		a.writeError(w, r, ErrBillingDisabled)
		return
	}
	var req checkoutRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.SuccessURL == "" {
		a.writeError(w, r, fmt.Errorf("%w: success_url is required", ErrInvalidRequest))
		return
	}

	sess, release, ok := a.session(w, r)
	if !ok {
		return
	}
	defer release()
	intent, err := sess.UpgradeIntent(req.Target, req.SuccessURL, req.CancelURL)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	intent.Email = req.Email

	link, err := a.billing.Checkout(r.Context(), sess.UserID(), intent)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (a *API) portal(w http.ResponseWriter, r *http.Request) {
	if a.billing == nil {
		a.writeError(w, r, ErrBillingDisabled)
		return
	}
	var req portalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	userID, _ := logger.UserIDFromContext(r.Context())
	link, err := a.billing.PortalLink(r.Context(), userID, req.ReturnURL)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := logger.UserIDFromContext(r.Context())
	if a.registry.Remove(userID) {
		a.log.InfoContext(r.Context(), "session closed by user")
	}
	w.WriteHeader(http.StatusNoContent)
}

// webhook applies a provider event. Events that cannot be attributed to a
// user are acknowledged so the provider stops retrying them.
func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		a.writeError(w, r, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	var signature string
	for _, h := range signatureHeaders {
		if signature = r.Header.Get(h); signature != "" {
			break
		}
	}
	if signature == "" {
		a.writeError(w, r, fmt.Errorf("%w: missing signature", billing.ErrInvalidSignature))
		return
	}

	err = a.billing.HandleWebhook(r.Context(), payload, signature)
	switch {
	case errors.Is(err, billing.ErrUnresolvedUser):
		a.log.WarnContext(r.Context(), "webhook acknowledged without applying", slog.Int("size", len(payload)))
		w.WriteHeader(http.StatusAccepted)
	case err != nil:
		a.writeError(w, r, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
