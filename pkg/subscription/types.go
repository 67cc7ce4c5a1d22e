package subscription

import (
	"fmt"
	"strings"
)

// PlanID identifies a subscription tier. Values read from storage are
// normalized with NormalizePlanID.
type PlanID string

const (
	PlanFree         PlanID = "free"
	PlanPremium      PlanID = "premium"
	PlanPremiumElite PlanID = "premium_elite"
)

// PlanIDs returns every known plan id in ascending tier order.
func PlanIDs() []PlanID {
	return []PlanID{PlanFree, PlanPremium, PlanPremiumElite}
}

// Valid reports whether id is one of the known plan ids.
func (id PlanID) Valid() bool {
	switch id {
	case PlanFree, PlanPremium, PlanPremiumElite:
		return true
	}
	return false
}

// NormalizePlanID maps a stored tier string onto a known plan id.
// Empty, null-ish and unknown values become PlanFree.
func NormalizePlanID(raw string) PlanID {
	id := PlanID(strings.ToLower(strings.TrimSpace(raw)))
	if id.Valid() {
		return id
	}
	return PlanFree
}

// LimitName is a per-day limited action. The set is closed: every member has
// a name and a storage column, enforced at compile time below.
type LimitName uint8

const (
	LimitSignalsPerDay LimitName = iota
	LimitAstraMessagesPerDay
	LimitMatchMessagesPerDay
	LimitSuperNovasPerDay
	LimitSuperLikesPerDay

	limitCount
)

var limitNames = [...]string{
	LimitSignalsPerDay:       "signalsPerDay",
	LimitAstraMessagesPerDay: "astraMessagesPerDay",
	LimitMatchMessagesPerDay: "matchMessagesPerDay",
	LimitSuperNovasPerDay:    "superNovasPerDay",
	LimitSuperLikesPerDay:    "superLikesPerDay",
}

var usageColumns = [...]string{
	LimitSignalsPerDay:       "signals_sent",
	LimitAstraMessagesPerDay: "astra_messages_sent",
	LimitMatchMessagesPerDay: "match_messages_sent",
	LimitSuperNovasPerDay:    "super_novas_sent",
	LimitSuperLikesPerDay:    "super_likes_sent",
}

// A table shorter or longer than limitCount fails to compile here.
var (
	_ = [1]struct{}{}[len(limitNames)-int(limitCount)]
	_ = [1]struct{}{}[len(usageColumns)-int(limitCount)]
)

// Limits returns every limit name in declaration order.
func Limits() []LimitName {
	out := make([]LimitName, 0, limitCount)
	for l := range limitCount {
		out = append(out, l)
	}
	return out
}

// Valid reports whether l is a member of the closed set.
func (l LimitName) Valid() bool { return l < limitCount }

func (l LimitName) String() string {
	if !l.Valid() {
		return fmt.Sprintf("LimitName(%d)", uint8(l))
	}
	return limitNames[l]
}

// Column returns the usage storage column counting this limit.
func (l LimitName) Column() string {
	if !l.Valid() {
		panic(fmt.Sprintf("subscription: no usage column for %s", l))
	}
	return usageColumns[l]
}

func (l LimitName) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLimit, uint8(l))
	}
	return []byte(limitNames[l]), nil
}

func (l *LimitName) UnmarshalText(b []byte) error {
	parsed, err := ParseLimitName(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLimitName resolves a limit by its name or its storage column.
func ParseLimitName(s string) (LimitName, error) {
	for l := range limitCount {
		if limitNames[l] == s || usageColumns[l] == s {
			return l, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLimit, s)
}

// LimitForColumn resolves a limit by its usage storage column.
func LimitForColumn(column string) (LimitName, bool) {
	for l := range limitCount {
		if usageColumns[l] == column {
			return l, true
		}
	}
	return 0, false
}

// Feature is a boolean plan capability. The set is closed.
type Feature uint8

const (
	FeatureSeeWhoLikedYou Feature = iota
	FeatureAdvancedFilters
	FeatureReadReceipts
	FeatureRewind
	FeatureProfileBoost
	FeatureLiveStreamHosting
	FeatureCompatibilityInsights
	FeatureAdFree
	FeatureIncognitoMode
	FeaturePriorityMatching
	FeatureEliteBadge

	featureCount
)

var featureNames = [...]string{
	FeatureSeeWhoLikedYou:        "seeWhoLikedYou",
	FeatureAdvancedFilters:       "advancedFilters",
	FeatureReadReceipts:          "readReceipts",
	FeatureRewind:                "rewind",
	FeatureProfileBoost:          "profileBoost",
	FeatureLiveStreamHosting:     "liveStreamHosting",
	FeatureCompatibilityInsights: "compatibilityInsights",
	FeatureAdFree:                "adFree",
	FeatureIncognitoMode:         "incognitoMode",
	FeaturePriorityMatching:      "priorityMatching",
	FeatureEliteBadge:            "eliteBadge",
}

var _ = [1]struct{}{}[len(featureNames)-int(featureCount)]

// FeatureSet holds one bit per Feature in a uint32.
var _ = [32 - int(featureCount)]struct{}{}

// AllFeatures returns every feature in declaration order.
func AllFeatures() []Feature {
	out := make([]Feature, 0, featureCount)
	for f := range featureCount {
		out = append(out, f)
	}
	return out
}

func (f Feature) Valid() bool { return f < featureCount }

func (f Feature) String() string {
	if !f.Valid() {
		return fmt.Sprintf("Feature(%d)", uint8(f))
	}
	return featureNames[f]
}

func (f Feature) MarshalText() ([]byte, error) {
	if !f.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFeature, uint8(f))
	}
	return []byte(featureNames[f]), nil
}

func (f *Feature) UnmarshalText(b []byte) error {
	parsed, err := ParseFeature(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFeature resolves a feature by name.
func ParseFeature(s string) (Feature, error) {
	for f := range featureCount {
		if featureNames[f] == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeature, s)
}

// Money represents a monetary amount in the smallest currency unit.
// For example, $14.99 USD is Amount: 1499, Currency: "USD".
type Money struct {
	Amount   int64  `json:"amount" yaml:"amount"`
	Currency string `json:"currency" yaml:"currency"`
}

// Sub returns m - o. An empty currency on either side adopts the other one.
func (m Money) Sub(o Money) Money {
	currency := m.Currency
	if currency == "" {
		currency = o.Currency
	}
	return Money{Amount: m.Amount - o.Amount, Currency: currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, amount/100, amount%100, m.Currency)
}

// BillingInterval represents the billing frequency for a plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // free plan
	BillingIntervalMonthly BillingInterval = "monthly"
)

// Status represents the current state of a user's subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusTrialing  Status = "trialing"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// NormalizeStatus maps provider and storage spellings onto Status.
// Unknown values are treated as active so that only ExpiresAt decides access.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing", "trial":
		return StatusTrialing
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCancelled
	case "expired":
		return StatusExpired
	default:
		return StatusActive
	}
}
