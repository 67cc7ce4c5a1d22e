package subscription

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// unlimitedText is the serialized form of Unlimited in JSON and YAML.
const unlimitedText = "unlimited"

// unlimitedColumn is the SQL representation of Unlimited.
const unlimitedColumn int64 = -1

// Limit is a per-day cap: either a non-negative finite count or Unlimited.
// The zero value is Finite(0).
type Limit struct {
	n         int64
	unlimited bool
}

// Unlimited is the limit that never runs out.
var Unlimited = Limit{unlimited: true}

// Finite returns a finite limit. Panics on negative values.
func Finite(n int64) Limit {
	if n < 0 {
		panic(fmt.Sprintf("subscription: negative limit %d", n))
	}
	return Limit{n: n}
}

// LimitFromColumn converts the SQL representation (-1 = unlimited).
func LimitFromColumn(v int64) Limit {
	if v < 0 {
		return Unlimited
	}
	return Limit{n: v}
}

// Column returns the SQL representation (-1 = unlimited).
func (l Limit) Column() int64 {
	if l.unlimited {
		return unlimitedColumn
	}
	return l.n
}

func (l Limit) IsUnlimited() bool { return l.unlimited }

// Value returns the finite count. ok is false for Unlimited.
func (l Limit) Value() (n int64, ok bool) {
	if l.unlimited {
		return 0, false
	}
	return l.n, true
}

// Allows reports whether one more action fits after used actions.
func (l Limit) Allows(used int64) bool {
	return l.unlimited || used < l.n
}

// Remaining returns what is left after used actions, never below zero.
func (l Limit) Remaining(used int64) Limit {
	if l.unlimited {
		return Unlimited
	}
	return Limit{n: max(0, l.n-max(0, used))}
}

// Compare orders limits with Unlimited as the maximum.
// It returns -1, 0 or +1.
func (l Limit) Compare(o Limit) int {
	switch {
	case l.unlimited && o.unlimited:
		return 0
	case l.unlimited:
		return 1
	case o.unlimited:
		return -1
	case l.n < o.n:
		return -1
	case l.n > o.n:
		return 1
	}
	return 0
}

func (l Limit) String() string {
	if l.unlimited {
		return unlimitedText
	}
	return strconv.FormatInt(l.n, 10)
}

func (l Limit) MarshalJSON() ([]byte, error) {
	if l.unlimited {
		return json.Marshal(unlimitedText)
	}
	return []byte(strconv.FormatInt(l.n, 10)), nil
}

func (l *Limit) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return l.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("subscription: invalid limit %s", b)
	}
	return l.fromInt(n)
}

func (l Limit) MarshalYAML() (any, error) {
	if l.unlimited {
		return unlimitedText, nil
	}
	return l.n, nil
}

func (l *Limit) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("subscription: limit must be a scalar, line %d", node.Line)
	}
	return l.parse(node.Value)
}

func (l *Limit) parse(s string) error {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, unlimitedText) {
		*l = Unlimited
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("subscription: invalid limit %q", s)
	}
	return l.fromInt(n)
}

func (l *Limit) fromInt(n int64) error {
	if n < 0 {
		return fmt.Errorf("subscription: negative limit %d", n)
	}
	*l = Limit{n: n}
	return nil
}

// FeatureSet is a set of features.
type FeatureSet uint32

// NewFeatureSet returns a set holding the given features.
func NewFeatureSet(features ...Feature) FeatureSet {
	var s FeatureSet
	for _, f := range features {
		s = s.With(f)
	}
	return s
}

func (s FeatureSet) Has(f Feature) bool {
	return f.Valid() && s&(1<<f) != 0
}

func (s FeatureSet) With(f Feature) FeatureSet {
	if !f.Valid() {
		return s
	}
	return s | 1<<f
}

func (s FeatureSet) Without(f Feature) FeatureSet {
	return s &^ (1 << f)
}

// Minus returns the features in s that are not in o.
func (s FeatureSet) Minus(o FeatureSet) FeatureSet { return s &^ o }

// Contains reports whether every feature of o is in s.
func (s FeatureSet) Contains(o FeatureSet) bool { return o&^s == 0 }

// List returns the members in declaration order.
func (s FeatureSet) List() []Feature {
	out := make([]Feature, 0, featureCount)
	for f := range featureCount {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Map returns every feature with its availability, keyed by name.
func (s FeatureSet) Map() map[string]bool {
	out := make(map[string]bool, featureCount)
	for f := range featureCount {
		out[featureNames[f]] = s.Has(f)
	}
	return out
}

func (s FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *FeatureSet) UnmarshalJSON(b []byte) error {
	var m map[string]bool
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	set, err := featureSetFromMap(m)
	if err != nil {
		return err
	}
	*s = set
	return nil
}

func featureSetFromMap(m map[string]bool) (FeatureSet, error) {
	var set FeatureSet
	for name, enabled := range m {
		f, err := ParseFeature(name)
		if err != nil {
			return 0, err
		}
		if enabled {
			set = set.With(f)
		}
	}
	return set, nil
}
