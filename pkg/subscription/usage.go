package subscription

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayLayout is the calendar-day key format.
const DayLayout = time.DateOnly

// Day is a calendar date key (YYYY-MM-DD) in the user's local time.
type Day string

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	return Day(t.Format(DayLayout))
}

// Today returns the current day of now in loc. A nil loc means time.Local.
func Today(now time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	return DayOf(now.In(loc))
}

// ParseDay validates a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(DayLayout, s); err != nil {
		return "", fmt.Errorf("subscription: invalid day %q: %w", s, err)
	}
	return Day(s), nil
}

// Time returns midnight of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, _ := time.ParseInLocation(DayLayout, string(d), loc)
	return t
}

func (d Day) String() string { return string(d) }

// Usage is one user's counters for one calendar day.
// Counters only grow during the day; a new day starts from zero.
type Usage struct {
	UserID    uuid.UUID
	Day       Day
	counts    [limitCount]int64
	UpdatedAt time.Time
}

// NewUsage returns an all-zero record.
func NewUsage(userID uuid.UUID, day Day) Usage {
	return Usage{UserID: userID, Day: day}
}

// Used returns how many l actions were consumed on the record's day.
func (u Usage) Used(l LimitName) int64 {
	if !l.Valid() {
		return 0
	}
	return u.counts[l]
}

// Set overwrites a counter. Negative values are clamped to zero.
// Intended for storage adapters hydrating a record.
func (u *Usage) Set(l LimitName, n int64) {
	if !l.Valid() {
		return
	}
	u.counts[l] = max(0, n)
}

// Add increments a counter by a positive amount; non-positive amounts are ignored.
func (u *Usage) Add(l LimitName, amount int64) {
	if !l.Valid() || amount <= 0 {
		return
	}
	u.counts[l] += amount
}

// IsZero reports whether every counter is zero.
func (u Usage) IsZero() bool {
	return u.counts == [limitCount]int64{}
}

// Merge returns u with every counter raised to at least o's value.
// Records for different days are not merged; u is returned unchanged.
func (u Usage) Merge(o Usage) Usage {
	if u.Day != o.Day || u.UserID != o.UserID {
		return u
	}
	for l := range limitCount {
		u.counts[l] = max(u.counts[l], o.counts[l])
	}
	if o.UpdatedAt.After(u.UpdatedAt) {
		u.UpdatedAt = o.UpdatedAt
	}
	return u
}

// Columns returns the counters keyed by storage column.
func (u Usage) Columns() map[string]int64 {
	out := make(map[string]int64, limitCount)
	for l := range limitCount {
		out[usageColumns[l]] = u.counts[l]
	}
	return out
}

type usageJSON struct {
	UserID    uuid.UUID        `json:"user_id"`
	Day       Day              `json:"day"`
	Counts    map[string]int64 `json:"counts"`
	UpdatedAt time.Time        `json:"updated_at,omitzero"`
}

func (u Usage) MarshalJSON() ([]byte, error) {
	counts := make(map[string]int64, limitCount)
	for l := range limitCount {
		counts[limitNames[l]] = u.counts[l]
	}
	return json.Marshal(usageJSON{UserID: u.UserID, Day: u.Day, Counts: counts, UpdatedAt: u.UpdatedAt})
}

func (u *Usage) UnmarshalJSON(b []byte) error {
	var raw usageJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := NewUsage(raw.UserID, raw.Day)
	out.UpdatedAt = raw.UpdatedAt
	for name, n := range raw.Counts {
		l, err := ParseLimitName(name)
		if err != nil {
			return err
		}
		out.Set(l, n)
	}
	*u = out
	return nil
}
