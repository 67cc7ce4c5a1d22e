package session

import (
	"log/slog"
	"time"

	"github.com/astra-social/entitlements/pkg/broadcast"
	"github.com/astra-social/entitlements/pkg/logger"
	"github.com/astra-social/entitlements/pkg/subscription"
)

const (
	DefaultLoadTimeout      = 10 * time.Second
	DefaultRolloverInterval = time.Minute
	DefaultRetryInterval    = 30 * time.Second
	DefaultPersistTimeout   = 5 * time.Second
)

type options struct {
	logger           *slog.Logger
	now              func() time.Time
	location         *time.Location
	loadTimeout      time.Duration
	rolloverInterval time.Duration
	retryInterval    time.Duration
	persistTimeout   time.Duration
	feed             broadcast.Broadcaster[subscription.Change]
	metrics          *Metrics
}

func defaultOptions() options {
	return options{
		logger:           logger.Discard(),
		now:              time.Now,
		location:         time.Local,
		loadTimeout:      DefaultLoadTimeout,
		rolloverInterval: DefaultRolloverInterval,
		retryInterval:    DefaultRetryInterval,
		persistTimeout:   DefaultPersistTimeout,
	}
}

// Option configures a Session or a Registry.
type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now. Used by tests to cross day boundaries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the zone that decides the calendar day. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLoadTimeout bounds each fetch of subscription and usage.
func WithLoadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.loadTimeout = d
		}
	}
}

// WithRolloverInterval sets how often the day boundary and expiry are checked.
func WithRolloverInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.rolloverInterval = d
		}
	}
}

// WithRetryInterval sets how often a session in the error state refetches,
// and how long to wait before resubscribing to a closed change feed.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

// WithPersistTimeout bounds each background usage write.
func WithPersistTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.persistTimeout = d
		}
	}
}

// WithChangeFeed enables push refetches and publishes local usage writes.
func WithChangeFeed(feed broadcast.Broadcaster[subscription.Change]) Option {
	return func(o *options) {
		o.feed = feed
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
