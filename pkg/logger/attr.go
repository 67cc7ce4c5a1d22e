package logger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under "error". A nil error yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// UserID records the user under "user_id". The nil uuid yields an empty Attr.
func UserID(id uuid.UUID) slog.Attr {
	if id == uuid.Nil {
		return slog.Attr{}
	}
	return slog.String("user_id", id.String())
}

func PlanID[T ~string](id T) slog.Attr {
	return slog.String("plan_id", string(id))
}

func Limit(l fmt.Stringer) slog.Attr {
	return slog.String("limit", l.String())
}

func Feature(f fmt.Stringer) slog.Attr {
	return slog.String("feature", f.String())
}

// Day records a calendar day key under "day".
func Day[T ~string](d T) slog.Attr {
	return slog.String("day", string(d))
}

// State records a lifecycle state under "state".
func State[T ~string](s T) slog.Attr {
	return slog.String("state", string(s))
}

// Component records the component name under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Origin records the writer identity of a change under "origin".
func Origin(id string) slog.Attr {
	return slog.String("origin", id)
}

// EventType records a provider event type under "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// Duration records d under "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}
