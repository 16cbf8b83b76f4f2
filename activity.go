package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventSessionResolved  ActivityEventType = "auth.session.resolved"
	ActivityEventSessionCleared   ActivityEventType = "auth.session.cleared"
	ActivityEventSessionFailure   ActivityEventType = "auth.session.failure"
	ActivityEventBootstrapTimeout ActivityEventType = "auth.session.timeout"
	ActivityEventLoginSuccess     ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure     ActivityEventType = "auth.login.failure"
	ActivityEventSocialLogin      ActivityEventType = "auth.social.login"
	ActivityEventLogout           ActivityEventType = "auth.logout"
)

// ActivityEvent captures audit-friendly information about a session change.
type ActivityEvent struct {
	EventType   ActivityEventType
	UserID      string
	Email       string
	LoginMethod LoginMethod
	ErrorKind   ErrorKind
	Metadata    map[string]any
	OccurredAt  time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
