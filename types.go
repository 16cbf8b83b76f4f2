package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-logger/glog"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// AuthEvent tags a Session Store change notification.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// LoginMethod identifies the provider that produced a session.
type LoginMethod = string

const (
	LoginMethodEmail  LoginMethod = "email"
	LoginMethodGoogle LoginMethod = "google"
)

// SessionUser is the principal carried by a Session.
type SessionUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Session is the Session Store view of an active sign-in.
type Session struct {
	AccessToken string      `json:"access_token"`
	User        SessionUser `json:"user"`
	Provider    LoginMethod `json:"provider,omitempty"`
	ExpiresAt   time.Time   `json:"expires_at"`
}

// HasEmail reports whether the session carries a usable lookup key.
func (s *Session) HasEmail() bool {
	return s != nil && s.User.Email != ""
}

// AuthChangeHandler receives Session Store change notifications. session is
// nil for sign-out and for events that carry no session.
type AuthChangeHandler func(ctx context.Context, event AuthEvent, session *Session)

// SessionStore is the external identity backend.
type SessionStore interface {
	// CurrentSession returns nil, nil when there is no active session.
	CurrentSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignInWithIDToken(ctx context.Context, provider, token string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange subscribes handler and returns its unsubscribe func.
	OnAuthStateChange(handler AuthChangeHandler) (unsubscribe func())
}

// ProfileFinder is the profile table lookup. Implementations return an
// error for which IsProfileNotFound is true when no row matches.
type ProfileFinder interface {
	FindProfileByEmail(ctx context.Context, email string) (*Profile, error)
}

// ProfileResolver resolves the canonical roles and approval flag for an email.
// A nil profile with a nil error means the account has no profile.
type ProfileResolver interface {
	Resolve(ctx context.Context, email string) (*Profile, error)
}

// Navigator receives redirect signals from the Machine.
type Navigator interface {
	Navigate(route string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(route string)

// Navigate implements Navigator.
func (f NavigatorFunc) Navigate(route string) {
	if f != nil {
		f(route)
	}
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}

// Timer is the subset of *time.Timer the Machine relies on.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// Clock creates timers and reads the current time.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (r *realTimer) C() <-chan time.Time { return r.t.C }

func (r *realTimer) Stop() bool { return r.t.Stop() }
