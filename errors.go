package auth

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// ErrorKind tags the failure classes the session flow distinguishes.
type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindNotFound       ErrorKind = "not_found"
	KindTimeout        ErrorKind = "timeout"
	KindCorrupted      ErrorKind = "corrupted"
	KindExchangeFailed ErrorKind = "exchange_failed"
)

const (
	TextCodeSessionTransport  = "SESSION_TRANSPORT_ERROR"
	TextCodeProfileNotFound   = "PROFILE_NOT_FOUND"
	TextCodeBootstrapTimeout  = "SESSION_BOOTSTRAP_TIMEOUT"
	TextCodeCorruptedState    = "SESSION_STATE_CORRUPTED"
	TextCodeExchangeFailed    = "IDENTITY_EXCHANGE_FAILED"
	TextCodeInvalidCredential = "INVALID_CREDENTIALS"
)

// ErrProfileNotFound is returned by profile stores when no row matches.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSnapshotMissing means no role snapshot is cached.
var ErrSnapshotMissing = errors.New("role snapshot missing")

// ErrInvalidCredentials is returned for unknown accounts and wrong passwords alike.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredential).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty")

// Error is the tagged error produced by the session flow.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds a tagged error for op.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "session error"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Rich converts the error into a categorized go-errors value for logging and
// HTTP rendering.
func (e *Error) Rich() *goerrors.Error {
	category, code, textCode := goerrors.CategoryInternal, goerrors.CodeInternal, TextCodeSessionTransport
	switch e.Kind {
	case KindTransport:
		category, code, textCode = goerrors.CategoryOperation, goerrors.CodeInternal, TextCodeSessionTransport
	case KindNotFound:
		category, code, textCode = goerrors.CategoryNotFound, goerrors.CodeNotFound, TextCodeProfileNotFound
	case KindTimeout:
		category, code, textCode = goerrors.CategoryOperation, goerrors.CodeInternal, TextCodeBootstrapTimeout
	case KindCorrupted:
		category, code, textCode = goerrors.CategoryValidation, goerrors.CodeBadRequest, TextCodeCorruptedState
	case KindExchangeFailed:
		category, code, textCode = goerrors.CategoryAuth, goerrors.CodeUnauthorized, TextCodeExchangeFailed
	}

	var rich *goerrors.Error
	if e.Err != nil {
		rich = goerrors.Wrap(e.Err, category, e.Op)
	} else {
		rich = goerrors.New(e.Op, category)
	}

	return rich.WithTextCode(textCode).WithCode(code).WithMetadata(map[string]any{
		"kind": string(e.Kind),
	})
}

// KindOf returns the tag of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var serr *Error
	if errors.As(err, &serr) && serr != nil {
		return serr.Kind
	}
	return ""
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsProfileNotFound reports whether err means the profile table had no row.
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProfileNotFound) || IsKind(err, KindNotFound) {
		return true
	}
	return goerrors.IsNotFound(err)
}

// UserMessage is the human readable text shown next to the retry affordance.
func UserMessage(err error) string {
	switch KindOf(err) {
	case KindTransport:
		return "Unable to reach the authentication service. Please try again."
	case KindTimeout:
		return "Signing in is taking longer than expected. Retry, or clear cached data and reload."
	case KindCorrupted:
		return "Your session is in an inconsistent state. Please sign in again."
	case KindExchangeFailed:
		return "Sign-in with the external provider failed."
	case KindNotFound:
		return ""
	}
	if err == nil {
		return ""
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}
	return err.Error()
}
