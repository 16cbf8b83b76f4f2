package auth

import (
	"context"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// UserProfileResolver resolves roles and approval from the profile table.
type UserProfileResolver struct {
	store    ProfileFinder
	logger   Logger
	provider LoggerProvider
}

var _ ProfileResolver = (*UserProfileResolver)(nil)

// NewProfileResolver returns a resolver backed by store.
func NewProfileResolver(store ProfileFinder) *UserProfileResolver {
	provider, logger := ResolveLogger("auth.profile_resolver", nil, nil)
	return &UserProfileResolver{
		store:    store,
		logger:   logger,
		provider: provider,
	}
}

func (r *UserProfileResolver) WithLogger(l Logger) *UserProfileResolver {
	r.provider, r.logger = ResolveLogger("auth.profile_resolver", r.provider, l)
	return r
}

// WithLoggerProvider overrides the logger provider used by the resolver.
func (r *UserProfileResolver) WithLoggerProvider(provider LoggerProvider) *UserProfileResolver {
	r.provider, r.logger = ResolveLogger("auth.profile_resolver", provider, r.logger)
	return r
}

// Resolve returns the profile for email, nil when no row matches, a
// KindCorrupted error when email cannot be a lookup key, or a KindTransport
// error when the table could not be queried.
func (r *UserProfileResolver) Resolve(ctx context.Context, email string) (*Profile, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		r.logger.Warn("session email is not a valid lookup key", "email", email)
		return nil, NewError(KindCorrupted, "resolve profile", err)
	}

	profile, err := r.store.FindProfileByEmail(ctx, email)
	if err != nil {
		if IsProfileNotFound(err) {
			r.logger.Debug("profile not found", "email", email)
			return nil, nil
		}
		r.logger.Error("profile lookup failed", "email", email, "error", err)
		return nil, NewError(KindTransport, "resolve profile", err)
	}

	if profile == nil {
		return nil, nil
	}

	return profile, nil
}

// NormalizeEmail trims and lower-cases an email used as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is present and well formed.
func ValidateEmail(email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid email")
	}
	return nil
}
