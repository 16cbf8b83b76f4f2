package sessionstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/pestline/go-auth"
)

// ErrSessionExpired is returned by TokenIssuer.Parse for expired sessions.
var ErrSessionExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode("SESSION_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionMalformed is returned by TokenIssuer.Parse for unreadable tokens.
var ErrSessionMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode("SESSION_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

type sessionClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// TokenIssuer signs and validates HS256 session tokens.
type TokenIssuer struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// NewTokenIssuer returns an issuer. ttl defaults to one hour.
func NewTokenIssuer(signingKey []byte, issuer string, ttl time.Duration, now func() time.Time) (*TokenIssuer, error) {
	if len(signingKey) == 0 {
		return nil, goerrors.New("session signing key is required", goerrors.CategoryBadInput)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	return &TokenIssuer{
		signingKey: signingKey,
		issuer:     issuer,
		ttl:        ttl,
		now:        now,
	}, nil
}

// Issue signs a session token for user.
func (t *TokenIssuer) Issue(user auth.SessionUser, provider auth.LoginMethod) (*auth.Session, error) {
	now := t.now()
	expiresAt := now.Add(t.ttl)
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:    user.Email,
		Name:     user.Name,
		Provider: provider,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return &auth.Session{
		AccessToken: signed,
		User:        user,
		Provider:    provider,
		ExpiresAt:   expiresAt.Truncate(time.Second),
	}, nil
}

// Parse validates raw and returns the session it encodes.
func (t *TokenIssuer) Parse(raw string) (*auth.Session, error) {
	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, goerrors.Wrap(err, ErrSessionMalformed.Category, ErrSessionMalformed.Message).
			WithTextCode(ErrSessionMalformed.TextCode)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrSessionMalformed
	}

	session := &auth.Session{
		AccessToken: raw,
		User: auth.SessionUser{
			ID:    claims.Subject,
			Email: claims.Email,
			Name:  claims.Name,
		},
		Provider: claims.Provider,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
