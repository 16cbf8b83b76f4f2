package sessionstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/pestline/go-auth"
)

const (
	// GoogleJWKSURL publishes the keys Google signs ID tokens with.
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

var googleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// ErrIDTokenRejected is returned when an ID token fails verification.
var ErrIDTokenRejected = goerrors.New("identity token rejected", goerrors.CategoryAuth).
	WithTextCode("ID_TOKEN_REJECTED").
	WithCode(goerrors.CodeUnauthorized)

// Identity is the verified subject of a third-party ID token.
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// IDTokenVerifier validates provider ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// IDTokenClaims are the OpenID Connect claims read from an ID token.
type IDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// GoogleConfig configures a GoogleVerifier.
type GoogleConfig struct {
	// ClientID is the OAuth client the token must be issued to.
	ClientID string
	JWKSURL  string
	Issuers  []string
	// Algorithms defaults to RS256.
	Algorithms []string
	// KeyFunc bypasses the remote JWKS, mostly for tests.
	KeyFunc jwt.Keyfunc
	Now     func() time.Time
	Logger  auth.Logger
}

// GoogleVerifier checks Google ID tokens against Google's published keys.
type GoogleVerifier struct {
	clientID   string
	issuers    []string
	algorithms []string
	keyFunc    jwt.Keyfunc
	jwks       *keyfunc.JWKS
	now        func() time.Time
	logger     auth.Logger
}

// NewGoogleVerifier builds a verifier. Without a KeyFunc it fetches the JWKS
// and keeps it refreshed in the background until Close.
func NewGoogleVerifier(cfg GoogleConfig) (*GoogleVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, goerrors.New("google client id is required", goerrors.CategoryBadInput)
	}

	_, logger := auth.ResolveLogger("auth.idtoken", nil, cfg.Logger)

	v := &GoogleVerifier{
		clientID:   cfg.ClientID,
		issuers:    cfg.Issuers,
		algorithms: cfg.Algorithms,
		keyFunc:    cfg.KeyFunc,
		now:        cfg.Now,
		logger:     logger,
	}
	if len(v.issuers) == 0 {
		v.issuers = googleIssuers
	}
	if len(v.algorithms) == 0 {
		v.algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}
	if v.now == nil {
		v.now = time.Now
	}

	if v.keyFunc == nil {
		url := cfg.JWKSURL
		if url == "" {
			url = GoogleJWKSURL
		}
		jwks, err := keyfunc.Get(url, keyfunc.Options{
			RefreshErrorHandler: func(err error) {
				logger.Warn("failed to refresh google JWKS", "error", err)
			},
			RefreshInterval:   time.Hour,
			RefreshRateLimit:  time.Minute * 5,
			RefreshTimeout:    time.Second * 10,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load google JWKS")
		}
		v.jwks = jwks
		v.keyFunc = jwks.Keyfunc
	}

	return v, nil
}

// Verify validates signature, audience, issuer and expiry, and requires a
// verified email.
func (v *GoogleVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, rejected(errors.New("empty token"))
	}

	token, err := jwt.ParseWithClaims(raw, &IDTokenClaims{}, v.keyFunc,
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods(v.algorithms),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		v.logger.Debug("id token failed verification", "error", err)
		return nil, rejected(err)
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || !token.Valid {
		return nil, rejected(errors.New("unexpected claims"))
	}
	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, rejected(errors.New("unexpected issuer " + claims.Issuer))
	}
	if claims.Email == "" || !claims.EmailVerified {
		return nil, rejected(errors.New("email missing or not verified"))
	}

	return &Identity{
		Subject: claims.Subject,
		Email:   auth.NormalizeEmail(claims.Email),
		Name:    claims.Name,
	}, nil
}

// Close stops the background JWKS refresh.
func (v *GoogleVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func rejected(err error) error {
	return goerrors.Wrap(err, ErrIDTokenRejected.Category, ErrIDTokenRejected.Message).
		WithTextCode(ErrIDTokenRejected.TextCode).
		WithCode(goerrors.CodeUnauthorized)
}
