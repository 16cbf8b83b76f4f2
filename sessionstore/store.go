package sessionstore

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/pestline/go-auth"
)

// SessionKey is the KeyValueStore key holding the signed session token.
const SessionKey = "auth.session"

// ErrUnsupportedProvider is returned by SignInWithIDToken for providers with
// no registered verifier.
var ErrUnsupportedProvider = goerrors.New("identity provider not supported", goerrors.CategoryBadInput).
	WithTextCode("PROVIDER_NOT_SUPPORTED").
	WithCode(goerrors.CodeBadRequest)

// Account is the credential record used for password sign-in.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
}

// AccountFinder loads accounts by email. Implementations return an error for
// which auth.IsProfileNotFound is true when no account matches.
type AccountFinder interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
}

// Config configures a Store.
type Config struct {
	SigningKey []byte
	Issuer     string
	TokenTTL   time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithIDTokenVerifier registers v for provider.
func WithIDTokenVerifier(provider string, v IDTokenVerifier) Option {
	return func(s *Store) {
		if v != nil {
			s.verifiers[provider] = v
		}
	}
}

// WithLogger overrides the store logger.
func WithLogger(logger auth.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source used for token issue and validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is a local auth.SessionStore. The session token is kept in a
// KeyValueStore so it survives process restarts.
type Store struct {
	kv        auth.KeyValueStore
	accounts  AccountFinder
	tokens    *TokenIssuer
	verifiers map[string]IDTokenVerifier
	logger    auth.Logger
	now       func() time.Time

	mu        sync.Mutex
	listeners map[uint64]auth.AuthChangeHandler
	nextID    uint64
}

var _ auth.SessionStore = (*Store)(nil)

// NewStore builds a Store persisting sessions into kv.
func NewStore(kv auth.KeyValueStore, accounts AccountFinder, cfg Config, opts ...Option) (*Store, error) {
	if kv == nil {
		kv = auth.NewMemoryStore()
	}

	_, logger := auth.ResolveLogger("auth.sessionstore", nil, nil)
	s := &Store{
		kv:        kv,
		accounts:  accounts,
		verifiers: map[string]IDTokenVerifier{},
		logger:    logger,
		now:       time.Now,
		listeners: map[uint64]auth.AuthChangeHandler{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	tokens, err := NewTokenIssuer(cfg.SigningKey, cfg.Issuer, cfg.TokenTTL, s.now)
	if err != nil {
		return nil, err
	}
	s.tokens = tokens

	return s, nil
}

// CurrentSession returns the persisted session, or nil when none is active.
// An expired or unreadable token is discarded.
func (s *Store) CurrentSession(ctx context.Context) (*auth.Session, error) {
	raw, ok, err := s.kv.Get(ctx, SessionKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read session")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	session, err := s.tokens.Parse(raw)
	if err != nil {
		s.logger.Debug("discarding stored session", "error", err)
		if derr := s.kv.Delete(ctx, SessionKey); derr != nil {
			s.logger.Warn("failed to delete stored session", "error", derr)
		}
		return nil, nil
	}

	return session, nil
}

// SignInWithPassword checks email and password against the account finder.
// Unknown accounts and wrong passwords both yield auth.ErrInvalidCredentials.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (*auth.Session, error) {
	if s.accounts == nil {
		return nil, goerrors.New("password sign-in is not configured", goerrors.CategoryInternal)
	}

	email = auth.NormalizeEmail(email)
	account, err := s.accounts.FindAccountByEmail(ctx, email)
	if err != nil {
		if auth.IsProfileNotFound(err) {
			return nil, auth.ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load account")
	}

	if err := auth.ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	user := auth.SessionUser{ID: account.ID, Email: account.Email, Name: account.Name}
	return s.establish(ctx, user, auth.LoginMethodEmail, auth.EventSignedIn)
}

// SignInWithIDToken verifies token with the provider's verifier and opens a
// session for its email. A local account with that email lends its id.
func (s *Store) SignInWithIDToken(ctx context.Context, provider, token string) (*auth.Session, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, ErrUnsupportedProvider.Clone().WithMetadata(map[string]any{"provider": provider})
	}

	identity, err := verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	user := auth.SessionUser{
		ID:    provider + ":" + identity.Subject,
		Email: identity.Email,
		Name:  identity.Name,
	}

	if s.accounts != nil {
		account, err := s.accounts.FindAccountByEmail(ctx, identity.Email)
		switch {
		case err == nil:
			user.ID = account.ID
			if user.Name == "" {
				user.Name = account.Name
			}
		case auth.IsProfileNotFound(err):
		default:
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load account")
		}
	}

	return s.establish(ctx, user, provider, auth.EventSignedIn)
}

// SignOut removes the stored session and notifies listeners.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.kv.Delete(ctx, SessionKey); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to delete session")
	}
	s.emit(ctx, auth.EventSignedOut, nil)
	return nil
}

// Refresh reissues the active session with a new expiry. It returns nil when
// no session is active.
func (s *Store) Refresh(ctx context.Context) (*auth.Session, error) {
	current, err := s.CurrentSession(ctx)
	if err != nil || current == nil {
		return nil, err
	}
	return s.establish(ctx, current.User, current.Provider, auth.EventTokenRefreshed)
}

// OnAuthStateChange subscribes handler. Handlers run on the caller's
// goroutine after the store has released its lock.
func (s *Store) OnAuthStateChange(handler auth.AuthChangeHandler) func() {
	if handler == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = handler
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) establish(ctx context.Context, user auth.SessionUser, provider auth.LoginMethod, event auth.AuthEvent) (*auth.Session, error) {
	session, err := s.tokens.Issue(user, provider)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Set(ctx, SessionKey, session.AccessToken); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to persist session")
	}

	s.logger.Debug("session established", "email", user.Email, "provider", provider, "event", string(event))
	s.emit(ctx, event, session)
	return session, nil
}

func (s *Store) emit(ctx context.Context, event auth.AuthEvent, session *auth.Session) {
	s.mu.Lock()
	handlers := make([]auth.AuthChangeHandler, 0, len(s.listeners))
	for _, h := range s.listeners {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()

	for _, h := range handlers {
		var copied *auth.Session
		if session != nil {
			c := *session
			copied = &c
		}
		h(ctx, event, copied)
	}
}
