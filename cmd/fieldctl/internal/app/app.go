package app

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/pestline/go-auth"
	"github.com/pestline/go-auth/activitymap"
	"github.com/pestline/go-auth/adapters/redisstore"
	"github.com/pestline/go-auth/cmd/fieldctl/internal/config"
	"github.com/pestline/go-auth/repository"
	"github.com/pestline/go-auth/sessionstore"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// ErrSigningKeyMissing is returned when no session signing key is configured.
var ErrSigningKeyMissing = goerrors.New(config.EnvSigningKey+" is required", goerrors.CategoryBadInput)

// App is the wired session stack used by every command.
type App struct {
	Config   *config.Config
	Logger   auth.Logger
	DB       *bun.DB
	Profiles *repository.Profiles
	KV       auth.KeyValueStore
	Sessions *sessionstore.Store
	Machine  *auth.Machine
	Gate     *auth.Gate

	base    *glog.BaseLogger
	closers []func() error
}

var _ auth.LoggerProvider = (*App)(nil)

// GetLogger returns the named child of the application logger.
func (a *App) GetLogger(name string) glog.Logger {
	return a.base.GetLogger(name)
}

// New opens the profile database and the local session state described by
// cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.SigningKey == "" {
		return nil, ErrSigningKeyMissing
	}

	level := glog.Info
	if cfg.Debug {
		level = glog.Trace
	}
	logger := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("fieldctl"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)

	a := &App{Config: cfg, Logger: logger, base: logger}
	provider := a

	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create state directory")
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DatabaseDSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open profile database")
	}
	a.closers = append(a.closers, sqldb.Close)

	client, err := persistence.New(repository.PersistenceConfig{
		DSN:   cfg.DatabaseDSN,
		Debug: cfg.Debug,
	}, sqldb, sqlitedialect.New())
	if err != nil {
		a.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to start persistence client")
	}
	client.SetLogger(a.GetLogger("persistence"))

	if err := repository.RegisterMigrations(client); err != nil {
		a.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		a.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to migrate profile database")
	}

	a.DB = client.DB()
	a.Profiles = repository.NewProfiles(a.DB, repository.WithPhoneRegion(cfg.PhoneRegion))

	if cfg.UsesRedis() {
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		a.closers = append(a.closers, client.Close)
		a.KV = redisstore.New(client, redisstore.Options{})
	} else {
		fs, err := auth.NewFileStoreInDir(cfg.StateDir)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.KV = fs
	}

	storeOpts := []sessionstore.Option{sessionstore.WithLogger(provider.GetLogger("fieldctl.sessions"))}
	if cfg.GoogleClientID != "" {
		google := &lazyGoogleVerifier{cfg: sessionstore.GoogleConfig{
			ClientID: cfg.GoogleClientID,
			Logger:   provider.GetLogger("fieldctl.idtoken"),
		}}
		a.closers = append(a.closers, google.Close)
		storeOpts = append(storeOpts, sessionstore.WithIDTokenVerifier(auth.LoginMethodGoogle, google))
	}

	a.Sessions, err = sessionstore.NewStore(a.KV, a.Profiles, sessionstore.Config{
		SigningKey: []byte(cfg.SigningKey),
		Issuer:     cfg.Issuer,
		TokenTTL:   cfg.SessionTTL,
	}, storeOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Gate = auth.NewGate(auth.DefaultRoutes())

	resolver := auth.NewProfileResolver(a.Profiles).WithLoggerProvider(provider)
	activityLogger := provider.GetLogger("fieldctl.activity")
	a.Machine = auth.NewMachine(a.Sessions, resolver, auth.NewSnapshotCache(a.KV),
		auth.WithMachineLoggerProvider(provider),
		auth.WithMachineRoutes(a.Gate.Routes()),
		auth.WithMachineActivitySink(auth.ActivitySinkFunc(func(ctx context.Context, e auth.ActivityEvent) error {
			activityLogger.Debug("session activity", activitymap.Normalize(e, activitymap.WithActorFallback("device")).Fields()...)
			return nil
		})),
	)

	return a, nil
}

// Close tears the machine down and releases every resource in reverse order.
func (a *App) Close() error {
	if a.Machine != nil {
		a.Machine.Teardown()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// lazyGoogleVerifier defers the JWKS fetch until a Google sign-in happens.
type lazyGoogleVerifier struct {
	cfg sessionstore.GoogleConfig

	once     sync.Once
	verifier *sessionstore.GoogleVerifier
	err      error
}

func (l *lazyGoogleVerifier) Verify(ctx context.Context, token string) (*sessionstore.Identity, error) {
	l.once.Do(func() {
		l.verifier, l.err = sessionstore.NewGoogleVerifier(l.cfg)
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.verifier.Verify(ctx, token)
}

func (l *lazyGoogleVerifier) Close() error {
	if l.verifier != nil {
		l.verifier.Close()
	}
	return nil
}
