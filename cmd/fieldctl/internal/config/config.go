package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
)

type contextKey string

const configKey contextKey = "fieldctl-config"

// Environment variables read by Load.
const (
	EnvStateDir       = "FIELDCTL_STATE_DIR"
	EnvDatabaseDSN    = "FIELDCTL_DATABASE_DSN"
	EnvSigningKey     = "FIELDCTL_SIGNING_KEY"
	EnvIssuer         = "FIELDCTL_ISSUER"
	EnvSessionTTL     = "FIELDCTL_SESSION_TTL"
	EnvGoogleClientID = "FIELDCTL_GOOGLE_CLIENT_ID"
	EnvRedisAddr      = "FIELDCTL_REDIS_ADDR"
	EnvRedisPassword  = "FIELDCTL_REDIS_PASSWORD"
	EnvRedisDB        = "FIELDCTL_REDIS_DB"
	EnvListenAddr     = "FIELDCTL_LISTEN_ADDR"
	EnvPhoneRegion    = "FIELDCTL_PHONE_REGION"
	EnvDebug          = "FIELDCTL_DEBUG"
)

// Config holds shared configuration for all fieldctl commands. It is
// injected into the cobra command context by the root command's
// PersistentPreRunE hook.
type Config struct {
	StateDir       string
	DatabaseDSN    string
	SigningKey     string
	Issuer         string
	SessionTTL     time.Duration
	GoogleClientID string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ListenAddr     string
	PhoneRegion    string
	Debug          bool
}

// Validate checks the values Load produced.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.StateDir, validation.Required),
		validation.Field(&c.DatabaseDSN, validation.Required),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.SessionTTL, validation.Required, validation.Min(time.Minute)),
		validation.Field(&c.ListenAddr, validation.Required),
		validation.Field(&c.PhoneRegion, validation.Required, validation.Length(2, 2)),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

// UsesRedis reports whether local session state lives in Redis.
func (c Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

// Load reads envFiles (default .env) if present and then the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read env file").
				WithMetadata(map[string]any{"file": f})
		}
	}

	stateDir := env(EnvStateDir, "")
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve home directory")
		}
		stateDir = filepath.Join(home, ".fieldctl")
	}

	ttl, err := time.ParseDuration(env(EnvSessionTTL, "12h"))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid "+EnvSessionTTL)
	}

	redisDB, err := strconv.Atoi(env(EnvRedisDB, "0"))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid "+EnvRedisDB)
	}

	cfg := &Config{
		StateDir:       stateDir,
		DatabaseDSN:    env(EnvDatabaseDSN, "file:"+filepath.Join(stateDir, "profiles.db")+"?cache=shared"),
		SigningKey:     env(EnvSigningKey, ""),
		Issuer:         env(EnvIssuer, "fieldctl"),
		SessionTTL:     ttl,
		GoogleClientID: env(EnvGoogleClientID, ""),
		RedisAddr:      env(EnvRedisAddr, ""),
		RedisPassword:  env(EnvRedisPassword, ""),
		RedisDB:        redisDB,
		ListenAddr:     env(EnvListenAddr, ":8080"),
		PhoneRegion:    strings.ToUpper(env(EnvPhoneRegion, "US")),
		Debug:          env(EnvDebug, "") == "1" || strings.EqualFold(env(EnvDebug, ""), "true"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return cfg, nil
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// InjectConfig adds config to the cobra command context.
func InjectConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
func FromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(configKey).(*Config)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
func MustFromContext(ctx context.Context) *Config {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("fieldctl: config not found in context")
	}
	return cfg
}
