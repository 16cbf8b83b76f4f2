package repository

import (
	"time"

	"github.com/uptrace/bun/driver/sqliteshim"
)

// DefaultPingTimeout bounds the connection check done by the persistence
// client at startup.
const DefaultPingTimeout = 5 * time.Second

// PersistenceConfig is the persistence client configuration for the
// profile database.
type PersistenceConfig struct {
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return sqliteshim.ShimName
}

func (c PersistenceConfig) GetServer() string {
	return c.DSN
}

func (c PersistenceConfig) GetDSN() string {
	return c.DSN
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return DefaultPingTimeout
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	return c.OtelIdentifier
}
