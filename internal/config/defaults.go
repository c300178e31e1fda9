package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultLogLevel              = "info"
	DefaultLiveHost              = "localhost"
	DefaultLivePort              = 8470
	DefaultReconnectInitialDelay = 1 * time.Second
	DefaultReconnectMaxDelay     = 30 * time.Second
	DefaultReconnectMaxAttempts  = 10
	DefaultProbeInterval         = 30 * time.Second
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultBatchSize             = 500
	DefaultFlushInterval         = 2 * time.Second
	DefaultServerPort            = 8471
)

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	// Live feed defaults
	if c.Live.Host == "" {
		c.Live.Host = DefaultLiveHost
	}
	if c.Live.Port == 0 {
		c.Live.Port = DefaultLivePort
	}
	if c.Live.ReconnectInitialDelay == 0 {
		c.Live.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if c.Live.ReconnectMaxDelay == 0 {
		c.Live.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Live.ReconnectMaxAttempts == 0 {
		c.Live.ReconnectMaxAttempts = DefaultReconnectMaxAttempts
	}

	// Router defaults
	if c.Router.ProbeInterval == 0 {
		c.Router.ProbeInterval = DefaultProbeInterval
	}

	// History defaults
	if c.History.Enabled {
		applyDBDefaults(&c.History.Database)
	}
	if c.History.BatchSize == 0 {
		c.History.BatchSize = DefaultBatchSize
	}
	if c.History.FlushInterval == 0 {
		c.History.FlushInterval = DefaultFlushInterval
	}

	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
