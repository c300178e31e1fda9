package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	if c.Live.Host == "" {
		return errors.New("live.host is required")
	}
	if c.Live.Port < 1 || c.Live.Port > 65535 {
		return fmt.Errorf("live.port must be between 1 and 65535, got %d", c.Live.Port)
	}
	if c.Live.ReconnectInitialDelay <= 0 {
		return errors.New("live.reconnect_initial_delay must be > 0")
	}
	if c.Live.ReconnectMaxDelay < c.Live.ReconnectInitialDelay {
		return errors.New("live.reconnect_max_delay must be >= live.reconnect_initial_delay")
	}
	if c.Live.ReconnectMaxAttempts < 1 {
		return errors.New("live.reconnect_max_attempts must be >= 1")
	}

	if c.Router.ProbeInterval <= 0 {
		return errors.New("router.probe_interval must be > 0")
	}

	if c.History.Enabled {
		if err := c.History.Database.validate("history.database"); err != nil {
			return err
		}
		if c.History.BatchSize < 1 {
			return errors.New("history.batch_size must be >= 1")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns must be <= max_conns", prefix)
	}
	return nil
}
