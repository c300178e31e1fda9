package config

import "time"

// Config is the root configuration for the telemetry daemon.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Live      LiveConfig      `yaml:"live"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Router    RouterConfig    `yaml:"router"`
	History   HistoryConfig   `yaml:"history"`
	Server    ServerConfig    `yaml:"server"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// LiveConfig holds live feed connection settings.
type LiveConfig struct {
	Host                  string        `yaml:"host"`
	Port                  int           `yaml:"port"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	ReconnectMaxAttempts  int           `yaml:"reconnect_max_attempts"`
}

// SnapshotsConfig holds the capture directory for static snapshots.
type SnapshotsConfig struct {
	// Dir is the capture directory. Empty means auto-detect the
	// game's default capture location.
	Dir string `yaml:"dir"`
}

// RouterConfig holds data source router settings.
type RouterConfig struct {
	AutoFallback  *bool         `yaml:"auto_fallback"` // nil means default (true)
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// HistoryConfig holds the optional TimescaleDB sample recorder settings.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds the tool API server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// AutoFallbackEnabled reports the effective auto-fallback setting.
func (r RouterConfig) AutoFallbackEnabled() bool {
	if r.AutoFallback == nil {
		return true
	}
	return *r.AutoFallback
}
