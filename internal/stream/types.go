package stream

import (
	"errors"
	"fmt"
	"time"
)

// Errors surfaced to callers. Transport and decode failures inside the
// receive loop are recoverable and never escape as anything else.
var (
	ErrConnectionUnavailable = errors.New("live feed unavailable")
	ErrTimeout               = errors.New("timed out waiting for live data")
	ErrAlreadyClosed         = errors.New("client already closed")
)

// Connection quality thresholds. Data older than stalenessThreshold is
// treated as a dead connection even if the transport has not errored.
// The staleness window sits just above the health window, so a healthy
// session is always a connected one and anything 3s old or more routes
// to a fallback source.
const (
	stalenessThreshold = 2500 * time.Millisecond
	healthyMaxAge      = 2 * time.Second
	healthyMaxLatency  = 500 * time.Millisecond

	handshakeTimeout  = 10 * time.Second
	writeTimeout      = 5 * time.Second
	pollInterval      = 100 * time.Millisecond
	freshPollInterval = 50 * time.Millisecond
)

// Config holds live feed client settings.
type Config struct {
	URL string // ws://host:port

	ReconnectInitialDelay time.Duration // default 1s
	ReconnectMaxDelay     time.Duration // default 30s
	ReconnectBackoff      float64       // default 2.0
	ReconnectMaxAttempts  int           // default 10
}

// FeedURL builds the feed endpoint URL for a host and port.
func FeedURL(host string, port int) string {
	return fmt.Sprintf("ws://%s:%d", host, port)
}

// DefaultConfig returns client settings matching the plugin defaults.
func DefaultConfig(url string) Config {
	return Config{
		URL:                   url,
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     30 * time.Second,
		ReconnectBackoff:      2.0,
		ReconnectMaxAttempts:  10,
	}
}

func (c *Config) applyDefaults() {
	if c.ReconnectInitialDelay == 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ReconnectBackoff == 0 {
		c.ReconnectBackoff = 2.0
	}
	if c.ReconnectMaxAttempts == 0 {
		c.ReconnectMaxAttempts = 10
	}
}

// Status is a read-only snapshot of connection diagnostics. It is for
// observability only; control decisions re-derive the predicates live.
type Status struct {
	URL               string  `json:"url"`
	Connected         bool    `json:"connected"`
	Healthy           bool    `json:"healthy"`
	HasData           bool    `json:"has_data"`
	LatencyMS         float64 `json:"latency_ms"`
	LastUpdateAgeMS   float64 `json:"last_update_age_ms"`
	ReconnectAttempts int     `json:"reconnect_attempts"`
}
