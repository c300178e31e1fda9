package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dysonmetrics/telemetry/internal/snapshot"
	"github.com/dysonmetrics/telemetry/internal/state"
	"github.com/dysonmetrics/telemetry/internal/stream"
)

// ErrNoSource is returned when neither the live feed nor a snapshot
// capture can serve a request.
var ErrNoSource = errors.New(
	"no data source available: connect to the game telemetry feed, or supply a snapshot capture")

// LiveSource is the live feed contract the router depends on.
// *stream.Client satisfies it.
type LiveSource interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	IsHealthy() bool
	GetCurrentState(ctx context.Context, timeout time.Duration) (*state.FactoryState, error)
	WaitForFreshState(ctx context.Context, maxAge, timeout time.Duration) (*state.FactoryState, error)
	Status() stream.Status
	Close() error
}

// SnapshotSource is the static source contract the router depends on.
// *snapshot.Store satisfies it.
type SnapshotSource interface {
	Available() bool
	List() []snapshot.Info
	LoadLatest() (*state.FactoryState, error)
	Dir() string
}

// Config holds router policy settings.
type Config struct {
	// AutoFallback silently retries against the snapshot store when
	// the live feed fails.
	AutoFallback bool

	// ProbeInterval throttles live reconnection probes while
	// disconnected. Default 30s.
	ProbeInterval time.Duration

	// StateTimeout bounds live state requests. Default 5s.
	StateTimeout time.Duration

	// FreshMaxAge is the default freshness bound for require-fresh
	// requests. Default 1s.
	FreshMaxAge time.Duration
}

func (c *Config) applyDefaults() {
	if c.ProbeInterval == 0 {
		c.ProbeInterval = 30 * time.Second
	}
	if c.StateTimeout == 0 {
		c.StateTimeout = 5 * time.Second
	}
	if c.FreshMaxAge == 0 {
		c.FreshMaxAge = time.Second
	}
}

// GetOptions modify a single state request.
type GetOptions struct {
	// ForceMode pins the source for this request only. Takes
	// precedence over the router preference.
	ForceMode Mode

	// RequireFresh waits for live data younger than MaxAge instead of
	// accepting any cached state.
	RequireFresh bool

	// MaxAge overrides the configured freshness bound. Zero means the
	// configured default.
	MaxAge time.Duration
}

// Router selects between the live feed and the snapshot store, with
// automatic fallback. Mode is re-derived on every call; the only
// sticky state is the caller-set preference.
type Router struct {
	cfg       Config
	live      LiveSource
	snapshots SnapshotSource
	logger    *slog.Logger

	mu              sync.Mutex
	preferred       Mode // "" = none
	lastLiveAttempt time.Time

	now func() time.Time // clock, swapped in tests
}

// NewRouter creates a router over the two sources.
func NewRouter(cfg Config, live LiveSource, snapshots SnapshotSource, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Router{
		cfg:       cfg,
		live:      live,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
}

// SetPreferredMode pins mode selection until cleared.
func (r *Router) SetPreferredMode(mode Mode) error {
	if mode != ModeLive && mode != ModeSnapshot {
		return fmt.Errorf("invalid preferred mode %q (want live or snapshot)", mode)
	}
	r.mu.Lock()
	r.preferred = mode
	r.mu.Unlock()
	r.logger.Info("preferred data source set", "mode", mode)
	return nil
}

// ClearPreferredMode removes the preference override.
func (r *Router) ClearPreferredMode() {
	r.mu.Lock()
	r.preferred = ""
	r.mu.Unlock()
	r.logger.Info("preferred data source cleared")
}

// ConnectLive attempts a live connection now, bypassing the probe
// throttle (and resetting it).
func (r *Router) ConnectLive(ctx context.Context) error {
	r.mu.Lock()
	r.lastLiveAttempt = r.now()
	r.mu.Unlock()
	return r.live.Connect(ctx)
}

// effectiveMode applies the uniform precedence: forced > preferred >
// automatic selection from current source signals.
func (r *Router) effectiveMode(force Mode) Mode {
	if force != "" {
		return force
	}
	r.mu.Lock()
	preferred := r.preferred
	r.mu.Unlock()
	if preferred != "" {
		return preferred
	}
	return Select(r.live.IsHealthy(), r.live.IsConnected(), r.snapshots.Available())
}

// GetState returns the current factory state from the best available
// source.
func (r *Router) GetState(ctx context.Context, opts GetOptions) (*state.FactoryState, error) {
	st, _, err := r.getState(ctx, opts)
	return st, err
}

// GetStateWithSource additionally reports the mode that actually
// served the request, so callers can surface provenance.
func (r *Router) GetStateWithSource(ctx context.Context, opts GetOptions) (*state.FactoryState, Mode, error) {
	return r.getState(ctx, opts)
}

func (r *Router) getState(ctx context.Context, opts GetOptions) (*state.FactoryState, Mode, error) {
	mode := r.effectiveMode(opts.ForceMode)

	switch mode {
	case ModeLive:
		st, err := r.liveState(ctx, opts)
		if err == nil {
			return st, ModeLive, nil
		}
		r.logger.Warn("live data unavailable", "error", err)
		// A forced mode pins the source for this request; fallback
		// applies only to automatic or preferred selection.
		if opts.ForceMode == "" && r.cfg.AutoFallback && r.snapshots.Available() {
			r.logger.Info("falling back to snapshot capture")
			st, serr := r.snapshots.LoadLatest()
			if serr != nil {
				return nil, ModeSnapshot, serr
			}
			return st, ModeSnapshot, nil
		}
		return nil, ModeLive, err

	case ModeSnapshot:
		st, err := r.snapshots.LoadLatest()
		if err != nil {
			return nil, ModeSnapshot, err
		}
		return st, ModeSnapshot, nil

	default:
		return r.disconnectedState(ctx)
	}
}

// liveState delegates to the live client, honoring freshness.
func (r *Router) liveState(ctx context.Context, opts GetOptions) (*state.FactoryState, error) {
	if opts.RequireFresh {
		maxAge := opts.MaxAge
		if maxAge == 0 {
			maxAge = r.cfg.FreshMaxAge
		}
		return r.live.WaitForFreshState(ctx, maxAge, r.cfg.StateTimeout)
	}
	return r.live.GetCurrentState(ctx, r.cfg.StateTimeout)
}

// disconnectedState probes the live feed at most once per probe
// interval, then falls back to snapshots, then fails.
func (r *Router) disconnectedState(ctx context.Context) (*state.FactoryState, Mode, error) {
	r.mu.Lock()
	probe := r.now().Sub(r.lastLiveAttempt) > r.cfg.ProbeInterval
	if probe {
		r.lastLiveAttempt = r.now()
	}
	r.mu.Unlock()

	if probe {
		if err := r.live.Connect(ctx); err == nil {
			st, lerr := r.live.GetCurrentState(ctx, r.cfg.StateTimeout)
			if lerr == nil {
				return st, ModeLive, nil
			}
			r.logger.Warn("live probe connected but yielded no data", "error", lerr)
		}
	}

	if r.snapshots.Available() {
		st, err := r.snapshots.LoadLatest()
		if err != nil {
			return nil, ModeSnapshot, err
		}
		return st, ModeSnapshot, nil
	}

	return nil, ModeDisconnected, ErrNoSource
}

// SnapshotStatus summarizes the static source for diagnostics.
type SnapshotStatus struct {
	Available bool   `json:"available"`
	Dir       string `json:"dir,omitempty"`
	Count     int    `json:"count"`
}

// Status is a read-only aggregate of both sources. Observability only;
// control decisions re-derive the signals per call.
type Status struct {
	Mode          Mode           `json:"mode"`
	PreferredMode Mode           `json:"preferred_mode,omitempty"`
	AutoFallback  bool           `json:"auto_fallback"`
	Live          stream.Status  `json:"live"`
	Snapshots     SnapshotStatus `json:"snapshots"`
}

// Status reports the current aggregate status.
func (r *Router) Status() Status {
	r.mu.Lock()
	preferred := r.preferred
	r.mu.Unlock()

	return Status{
		Mode:          Select(r.live.IsHealthy(), r.live.IsConnected(), r.snapshots.Available()),
		PreferredMode: preferred,
		AutoFallback:  r.cfg.AutoFallback,
		Live:          r.live.Status(),
		Snapshots: SnapshotStatus{
			Available: r.snapshots.Available(),
			Dir:       r.snapshots.Dir(),
			Count:     len(r.snapshots.List()),
		},
	}
}

// Close shuts down the live source.
func (r *Router) Close() error {
	return r.live.Close()
}
