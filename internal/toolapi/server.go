package toolapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dysonmetrics/telemetry/internal/analyzer"
	"github.com/dysonmetrics/telemetry/internal/recipe"
	"github.com/dysonmetrics/telemetry/internal/snapshot"
	"github.com/dysonmetrics/telemetry/internal/source"
	"github.com/dysonmetrics/telemetry/internal/state"
	"github.com/dysonmetrics/telemetry/internal/stream"
	"github.com/dysonmetrics/telemetry/internal/version"
)

const requestTimeout = 10 * time.Second

// StateRouter is the data source router contract the server depends on.
// *source.Router satisfies it.
type StateRouter interface {
	Status() source.Status
	ConnectLive(ctx context.Context) error
	SetPreferredMode(mode source.Mode) error
	ClearPreferredMode()
	GetStateWithSource(ctx context.Context, opts source.GetOptions) (*state.FactoryState, source.Mode, error)
}

// CaptureStore is the snapshot store contract the server depends on.
// *snapshot.Store satisfies it.
type CaptureStore interface {
	List() []snapshot.Info
	Load(path string) (*state.FactoryState, error)
	Write(path string, st *state.FactoryState) error
	Dir() string
}

// EndpointSetter redirects the live feed to another endpoint.
// *stream.Client satisfies it.
type EndpointSetter interface {
	SetEndpoint(url string)
}

// Server handles the tool HTTP surface.
type Server struct {
	router   StateRouter
	captures CaptureStore
	recipes  *recipe.Database
	feed     EndpointSetter // nil disables endpoint override
	logger   *slog.Logger
}

// NewServer creates a tool server over the router and snapshot store.
func NewServer(router StateRouter, captures CaptureStore, recipes *recipe.Database, feed EndpointSetter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		router:   router,
		captures: captures,
		recipes:  recipes,
		feed:     feed,
		logger:   logger,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /connect", s.handleConnect)
	mux.HandleFunc("POST /mode", s.handleMode)
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("POST /analyze/bottlenecks", s.handleAnalyzeBottlenecks)
	mux.HandleFunc("POST /analyze/power", s.handleAnalyzePower)
	mux.HandleFunc("POST /analyze/logistics", s.handleAnalyzeLogistics)
	mux.HandleFunc("GET /recipes/chain", s.handleRecipeChain)
	mux.HandleFunc("GET /saves", s.handleSaves)
	mux.HandleFunc("POST /saves/load", s.handleSavesLoad)
	mux.HandleFunc("POST /saves/capture", s.handleSavesCapture)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.router.Status()

	health := struct {
		Status     string         `json:"status"`
		Version    string         `json:"version"`
		Components map[string]any `json:"components"`
	}{
		Status:     "ok",
		Version:    version.Version,
		Components: make(map[string]any),
	}

	health.Components["live_feed"] = map[string]any{
		"connected": status.Live.Connected,
		"healthy":   status.Live.Healthy,
	}
	health.Components["snapshots"] = map[string]any{
		"available": status.Snapshots.Available,
		"count":     status.Snapshots.Count,
	}
	if status.Mode == source.ModeDisconnected {
		health.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if req.Host != "" {
		if s.feed == nil {
			writeError(w, http.StatusBadRequest,
				"live endpoint override is not supported by this deployment", "")
			return
		}
		if req.Port <= 0 {
			writeError(w, http.StatusBadRequest, "port must be positive when host is set", "")
			return
		}
		s.feed.SetEndpoint(stream.FeedURL(req.Host, req.Port))
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.router.ConnectLive(ctx); err != nil {
		s.writeDataError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"` // live, snapshot, or empty to clear
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if req.Mode == "" {
		s.router.ClearPreferredMode()
	} else {
		mode, err := source.ParseMode(req.Mode)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		if err := s.router.SetPreferredMode(mode); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
	}
	writeJSON(w, http.StatusOK, s.router.Status())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	planetID := 0
	if raw := q.Get("planet_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "planet_id must be an integer", "")
			return
		}
		planetID = id
	}

	var items []string
	if raw := q.Get("items"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				items = append(items, name)
			}
		}
	}

	opts := source.GetOptions{
		RequireFresh: q.Get("fresh") == "true",
	}
	if raw := q.Get("force"); raw != "" {
		mode, err := source.ParseMode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		opts.ForceMode = mode
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, mode, err := s.router.GetStateWithSource(ctx, opts)
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildStateView(st, string(mode), planetID, items))
}

// analyzeRequest is the shared request shape for the analyze endpoints.
type analyzeRequest struct {
	PlanetID            int      `json:"planet_id"`
	TargetItem          string   `json:"target_item"`
	Items               []string `json:"items"`
	IncludeAccumulators bool     `json:"include_accumulators"`
	SaturationThreshold float64  `json:"saturation_threshold"`
	RequireLive         bool     `json:"require_live"`
	Force               string   `json:"force"`
}

// fetchState resolves a state for an analysis request.
func (s *Server) fetchState(r *http.Request, req analyzeRequest) (*state.FactoryState, source.Mode, error) {
	opts := source.GetOptions{}
	if req.RequireLive {
		opts.ForceMode = source.ModeLive
	}
	if req.Force != "" {
		mode, err := source.ParseMode(req.Force)
		if err != nil {
			return nil, "", err
		}
		opts.ForceMode = mode
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	return s.router.GetStateWithSource(ctx, opts)
}

func (s *Server) handleAnalyzeBottlenecks(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	st, mode, err := s.fetchState(r, req)
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	report := analyzer.AnalyzeBottlenecks(st, analyzer.BottleneckOptions{
		PlanetID:   req.PlanetID,
		TargetItem: req.TargetItem,
		Recipes:    s.recipes,
	})
	writeJSON(w, http.StatusOK, analysisResponse{DataSource: string(mode), Report: report})
}

func (s *Server) handleAnalyzePower(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	st, mode, err := s.fetchState(r, req)
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	report := analyzer.AnalyzePower(st, analyzer.PowerOptions{
		PlanetID:            req.PlanetID,
		IncludeAccumulators: req.IncludeAccumulators,
	})
	writeJSON(w, http.StatusOK, analysisResponse{DataSource: string(mode), Report: report})
}

func (s *Server) handleAnalyzeLogistics(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	st, mode, err := s.fetchState(r, req)
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	report := analyzer.AnalyzeLogistics(st, analyzer.LogisticsOptions{
		PlanetID:            req.PlanetID,
		ItemFilter:          req.Items,
		SaturationThreshold: req.SaturationThreshold,
	})
	writeJSON(w, http.StatusOK, analysisResponse{DataSource: string(mode), Report: report})
}

// analysisResponse wraps an analyzer report with its provenance.
type analysisResponse struct {
	DataSource string `json:"data_source"`
	Report     any    `json:"report"`
}

func (s *Server) handleRecipeChain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	name := q.Get("item")
	if name == "" {
		writeError(w, http.StatusBadRequest, "item is required", "")
		return
	}
	itemID, ok := s.recipes.ItemID(name)
	if !ok {
		if id, err := strconv.Atoi(name); err == nil {
			itemID = id
		} else {
			writeError(w, http.StatusNotFound, fmt.Sprintf("unknown item %q", name), "")
			return
		}
	}

	rate := 60.0
	if raw := q.Get("rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "rate must be a positive number", "")
			return
		}
		rate = v
	}

	depth := 10
	if raw := q.Get("depth"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, "depth must be a positive integer", "")
			return
		}
		depth = v
	}

	writeJSON(w, http.StatusOK, struct {
		ItemID        int                `json:"item_id"`
		ItemName      string             `json:"item_name"`
		RatePerMinute float64            `json:"rate_per_minute"`
		Chain         []recipe.ChainStep `json:"chain"`
	}{
		ItemID:        itemID,
		ItemName:      s.recipes.ItemName(itemID),
		RatePerMinute: rate,
		Chain:         s.recipes.ProductionChain(itemID, rate, depth),
	})
}

func (s *Server) handleSaves(w http.ResponseWriter, r *http.Request) {
	infos := s.captures.List()
	if infos == nil {
		infos = []snapshot.Info{}
	}
	writeJSON(w, http.StatusOK, struct {
		Dir      string          `json:"dir,omitempty"`
		Count    int             `json:"count"`
		Captures []snapshot.Info `json:"captures"`
	}{
		Dir:      s.captures.Dir(),
		Count:    len(infos),
		Captures: infos,
	})
}

func (s *Server) handleSavesLoad(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path     string `json:"path"`
		Name     string `json:"name"`
		Analysis string `json:"analysis"` // production, power, logistics, full
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	path := req.Path
	if path == "" && req.Name != "" {
		path = filepath.Join(s.captures.Dir(), req.Name+snapshot.Extension)
	}
	if path == "" {
		writeError(w, http.StatusBadRequest, "path or name is required", "")
		return
	}

	analysis := req.Analysis
	if analysis == "" {
		analysis = "full"
	}
	switch analysis {
	case "production", "power", "logistics", "full":
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("unknown analysis %q (want production, power, logistics, or full)", analysis), "")
		return
	}

	st, err := s.captures.Load(path)
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	resp := struct {
		DataSource string                    `json:"data_source"`
		Capture    string                    `json:"capture"`
		Production *stateView                `json:"production,omitempty"`
		Power      *analyzer.PowerReport     `json:"power,omitempty"`
		Logistics  *analyzer.LogisticsReport `json:"logistics,omitempty"`
	}{
		DataSource: string(source.ModeSnapshot),
		Capture:    path,
	}

	if analysis == "production" || analysis == "full" {
		view := buildStateView(st, string(source.ModeSnapshot), 0, nil)
		resp.Production = &view
	}
	if analysis == "power" || analysis == "full" {
		report := analyzer.AnalyzePower(st, analyzer.PowerOptions{IncludeAccumulators: true})
		resp.Power = &report
	}
	if analysis == "logistics" || analysis == "full" {
		report := analyzer.AnalyzeLogistics(st, analyzer.LogisticsOptions{})
		resp.Logistics = &report
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSavesCapture writes the current state to a capture file, so a
// live session can be preserved for offline analysis.
func (s *Server) handleSavesCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	dir := s.captures.Dir()
	if dir == "" {
		writeError(w, http.StatusServiceUnavailable,
			"no capture directory configured",
			"set snapshots.dir in the configuration, then retry the capture")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, mode, err := s.router.GetStateWithSource(ctx, source.GetOptions{})
	if err != nil {
		s.writeDataError(w, err)
		return
	}

	name := req.Name
	if name == "" {
		name = "capture-" + time.Now().UTC().Format("20060102-150405")
	}
	path := filepath.Join(dir, name+snapshot.Extension)

	if err := s.captures.Write(path, st); err != nil {
		s.writeDataError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		Capture    string `json:"capture"`
		DataSource string `json:"data_source"`
	}{
		Capture:    path,
		DataSource: string(mode),
	})
}

// writeDataError maps source and capture errors onto HTTP statuses,
// with remediation text for unavailable data.
func (s *Server) writeDataError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, source.ErrNoSource):
		writeError(w, http.StatusServiceUnavailable, err.Error(),
			"start the game with the telemetry plugin enabled, or place a capture file in the snapshot directory")

	case errors.Is(err, stream.ErrConnectionUnavailable),
		errors.Is(err, stream.ErrTimeout),
		errors.Is(err, stream.ErrAlreadyClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error(),
			"check that the game is running and the telemetry plugin is listening, then POST /connect")

	case errors.Is(err, snapshot.ErrNoSnapshots):
		writeError(w, http.StatusServiceUnavailable, err.Error(),
			"no capture files found; connect to the live feed or add a capture to the snapshot directory")

	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")

	case errors.Is(err, snapshot.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, err.Error(), "")

	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error(), "")
	}
}

// decodeBody parses an optional JSON request body. An empty body leaves
// the target zero-valued.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, remediation string) {
	writeJSON(w, status, struct {
		Error       string `json:"error"`
		Remediation string `json:"remediation,omitempty"`
	}{
		Error:       msg,
		Remediation: remediation,
	})
}
