package toolapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dysonmetrics/telemetry/internal/recipe"
	"github.com/dysonmetrics/telemetry/internal/snapshot"
	"github.com/dysonmetrics/telemetry/internal/source"
	"github.com/dysonmetrics/telemetry/internal/state"
	"github.com/dysonmetrics/telemetry/internal/stream"
)

// fakeRouter is a scriptable StateRouter.
type fakeRouter struct {
	status     source.Status
	state      *state.FactoryState
	mode       source.Mode
	stateErr   error
	connectErr error

	preferred     source.Mode
	connectCalls  int
	clearedCalls  int
	lastGetOption source.GetOptions
}

func (f *fakeRouter) Status() source.Status { return f.status }
func (f *fakeRouter) ConnectLive(ctx context.Context) error {
	f.connectCalls++
	return f.connectErr
}
func (f *fakeRouter) SetPreferredMode(mode source.Mode) error {
	if mode != source.ModeLive && mode != source.ModeSnapshot {
		return source.ErrNoSource
	}
	f.preferred = mode
	return nil
}
func (f *fakeRouter) ClearPreferredMode() { f.clearedCalls++ }
func (f *fakeRouter) GetStateWithSource(ctx context.Context, opts source.GetOptions) (*state.FactoryState, source.Mode, error) {
	f.lastGetOption = opts
	if f.stateErr != nil {
		return nil, f.mode, f.stateErr
	}
	return f.state, f.mode, nil
}

// fakeCaptures is a scriptable CaptureStore.
type fakeCaptures struct {
	infos     []snapshot.Info
	state     *state.FactoryState
	loadErr   error
	writeErr  error
	lastLoad  string
	lastWrite string
	noDir     bool
}

func (f *fakeCaptures) List() []snapshot.Info { return f.infos }
func (f *fakeCaptures) Dir() string {
	if f.noDir {
		return ""
	}
	return "/captures"
}
func (f *fakeCaptures) Load(path string) (*state.FactoryState, error) {
	f.lastLoad = path
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.state, nil
}
func (f *fakeCaptures) Write(path string, st *state.FactoryState) error {
	f.lastWrite = path
	return f.writeErr
}

func testFactoryState() *state.FactoryState {
	st := state.New(time.Now())
	st.GameTick = 777
	planet := state.NewPlanetState(1, "Birch")
	planet.AddProduction("iron-ingot", 60, 30, 100)
	planet.AddProduction("copper-ingot", 45, 0, 50)
	power := state.NewPowerMetrics(120, 90, 80)
	planet.Power = &power
	planet.Assemblers = append(planet.Assemblers,
		state.NewAssemblerMetrics(1, 1, 30, 30, false, false))
	st.Planets[1] = planet
	return st
}

func newTestServer(t *testing.T, router *fakeRouter, captures *fakeCaptures) *Server {
	t.Helper()
	recipes, err := recipe.Load()
	if err != nil {
		t.Fatalf("recipe.Load failed: %v", err)
	}
	if captures == nil {
		captures = &fakeCaptures{}
	}
	return NewServer(router, captures, recipes, nil, nil)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHandleStatus(t *testing.T) {
	router := &fakeRouter{status: source.Status{
		Mode:         source.ModeLive,
		AutoFallback: true,
		Live:         stream.Status{Connected: true, Healthy: true},
	}}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got source.Status
	decodeResponse(t, rec, &got)
	if got.Mode != source.ModeLive {
		t.Errorf("Mode = %v, want live", got.Mode)
	}
	if !got.Live.Healthy {
		t.Error("Live.Healthy = false, want true")
	}
}

func TestHandleHealthz(t *testing.T) {
	router := &fakeRouter{status: source.Status{Mode: source.ModeDisconnected}}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		Status string `json:"status"`
	}
	decodeResponse(t, rec, &got)
	if got.Status != "degraded" {
		t.Errorf("health status = %q, want degraded when disconnected", got.Status)
	}
}

func TestHandleConnect(t *testing.T) {
	router := &fakeRouter{status: source.Status{Mode: source.ModeLive}}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/connect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if router.connectCalls != 1 {
		t.Errorf("connect calls = %d, want 1", router.connectCalls)
	}
}

func TestHandleConnect_Unavailable(t *testing.T) {
	router := &fakeRouter{connectErr: stream.ErrConnectionUnavailable}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/connect", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var got struct {
		Error       string `json:"error"`
		Remediation string `json:"remediation"`
	}
	decodeResponse(t, rec, &got)
	if got.Remediation == "" {
		t.Error("503 response carries no remediation text")
	}
}

func TestHandleConnect_OverrideWithoutFeed(t *testing.T) {
	router := &fakeRouter{}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/connect", `{"host":"10.0.0.9","port":8470}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when no endpoint setter is wired", rec.Code)
	}
}

func TestHandleMode(t *testing.T) {
	router := &fakeRouter{}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/mode", `{"mode":"snapshot"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if router.preferred != source.ModeSnapshot {
		t.Errorf("preferred = %v, want snapshot", router.preferred)
	}

	rec = doRequest(t, s, http.MethodPost, "/mode", `{"mode":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d, want 200", rec.Code)
	}
	if router.clearedCalls != 1 {
		t.Errorf("clear calls = %d, want 1", router.clearedCalls)
	}

	rec = doRequest(t, s, http.MethodPost, "/mode", `{"mode":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode status = %d, want 400", rec.Code)
	}
}

func TestHandleState(t *testing.T) {
	router := &fakeRouter{state: testFactoryState(), mode: source.ModeLive}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodGet, "/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got stateView
	decodeResponse(t, rec, &got)
	if got.DataSource != "live" {
		t.Errorf("data_source = %q, want live", got.DataSource)
	}
	if got.GameTick != 777 {
		t.Errorf("game_tick = %d, want 777", got.GameTick)
	}
	if len(got.Planets) != 1 || len(got.Planets[0].Items) != 2 {
		t.Fatalf("planets = %+v, want 1 planet with 2 items", got.Planets)
	}
}

func TestHandleState_Filters(t *testing.T) {
	router := &fakeRouter{state: testFactoryState(), mode: source.ModeLive}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodGet, "/state?planet_id=1&items=iron-ingot&fresh=true&force=live", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got stateView
	decodeResponse(t, rec, &got)
	if len(got.Planets) != 1 {
		t.Fatalf("planets = %d, want 1", len(got.Planets))
	}
	if len(got.Planets[0].Items) != 1 || got.Planets[0].Items[0].Name != "iron-ingot" {
		t.Errorf("items = %+v, want only iron-ingot", got.Planets[0].Items)
	}

	if !router.lastGetOption.RequireFresh {
		t.Error("fresh=true did not request fresh data")
	}
	if router.lastGetOption.ForceMode != source.ModeLive {
		t.Errorf("ForceMode = %v, want live", router.lastGetOption.ForceMode)
	}
}

func TestHandleState_BadParams(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil)

	if rec := doRequest(t, s, http.MethodGet, "/state?planet_id=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad planet_id status = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/state?force=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad force status = %d, want 400", rec.Code)
	}
}

func TestHandleState_NoSource(t *testing.T) {
	router := &fakeRouter{stateErr: source.ErrNoSource, mode: source.ModeDisconnected}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodGet, "/state", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var got struct {
		Error       string `json:"error"`
		Remediation string `json:"remediation"`
	}
	decodeResponse(t, rec, &got)
	if got.Remediation == "" {
		t.Error("no-source response carries no remediation")
	}
}

func TestHandleAnalyzeBottlenecks(t *testing.T) {
	st := testFactoryState()
	// Make the single assembler group fully starved.
	st.Planets[1].Assemblers = []state.AssemblerMetrics{
		state.NewAssemblerMetrics(1, 1, 0, 30, true, false),
		state.NewAssemblerMetrics(2, 1, 0, 30, true, false),
	}
	router := &fakeRouter{state: st, mode: source.ModeSnapshot}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/analyze/bottlenecks", `{"planet_id":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		DataSource string `json:"data_source"`
		Report     struct {
			BottlenecksFound int    `json:"bottlenecks_found"`
			Status           string `json:"status"`
		} `json:"report"`
	}
	decodeResponse(t, rec, &got)
	if got.DataSource != "snapshot" {
		t.Errorf("data_source = %q, want snapshot", got.DataSource)
	}
	if got.Report.BottlenecksFound != 1 {
		t.Errorf("bottlenecks_found = %d, want 1", got.Report.BottlenecksFound)
	}
}

func TestHandleAnalyze_RequireLive(t *testing.T) {
	router := &fakeRouter{state: testFactoryState(), mode: source.ModeLive}
	s := newTestServer(t, router, nil)

	rec := doRequest(t, s, http.MethodPost, "/analyze/power", `{"require_live":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if router.lastGetOption.ForceMode != source.ModeLive {
		t.Errorf("ForceMode = %v, want live for require_live", router.lastGetOption.ForceMode)
	}
}

func TestHandleAnalyzeLogistics_BadBody(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil)

	rec := doRequest(t, s, http.MethodPost, "/analyze/logistics", `{"unknown_field":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown field", rec.Code)
	}
}

func TestHandleRecipeChain(t *testing.T) {
	s := newTestServer(t, &fakeRouter{}, nil)

	rec := doRequest(t, s, http.MethodGet, "/recipes/chain?item=magnetic-coil&rate=120", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		ItemName string             `json:"item_name"`
		Chain    []recipe.ChainStep `json:"chain"`
	}
	decodeResponse(t, rec, &got)
	if got.ItemName != "magnetic-coil" {
		t.Errorf("item_name = %q, want magnetic-coil", got.ItemName)
	}
	if len(got.Chain) == 0 {
		t.Error("chain is empty")
	}

	if rec := doRequest(t, s, http.MethodGet, "/recipes/chain?item=unobtainium", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/recipes/chain", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing item status = %d, want 400", rec.Code)
	}
}

func TestHandleSaves(t *testing.T) {
	captures := &fakeCaptures{infos: []snapshot.Info{
		{Name: "evening", Path: "/captures/evening.fcap", Size: 1234},
	}}
	s := newTestServer(t, &fakeRouter{}, captures)

	rec := doRequest(t, s, http.MethodGet, "/saves", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got struct {
		Count    int             `json:"count"`
		Captures []snapshot.Info `json:"captures"`
	}
	decodeResponse(t, rec, &got)
	if got.Count != 1 || got.Captures[0].Name != "evening" {
		t.Errorf("saves = %+v, want the one capture", got)
	}
}

func TestHandleSavesLoad(t *testing.T) {
	captures := &fakeCaptures{state: testFactoryState()}
	s := newTestServer(t, &fakeRouter{}, captures)

	rec := doRequest(t, s, http.MethodPost, "/saves/load", `{"name":"evening","analysis":"full"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if captures.lastLoad != "/captures/evening.fcap" {
		t.Errorf("loaded path = %q, want name resolved against the store dir", captures.lastLoad)
	}

	var got struct {
		DataSource string          `json:"data_source"`
		Production *stateView      `json:"production"`
		Power      json.RawMessage `json:"power"`
		Logistics  json.RawMessage `json:"logistics"`
	}
	decodeResponse(t, rec, &got)
	if got.DataSource != "snapshot" {
		t.Errorf("data_source = %q, want snapshot", got.DataSource)
	}
	if got.Production == nil || len(got.Power) == 0 || len(got.Logistics) == 0 {
		t.Error("full analysis omitted a section")
	}
}

func TestHandleSavesCapture(t *testing.T) {
	router := &fakeRouter{state: testFactoryState(), mode: source.ModeLive}
	captures := &fakeCaptures{}
	s := newTestServer(t, router, captures)

	rec := doRequest(t, s, http.MethodPost, "/saves/capture", `{"name":"before-refactor"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if captures.lastWrite != "/captures/before-refactor.fcap" {
		t.Errorf("wrote %q, want named capture in the store dir", captures.lastWrite)
	}

	var got struct {
		Capture    string `json:"capture"`
		DataSource string `json:"data_source"`
	}
	decodeResponse(t, rec, &got)
	if got.DataSource != "live" {
		t.Errorf("data_source = %q, want live", got.DataSource)
	}
}

func TestHandleSavesCapture_NoSource(t *testing.T) {
	router := &fakeRouter{stateErr: source.ErrNoSource, mode: source.ModeDisconnected}
	s := newTestServer(t, router, &fakeCaptures{})

	rec := doRequest(t, s, http.MethodPost, "/saves/capture", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleSavesCapture_NoDir(t *testing.T) {
	router := &fakeRouter{state: testFactoryState(), mode: source.ModeLive}
	captures := &fakeCaptures{noDir: true}
	s := newTestServer(t, router, captures)

	rec := doRequest(t, s, http.MethodPost, "/saves/capture", `{"name":"orphan"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", rec.Code, rec.Body.String())
	}
	if captures.lastWrite != "" {
		t.Errorf("wrote %q with no capture directory configured", captures.lastWrite)
	}

	var got struct {
		Remediation string `json:"remediation"`
	}
	decodeResponse(t, rec, &got)
	if got.Remediation == "" {
		t.Error("expected remediation text in the error response")
	}
}

func TestHandleSavesLoad_Errors(t *testing.T) {
	captures := &fakeCaptures{loadErr: snapshot.ErrNotFound}
	s := newTestServer(t, &fakeRouter{}, captures)

	rec := doRequest(t, s, http.MethodPost, "/saves/load", `{"path":"/captures/gone.fcap"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing capture status = %d, want 404", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/saves/load", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty request status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/saves/load", `{"name":"x","analysis":"everything"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad analysis status = %d, want 400", rec.Code)
	}
}
