package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dysonmetrics/telemetry/internal/state"
)

func testState(tick int64) *state.FactoryState {
	st := state.New(time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC))
	st.GameTick = tick
	planet := state.NewPlanetState(1, "Birch")
	planet.AddProduction("iron-ingot", 60, 30, 500)
	power := state.NewPowerMetrics(120, 90, 80)
	planet.Power = &power
	st.Planets[1] = planet
	return st
}

func TestStore_WriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	path := filepath.Join(dir, "factory"+Extension)
	if err := store.Write(path, testState(42)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	st, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st.GameTick != 42 {
		t.Errorf("GameTick = %d, want 42", st.GameTick)
	}
	planet := st.Planet(1)
	if planet == nil {
		t.Fatal("planet 1 missing after round trip")
	}
	if planet.PlanetName != "Birch" {
		t.Errorf("PlanetName = %q, want Birch", planet.PlanetName)
	}
	metrics, ok := planet.Production["iron-ingot"]
	if !ok {
		t.Fatal("iron-ingot production missing after round trip")
	}
	if metrics.NetRate != 30 {
		t.Errorf("NetRate = %v, want 30", metrics.NetRate)
	}
	if planet.Power == nil || planet.Power.SurplusMW != 30 {
		t.Errorf("Power = %+v, want surplus 30", planet.Power)
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	older := filepath.Join(dir, "older"+Extension)
	newer := filepath.Join(dir, "newer"+Extension)
	if err := store.Write(older, testState(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Write(newer, testState(2)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// ReadDir mtimes need to differ for the ordering to be observable.
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	// A stray non-capture file must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	infos := store.List()
	if len(infos) != 2 {
		t.Fatalf("List returned %d captures, want 2", len(infos))
	}
	if infos[0].Name != "newer" {
		t.Errorf("first capture = %q, want newer", infos[0].Name)
	}
	if infos[1].Name != "older" {
		t.Errorf("second capture = %q, want older", infos[1].Name)
	}
}

func TestStore_LoadLatest(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	older := filepath.Join(dir, "older"+Extension)
	newer := filepath.Join(dir, "newer"+Extension)
	if err := store.Write(older, testState(1)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := store.Write(newer, testState(2)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("Chtimes failed: %v", err)
	}

	st, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest failed: %v", err)
	}
	if st.GameTick != 2 {
		t.Errorf("GameTick = %d, want the newest capture (2)", st.GameTick)
	}
}

func TestStore_LoadLatestEmpty(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	if _, err := store.LoadLatest(); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("LoadLatest on empty dir = %v, want ErrNoSnapshots", err)
	}
}

func TestStore_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, nil)

	if _, err := store.Load(filepath.Join(dir, "missing"+Extension)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load missing file = %v, want ErrNotFound", err)
	}

	if _, err := store.Load(filepath.Join(dir, "wrong.json")); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Load wrong extension = %v, want ErrInvalidFormat", err)
	}

	corrupt := filepath.Join(dir, "corrupt"+Extension)
	if err := os.WriteFile(corrupt, []byte("not zstd at all"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := store.Load(corrupt); !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Load corrupt file = %v, want ErrInvalidFormat", err)
	}
}

func TestStore_WriteRejectsWrongExtension(t *testing.T) {
	store := NewStore(t.TempDir(), nil)
	err := store.Write(filepath.Join(store.Dir(), "state.json"), testState(1))
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("Write wrong extension = %v, want ErrInvalidFormat", err)
	}
}

func TestStore_Unavailable(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "does-not-exist"), nil)

	if store.Available() {
		t.Error("Available = true for missing directory")
	}
	if infos := store.List(); len(infos) != 0 {
		t.Errorf("List returned %d captures for missing directory", len(infos))
	}
	if _, err := store.LoadLatest(); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("LoadLatest = %v, want ErrNoSnapshots", err)
	}
}
