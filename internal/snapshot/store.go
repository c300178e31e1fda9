// Package snapshot implements the static data source: factory state
// captures written to disk by the game plugin (or by the daemon on
// demand), used when the live feed is unavailable.
//
// A capture is a zstd-compressed JSON document with the same shape as
// a decoded factory state, stored with the .fcap extension.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/dysonmetrics/telemetry/internal/state"
)

// Capture file extension.
const Extension = ".fcap"

var (
	ErrNoSnapshots   = errors.New("no snapshot captures found")
	ErrNotFound      = errors.New("snapshot capture not found")
	ErrInvalidFormat = errors.New("invalid snapshot capture format")
)

// Info describes one capture file.
type Info struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Size     int64     `json:"size_bytes"`
	Modified time.Time `json:"modified"`
}

// Store reads and writes capture files under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates a store rooted at dir. An empty dir triggers
// auto-detection of the game's default capture location; if nothing is
// found the store reports unavailable.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		dir = detectCaptureDir(logger)
	}
	return &Store{dir: dir, logger: logger}
}

// detectCaptureDir probes the game's default capture directories.
func detectCaptureDir(logger *slog.Logger) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	candidates := []string{
		filepath.Join(home, "Documents", "Dyson Sphere Program", "Capture"),
		filepath.Join(home, ".config", "unity3d", "Youthcat Studio", "Dyson Sphere Program", "Capture"),
	}
	for _, dir := range candidates {
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			logger.Info("found capture directory", "dir", dir)
			return dir
		}
	}

	logger.Warn("capture directory not found")
	return ""
}

// Dir returns the capture directory, empty if unavailable.
func (s *Store) Dir() string {
	return s.dir
}

// Available reports whether the capture directory exists.
func (s *Store) Available() bool {
	if s.dir == "" {
		return false
	}
	fi, err := os.Stat(s.dir)
	return err == nil && fi.IsDir()
}

// List returns all captures, newest first. An unavailable directory
// yields an empty list, not an error.
func (s *Store) List() []Info {
	if !s.Available() {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("could not read capture directory", "dir", s.dir, "error", err)
		return nil
	}

	var infos []Info
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), Extension) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:     strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:     filepath.Join(s.dir, entry.Name()),
			Size:     fi.Size(),
			Modified: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Modified.After(infos[j].Modified)
	})
	return infos
}

// LoadLatest loads the most recently modified capture.
func (s *Store) LoadLatest() (*state.FactoryState, error) {
	infos := s.List()
	if len(infos) == 0 {
		return nil, ErrNoSnapshots
	}
	return s.Load(infos[0].Path)
}

// Load reads and decodes a specific capture file.
func (s *Store) Load(path string) (*state.FactoryState, error) {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return nil, fmt.Errorf("%w: expected %s file, got %q", ErrInvalidFormat, Extension, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var st state.FactoryState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if st.Planets == nil {
		st.Planets = make(map[int]*state.PlanetState)
	}

	s.logger.Info("loaded capture",
		"path", path,
		"planets", len(st.Planets),
	)
	return &st, nil
}

// Write stores a factory state as a capture file. The path must carry
// the capture extension; parent directories are created as needed.
func (s *Store) Write(path string, st *state.FactoryState) error {
	if !strings.EqualFold(filepath.Ext(path), Extension) {
		return fmt.Errorf("%w: expected %s file, got %q", ErrInvalidFormat, Extension, filepath.Ext(path))
	}

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode capture: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create capture directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create capture: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("compress capture: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return fmt.Errorf("write capture: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("flush capture: %w", err)
	}

	s.logger.Info("wrote capture", "path", path, "bytes", len(data))
	return nil
}
