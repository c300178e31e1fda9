package source

import "fmt"

// Mode identifies which data source served (or would serve) a request.
type Mode string

const (
	// ModeLive serves from the push-based game feed.
	ModeLive Mode = "live"

	// ModeSnapshot serves from a captured snapshot on disk.
	ModeSnapshot Mode = "snapshot"

	// ModeDisconnected means neither source is currently usable.
	ModeDisconnected Mode = "disconnected"
)

// ParseMode converts a string into a selectable Mode. Only live and
// snapshot are valid preferences; disconnected is derived, never set.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeSnapshot:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q (want live or snapshot)", s)
}

// Select picks the best mode from current source signals. It is a pure
// function: a live-but-degraded feed still wins over a snapshot.
func Select(healthy, connected, snapshotAvailable bool) Mode {
	switch {
	case healthy:
		return ModeLive
	case connected:
		return ModeLive
	case snapshotAvailable:
		return ModeSnapshot
	default:
		return ModeDisconnected
	}
}
