package journal

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

// Config configures the journal.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", the journal is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Entry records one executed task.
// Keep it compact and schema-stable.
type Entry struct {
	At          time.Time
	Limiter     string
	Priority    bool
	QueuedAt    time.Time
	WaitMS      int64
	WindowCount int
}

// ResetEntry records a quota window rollover for a burst limiter.
type ResetEntry struct {
	At           time.Time
	Limiter      string
	RequestsMade int
}
