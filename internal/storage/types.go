package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process backend (default; state lost on restart)
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// LedgerRetentionDays bounds the daily send ledger. Entries older than
	// this many days are pruned on write. 0 means the default of 2.
	LedgerRetentionDays int
}

// LedgerDate is the calendar-date key format of the send ledger.
const LedgerDate = "2006-01-02"

// DateKey formats t in the ledger's local-date key format.
func DateKey(t time.Time) string { return t.Format(LedgerDate) }
