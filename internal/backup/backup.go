// Package backup implements a snapshot-and-restore contract per storage
// backend, existing so a failed re-embed is recoverable. It is
// deliberately thin — not the core of the system — and defers the
// actual snapshot mechanics to each backend's native tooling (a
// directory copy for the embedded chromem-go store, Qdrant's snapshot
// API for the server store).
package backup

import (
	"context"
	"time"
)

// Snapshot describes a completed backup.
type Snapshot struct {
	// Ref identifies the snapshot to a later Restore call: a filesystem
	// path for the embedded backend, a Qdrant snapshot name for the
	// server backend.
	Ref       string
	CreatedAt time.Time
}

// Backend is implemented by each storage backend's backup strategy.
type Backend interface {
	// Snapshot creates a new backup and returns its reference.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Restore replaces the live store's contents with the snapshot
	// identified by ref. ServerBackend's Restore performs no restore and
	// returns an error describing the manual recovery step. Callers must
	// not run concurrent writes during a restore.
	Restore(ctx context.Context, ref string) error
}
