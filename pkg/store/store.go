// Package store persists tracked player records in a keyed document
// store, with MongoDB and Postgres backends behind one interface.
package store

import (
	"context"
	"errors"

	"github.com/RuneRubble/rs-proxy/pkg/player"
)

// ErrVersionConflict is returned by Save when another writer updated
// the record since it was loaded. The caller is expected to reload,
// re-merge and save again.
var ErrVersionConflict = errors.New("record version conflict")

// Store is the persistence contract for player records, keyed uniquely
// by lowercase username.
type Store interface {
	// FindByUsername returns the stored record, or nil when the player
	// is unknown.
	FindByUsername(ctx context.Context, username string) (*player.PlayerRecord, error)

	// Save persists the record. The record's Version must match the
	// stored one (0 for a new record); on success the version is
	// advanced, on a lost race ErrVersionConflict is returned and
	// nothing is written.
	Save(ctx context.Context, rec *player.PlayerRecord) error

	// ListActive returns the usernames of all records not marked
	// deleted, in stable order.
	ListActive(ctx context.Context) ([]string, error)

	// MarkInactive soft-deletes the record and reports how many
	// records were modified. Records are never physically removed.
	MarkInactive(ctx context.Context, username string) (int64, error)

	// Close releases the underlying connections.
	Close(ctx context.Context) error
}
