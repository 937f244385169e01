/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package store persists rooms, their players and archived stories, and
// notifies listeners whenever a room changes.
package store

import (
	"context"

	"github.com/Seednode/sizewise/poker"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrExists   = errors.New("room already exists")
)

// Event is delivered to subscribers after every write to a room. Deleted is
// set once the room and its players are gone; Snapshot is then empty.
type Event struct {
	RoomID   string
	Snapshot poker.Snapshot
	Deleted  bool
}

type Store interface {
	// Create stores a new room with its host as the only player. It fails
	// with ErrExists if the ID has ever been used.
	Create(ctx context.Context, room poker.Room, host poker.Player) error

	Load(ctx context.Context, roomID string) (poker.Snapshot, error)

	// Update applies fn to a copy of the room and writes the result back
	// atomically. Nothing is written if fn returns an error. Stories are
	// append-only: only stories fn appends are persisted.
	Update(ctx context.Context, roomID string, fn func(*poker.Snapshot) error) error

	// Delete removes the room and its players. Archived stories are kept.
	Delete(ctx context.Context, roomID string) error

	// Subscribe delivers the current snapshot followed by one event per
	// change, until ctx is done. The channel is closed afterwards.
	Subscribe(ctx context.Context, roomID string) (<-chan Event, error)

	AddFeedback(ctx context.Context, f poker.Feedback) error

	Close() error
}

// appended returns the stories fn added on top of the ones that were loaded.
func appended(before int, after []poker.Story) []poker.Story {
	if len(after) <= before {
		return nil
	}
	return after[before:]
}
