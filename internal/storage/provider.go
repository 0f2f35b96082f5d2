// Package storage defines the query contract of the remote data store that
// holds notes and folders. Every call is scoped to one owner.
package storage

import (
	"context"

	"github.com/starford/folio/internal/models"
)

// RecentLimit is the number of notes returned by the recent-notes query.
const RecentLimit = 10

// NoteQuery selects notes of one owner. Results are always ordered by
// updated_at descending.
type NoteQuery struct {
	// Starred, when non-nil, filters on is_starred.
	Starred *bool
	// FolderID, when non-empty, filters on folder_id equality.
	FolderID string
	// Match, when non-empty, is a case-insensitive substring matched
	// against title OR content.
	Match string
	// Limit caps the result size; zero means no limit.
	Limit int
}

// Provider is the interface of the remote data store.
//
// Implementations return apperr.ErrNotFound when no row matches id and owner,
// and apperr.ErrInvalidInput when a folder reference does not resolve.
type Provider interface {
	// SelectNotes returns the owner's notes matching q.
	SelectNotes(ctx context.Context, userID string, q NoteQuery) ([]models.Note, error)
	// GetNote returns a single note by id.
	GetNote(ctx context.Context, userID, id string) (models.Note, error)
	// InsertNote creates a note and returns the stored row.
	InsertNote(ctx context.Context, userID string, n models.NewNote) (models.Note, error)
	// UpdateNote merges p onto the stored note, stamps updated_at and returns the stored row.
	UpdateNote(ctx context.Context, userID, id string, p models.NotePatch) (models.Note, error)
	// DeleteNote removes a note. Deleting an absent note is not an error.
	DeleteNote(ctx context.Context, userID, id string) error
	// SelectFolders returns the owner's folders ordered by name ascending.
	SelectFolders(ctx context.Context, userID string) ([]models.Folder, error)
	// InsertFolder creates a folder.
	InsertFolder(ctx context.Context, userID, name string) (models.Folder, error)
	// Ping checks connectivity.
	Ping(ctx context.Context) error
	// Close releases the underlying connection pool.
	Close() error
}
