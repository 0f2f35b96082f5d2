// Package notes is the data access layer: it scopes every note and folder
// operation to the session user and translates them into store queries.
package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/session"
	"github.com/starford/folio/internal/storage"
)

// Service exposes the typed note and folder operations.
type Service struct {
	store storage.Provider
}

// NewService creates a new data access service over store.
func NewService(store storage.Provider) *Service {
	return &Service{store: store}
}

// ListNotes returns all notes of the caller, most recently updated first.
func (s *Service) ListNotes(ctx context.Context) ([]models.Note, error) {
	return s.selectNotes(ctx, "list notes", storage.NoteQuery{})
}

// ListStarredNotes returns the caller's starred notes.
func (s *Service) ListStarredNotes(ctx context.Context) ([]models.Note, error) {
	starred := true
	return s.selectNotes(ctx, "list starred notes", storage.NoteQuery{Starred: &starred})
}

// ListRecentNotes returns the ten most recently updated notes.
func (s *Service) ListRecentNotes(ctx context.Context) ([]models.Note, error) {
	return s.selectNotes(ctx, "list recent notes", storage.NoteQuery{Limit: storage.RecentLimit})
}

// SearchNotes matches query case-insensitively against title or content.
// Callers gate empty queries; one that slips through is rejected here.
func (s *Service) SearchNotes(ctx context.Context, query string) ([]models.Note, error) {
	if strings.TrimSpace(query) == "" {
		if _, err := session.UserID(ctx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search query is empty", apperr.ErrInvalidInput)
	}
	return s.selectNotes(ctx, "search notes", storage.NoteQuery{Match: query})
}

// ListNotesByFolder returns the notes assigned to folderID.
func (s *Service) ListNotesByFolder(ctx context.Context, folderID string) ([]models.Note, error) {
	return s.selectNotes(ctx, "list notes by folder", storage.NoteQuery{FolderID: folderID})
}

func (s *Service) selectNotes(ctx context.Context, op string, q storage.NoteQuery) ([]models.Note, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return nil, err
	}
	notes, err := s.store.SelectNotes(ctx, userID, q)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	return notes, nil
}

// GetNote returns one note; ErrNotFound when it is absent or owned by someone else.
func (s *Service) GetNote(ctx context.Context, id string) (models.Note, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return models.Note{}, err
	}
	n, err := s.store.GetNote(ctx, userID, id)
	if err != nil {
		return models.Note{}, apperr.Store("get note", err)
	}
	return n, nil
}

// CreateNote stores a new note for the caller.
func (s *Service) CreateNote(ctx context.Context, in models.NewNote) (models.Note, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return models.Note{}, err
	}
	if err := validateNewNote(in); err != nil {
		return models.Note{}, err
	}
	n, err := s.store.InsertNote(ctx, userID, in)
	if err != nil {
		return models.Note{}, apperr.Store("create note", err)
	}
	return n, nil
}

// UpdateNote merges patch onto the stored note. The store assigns updated_at.
func (s *Service) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return models.Note{}, err
	}
	if err := validatePatch(patch); err != nil {
		return models.Note{}, err
	}
	n, err := s.store.UpdateNote(ctx, userID, id, patch)
	if err != nil {
		return models.Note{}, apperr.Store("update note", err)
	}
	return n, nil
}

// DeleteNote removes a note. Deleting an absent note succeeds.
func (s *Service) DeleteNote(ctx context.Context, id string) error {
	userID, err := session.UserID(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, userID, id); err != nil {
		return apperr.Store("delete note", err)
	}
	return nil
}

// ListFolders returns the caller's folders ordered by name.
func (s *Service) ListFolders(ctx context.Context) ([]models.Folder, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return nil, err
	}
	folders, err := s.store.SelectFolders(ctx, userID)
	if err != nil {
		return nil, apperr.Store("list folders", err)
	}
	return folders, nil
}

// CreateFolder stores a new folder. Names need not be unique.
func (s *Service) CreateFolder(ctx context.Context, name string) (models.Folder, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return models.Folder{}, err
	}
	if err := validateFolderName(name); err != nil {
		return models.Folder{}, err
	}
	f, err := s.store.InsertFolder(ctx, userID, name)
	if err != nil {
		return models.Folder{}, apperr.Store("create folder", err)
	}
	return f, nil
}
