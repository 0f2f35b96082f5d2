package api

import (
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/notesync"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest = models.NewNote

// UpdateNoteRequest is the request body for patching a note. Absent fields are
// left unchanged; "folder_id": null removes the note from its folder.
type UpdateNoteRequest = models.NotePatch

// CreateFolderRequest is the request body for creating a folder.
type CreateFolderRequest struct {
	Name string `json:"name" example:"Work" validate:"required"`
}

// SummaryRequest is the request body for generating a note summary.
type SummaryRequest = notesync.SummaryRequest

// SummaryResponse is returned by the summary endpoint.
type SummaryResponse = notesync.SummaryOutcome

// NoteListResponse wraps note listings.
type NoteListResponse struct {
	Notes []models.Note `json:"notes" validate:"required"`
}

// FolderListResponse wraps folder listings.
type FolderListResponse struct {
	Folders []models.Folder `json:"folders" validate:"required"`
}

func noteList(notes []models.Note) NoteListResponse {
	if notes == nil {
		notes = []models.Note{}
	}
	return NoteListResponse{Notes: notes}
}

func folderList(folders []models.Folder) FolderListResponse {
	if folders == nil {
		folders = []models.Folder{}
	}
	return FolderListResponse{Folders: folders}
}
