package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/notesync"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	coord *notesync.Coordinator
}

// NewHandler creates a new Handler.
func NewHandler(coord *notesync.Coordinator) *Handler {
	return &Handler{coord: coord}
}

// etag renders the version of a note for ETag/If-Match.
func etag(n models.Note) string {
	return `"` + n.UpdatedAt.UTC().Format(time.RFC3339Nano) + `"`
}

// ifMatch parses an If-Match header produced from etag. "*" and an absent
// header mean unconditional.
func ifMatch(r *http.Request) (*time.Time, error) {
	v := strings.TrimSpace(r.Header.Get("If-Match"))
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	if v == "" || v == "*" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("invalid If-Match header: %w", err)
	}
	return &t, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, most recently updated first
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Failure		401	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.coord.ListNotes(r.Context())
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(notes))
}

// ListStarredNotes handles GET /api/notes/starred.
//
//	@Summary		List starred notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/starred [get]
func (h *Handler) ListStarredNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.coord.ListStarredNotes(r.Context())
	if err != nil {
		writeError(w, "list starred notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(notes))
}

// ListRecentNotes handles GET /api/notes/recent.
//
//	@Summary		List the ten most recently updated notes
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes/recent [get]
func (h *Handler) ListRecentNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.coord.ListRecentNotes(r.Context())
	if err != nil {
		writeError(w, "list recent notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(notes))
}

// SearchNotes handles GET /api/notes/search.
//
//	@Summary		Case-insensitive search over title and content
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	true	"Search query"
//	@Success		200	{object}	NoteListResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/search [get]
func (h *Handler) SearchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	notes, err := h.coord.SearchNotes(r.Context(), q)
	if err != nil {
		writeError(w, "search notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(notes))
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note ID"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	n, err := h.coord.GetNote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusOK, n)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.coord.CreateNote(r.Context(), req)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Patch a note, optionally conditional on its version
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note ID"
//	@Param			If-Match	header		string				false	"ETag of the note version being edited"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	models.Note
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	version, err := ifMatch(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var patch UpdateNoteRequest
	if !decodeJSON(w, r, &patch) {
		return
	}
	patch.IfUpdatedAt = version

	n, err := h.coord.UpdateNote(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	w.Header().Set("ETag", etag(n))
	writeJSON(w, http.StatusOK, n)
}

// DeleteNote handles DELETE /api/notes/{id}. Deleting an absent note succeeds.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note ID"
//	@Success		204	"Note deleted"
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.DeleteNote(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete note", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateSummary handles POST /api/notes/{id}/summary.
//
//	@Summary		Generate and save an AI summary of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note ID"
//	@Param			body	body		SummaryRequest	false	"Optional content override and prompt"
//	@Success		200		{object}	SummaryResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/summary [post]
func (h *Handler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	out, err := h.coord.GenerateSummary(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, "generate summary", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListFolders handles GET /api/folders.
//
//	@Summary		List folders ordered by name
//	@Tags			folders
//	@Produce		json
//	@Success		200	{object}	FolderListResponse
//	@Security		BearerAuth
//	@Router			/folders [get]
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.coord.ListFolders(r.Context())
	if err != nil {
		writeError(w, "list folders", err)
		return
	}
	writeJSON(w, http.StatusOK, folderList(folders))
}

// CreateFolder handles POST /api/folders.
//
//	@Summary		Create a folder
//	@Tags			folders
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFolderRequest	true	"Folder to create"
//	@Success		201		{object}	models.Folder
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/folders [post]
func (h *Handler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	var req CreateFolderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	f, err := h.coord.CreateFolder(r.Context(), req.Name)
	if err != nil {
		writeError(w, "create folder", err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// ListFolderNotes handles GET /api/folders/{id}/notes.
//
//	@Summary		List the notes in a folder
//	@Tags			folders
//	@Produce		json
//	@Param			id	path		string	true	"Folder ID"
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/folders/{id}/notes [get]
func (h *Handler) ListFolderNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.coord.ListNotesByFolder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "list folder notes", err)
		return
	}
	writeJSON(w, http.StatusOK, noteList(notes))
}
