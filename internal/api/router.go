package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/folio/internal/notesync"
)

// NewRouter creates a chi router with all API routes mounted.
// A nil verifier disables token auth and every request acts as devUserID.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(coord *notesync.Coordinator, verifier TokenVerifier, devUserID string, sseHandler http.Handler) chi.Router {
	h := NewHandler(coord)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(verifier, devUserID))

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/starred", h.ListStarredNotes)
	r.Get("/notes/recent", h.ListRecentNotes)
	r.Get("/notes/search", h.SearchNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Patch("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Post("/notes/{id}/summary", h.GenerateSummary)

	// Folders.
	r.Get("/folders", h.ListFolders)
	r.Post("/folders", h.CreateFolder)
	r.Get("/folders/{id}/notes", h.ListFolderNotes)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
