// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Folio note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/notesync"
	"github.com/starford/folio/internal/session"
)

// Server wraps the MCP server with Folio tools. Every tool acts as one
// configured user.
type Server struct {
	mcp    *server.MCPServer
	coord  *notesync.Coordinator
	userID string
}

// New creates a new MCP server with all Folio tools registered.
func New(coord *notesync.Coordinator, userID string) *Server {
	s := &Server{coord: coord, userID: userID}

	s.mcp = server.NewMCPServer(
		"Folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first. "+
			"Optionally restrict to a folder, to starred notes, or to the ten most recent."),
		mcp.WithString("folder_id", mcp.Description("Only notes in this folder")),
		mcp.WithString("filter", mcp.Description("Optional filter"), mcp.Enum("starred", "recent")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search over note titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with its content and summary."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. See the folio://note-schema resource for the fields."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
		mcp.WithString("folder_id", mcp.Description("Folder to file the note in")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Change the title, content or folder of a note. Omitted fields are kept."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New content")),
		mcp.WithString("folder_id", mcp.Description("Move the note to this folder; an empty string removes it from its folder")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("star_note",
		mcp.WithDescription("Star or unstar a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
		mcp.WithBoolean("starred", mcp.Description("Defaults to true")),
	), s.starNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Permanently delete a note. Deleting a missing note succeeds."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List folders ordered by name."),
	), s.listFolders)

	s.mcp.AddTool(mcp.NewTool("create_folder",
		mcp.WithDescription("Create a folder. Names do not have to be unique."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Folder name")),
	), s.createFolder)

	s.mcp.AddTool(mcp.NewTool("summarize_note",
		mcp.WithDescription("Generate an AI summary of a note and save it on the note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note ID")),
		mcp.WithString("prompt", mcp.Description("Instruction replacing the default summary prompt")),
	), s.summarizeNote)

	s.mcp.AddResource(
		mcp.NewResource(noteSchemaURI, "Note Schema",
			mcp.WithResourceDescription("Fields of a Folio note and how updates are applied."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteSchemaResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) userCtx(ctx context.Context) context.Context {
	return session.NewContext(ctx, session.Session{UserID: s.userID})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error) (*mcp.CallToolResult, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found"), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = s.userCtx(ctx)
	var (
		notes []models.Note
		err   error
	)
	switch folder, filter := req.GetString("folder_id", ""), req.GetString("filter", ""); {
	case folder != "":
		notes, err = s.coord.ListNotesByFolder(ctx, folder)
	case filter == "starred":
		notes, err = s.coord.ListStarredNotes(ctx)
	case filter == "recent":
		notes, err = s.coord.ListRecentNotes(ctx)
	case filter == "":
		notes, err = s.coord.ListNotes(ctx)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown filter: %s", filter)), nil
	}
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(summaries(notes))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	notes, err := s.coord.SearchNotes(s.userCtx(ctx), query)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(summaries(notes))
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.coord.GetNote(s.userCtx(ctx), id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(n)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := models.NewNote{Title: title}
	if c := req.GetString("content", ""); c != "" {
		in.Content = &c
	}
	if f := req.GetString("folder_id", ""); f != "" {
		in.FolderID = &f
	}
	n, err := s.coord.CreateNote(s.userCtx(ctx), in)
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	var patch models.NotePatch
	if _, ok := args["title"]; ok {
		patch.Title = models.Some(req.GetString("title", ""))
	}
	if _, ok := args["content"]; ok {
		c := req.GetString("content", "")
		patch.Content = models.Some(&c)
	}
	if _, ok := args["folder_id"]; ok {
		var folder *string
		if f := req.GetString("folder_id", ""); f != "" {
			folder = &f
		}
		patch.FolderID = models.Some(folder)
	}
	n, err := s.coord.UpdateNote(s.userCtx(ctx), id, patch)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(n)
}

func (s *Server) starNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	starred := req.GetBool("starred", true)
	if _, err := s.coord.UpdateNote(s.userCtx(ctx), id, models.NotePatch{IsStarred: models.Some(starred)}); err != nil {
		return errorResult(err)
	}
	if starred {
		return mcp.NewToolResultText(fmt.Sprintf("starred: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unstarred: %s", id)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.coord.DeleteNote(s.userCtx(ctx), id); err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", id)), nil
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.coord.ListFolders(s.userCtx(ctx))
	if err != nil {
		return errorResult(err)
	}
	if folders == nil {
		folders = []models.Folder{}
	}
	return jsonResult(folders)
}

func (s *Server) createFolder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.coord.CreateFolder(s.userCtx(ctx), name)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(f)
}

func (s *Server) summarizeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, err := s.coord.GenerateSummary(s.userCtx(ctx), id, notesync.SummaryRequest{Prompt: req.GetString("prompt", "")})
	if err != nil {
		var pe *apperr.SummaryPersistError
		if errors.As(err, &pe) {
			return mcp.NewToolResultError(fmt.Sprintf("summary generated but not saved: %v\n\n%s", pe.Err, pe.Summary)), nil
		}
		return errorResult(err)
	}
	if !out.Generated {
		return mcp.NewToolResultText("the model returned no summary"), nil
	}
	return mcp.NewToolResultText(out.Summary), nil
}

// noteSummary is the compact listing form of a note.
type noteSummary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	IsStarred bool    `json:"is_starred"`
	FolderID  *string `json:"folder_id,omitempty"`
	UpdatedAt string  `json:"updated_at"`
}

func summaries(notes []models.Note) []noteSummary {
	out := make([]noteSummary, len(notes))
	for i, n := range notes {
		out[i] = noteSummary{
			ID:        n.ID,
			Title:     n.Title,
			IsStarred: n.IsStarred,
			FolderID:  n.FolderID,
			UpdatedAt: n.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	return out
}

func (s *Server) readNoteSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      noteSchemaURI,
			MIMEType: "text/markdown",
			Text:     NoteSchema,
		},
	}, nil
}
