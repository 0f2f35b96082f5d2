package notesync

import (
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/querycache"
)

// Mutation names. They label metrics, notifications and the mutation state
// entries kept in each user cache.
const (
	OpCreateNote   = "create-note"
	OpUpdateNote   = "update-note"
	OpDeleteNote   = "delete-note"
	OpCreateFolder = "create-folder"
	OpSummarize    = "summarize-note"
)

// NotesKey is the key of the full note list.
func NotesKey() querycache.Key { return querycache.NewKey("notes") }

// NoteKey is the key of one note.
func NoteKey(id string) querycache.Key { return querycache.NewKey("notes", id) }

// StarredKey is the key of the starred note list.
func StarredKey() querycache.Key { return querycache.NewKey("notes", "starred") }

// RecentKey is the key of the recent note list.
func RecentKey() querycache.Key { return querycache.NewKey("notes", "recent") }

// SearchKey is the key of the results for query q.
func SearchKey(q string) querycache.Key { return querycache.NewKey("notes", "search", q) }

// FolderNotesKey is the key of the notes in folder id.
func FolderNotesKey(id string) querycache.Key { return querycache.NewKey("notes", "folder", id) }

// FoldersKey is the key of the folder list.
func FoldersKey() querycache.Key { return querycache.NewKey("folders") }

// MutationKey holds the outcome of the last mutation named op.
func MutationKey(op string) querycache.Key { return querycache.NewKey("mutations", op) }

// Change describes a successful mutation.
type Change struct {
	Op string
	// Note is the note returned by a note mutation; for deletes only ID is set.
	Note models.Note
	// Patch is the applied patch of an update.
	Patch models.NotePatch
}

// Invalidations returns the keys to mark stale after c succeeded. Keys are
// prefixes: NotesKey also covers every per-note and filtered notes query.
func Invalidations(c Change) []querycache.Key {
	switch c.Op {
	case OpCreateNote:
		return []querycache.Key{NotesKey()}

	case OpUpdateNote, OpSummarize:
		keys := []querycache.Key{NotesKey(), NoteKey(c.Note.ID)}
		if c.Note.IsStarred || c.Patch.IsStarred.Set {
			keys = append(keys, StarredKey())
		}
		keys = append(keys, RecentKey())
		if c.Note.FolderID != nil {
			keys = append(keys, FolderNotesKey(*c.Note.FolderID))
		}
		return keys

	case OpDeleteNote:
		return []querycache.Key{NotesKey(), StarredKey(), RecentKey()}

	case OpCreateFolder:
		return []querycache.Key{FoldersKey()}
	}
	return nil
}
