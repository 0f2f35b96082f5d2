package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

const noteColumns = `id, user_id, title, content, is_starred, folder_id, summary, summary_updated_at, created_at, updated_at`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SelectNotes returns the owner's notes matching q, newest update first.
func (db *DB) SelectNotes(ctx context.Context, userID string, q storage.NoteQuery) ([]models.Note, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}

	if q.Starred != nil {
		where = append(where, "is_starred = ?")
		args = append(args, *q.Starred)
	}
	if q.FolderID != "" {
		if !db.validID(q.FolderID) {
			return []models.Note{}, nil
		}
		where = append(where, "folder_id = ?")
		args = append(args, q.FolderID)
	}
	if q.Match != "" {
		pattern := "%" + likeEscaper.Replace(q.Match) + "%"
		where = append(where, db.matchClause())
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + noteColumns + ` FROM notes WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY updated_at DESC, created_at DESC`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	notes := []models.Note{}
	if err := db.conn.SelectContext(ctx, &notes, db.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("sqlstore: select notes: %w", classify(err))
	}
	return notes, nil
}

// matchClause is the case-insensitive substring test over title and content.
func (db *DB) matchClause() string {
	title, content, arg := "title", "content", "?"
	if f := db.dialect.fold; f != "" {
		title = f + "(title)"
		content = f + "(COALESCE(content, ''))"
		arg = f + "(?)"
	}
	return fmt.Sprintf(`(%[2]s %[1]s %[4]s ESCAPE '\' OR %[3]s %[1]s %[4]s ESCAPE '\')`,
		db.dialect.ilike, title, content, arg)
}

// GetNote returns a single note by id and owner.
func (db *DB) GetNote(ctx context.Context, userID, id string) (models.Note, error) {
	if !db.validID(id) {
		return models.Note{}, apperr.ErrNotFound
	}
	var n models.Note
	err := db.conn.GetContext(ctx, &n,
		db.rebind(`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return models.Note{}, fmt.Errorf("sqlstore: get note: %w", classify(err))
	}
	return n, nil
}

// InsertNote creates a note with a generated id and server-assigned timestamps.
func (db *DB) InsertNote(ctx context.Context, userID string, in models.NewNote) (models.Note, error) {
	now := db.timestamp()
	n := models.Note{
		ID:        db.newID(),
		UserID:    userID,
		Title:     in.Title,
		Content:   in.Content,
		IsStarred: in.IsStarred,
		FolderID:  in.FolderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO notes (id, user_id, title, content, is_starred, folder_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		n.ID, n.UserID, n.Title, n.Content, n.IsStarred, n.FolderID, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("sqlstore: insert note: %w", classify(err))
	}
	return n, nil
}

// UpdateNote merges p onto the stored row inside a transaction. updated_at is
// set to the current time but never moves backwards.
func (db *DB) UpdateNote(ctx context.Context, userID, id string, p models.NotePatch) (models.Note, error) {
	if !db.validID(id) {
		return models.Note{}, apperr.ErrNotFound
	}
	var out models.Note
	err := db.withTx(ctx, func(tx *sqlx.Tx) error {
		var cur models.Note
		err := tx.GetContext(ctx, &cur,
			db.rebind(`SELECT `+noteColumns+` FROM notes WHERE id = ? AND user_id = ?`+db.dialect.lockRow), id, userID)
		if err != nil {
			return classify(err)
		}
		if p.IfUpdatedAt != nil && !cur.UpdatedAt.Equal(*p.IfUpdatedAt) {
			return apperr.ErrConflict
		}

		p.Apply(&cur)
		if ts := db.timestamp(); ts.After(cur.UpdatedAt) {
			cur.UpdatedAt = ts
		}

		_, err = tx.ExecContext(ctx, db.rebind(`
			UPDATE notes SET
				title = ?, content = ?, is_starred = ?, folder_id = ?,
				summary = ?, summary_updated_at = ?, updated_at = ?
			WHERE id = ? AND user_id = ?`),
			cur.Title, cur.Content, cur.IsStarred, cur.FolderID,
			cur.Summary, cur.SummaryUpdatedAt, cur.UpdatedAt, id, userID)
		if err != nil {
			return classify(err)
		}
		out = cur
		return nil
	})
	if err != nil {
		return models.Note{}, fmt.Errorf("sqlstore: update note: %w", err)
	}
	return out, nil
}

// DeleteNote removes a note. A missing row is treated as success.
func (db *DB) DeleteNote(ctx context.Context, userID, id string) error {
	if !db.validID(id) {
		return nil
	}
	_, err := db.conn.ExecContext(ctx, db.rebind(`DELETE FROM notes WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete note: %w", classify(err))
	}
	return nil
}
