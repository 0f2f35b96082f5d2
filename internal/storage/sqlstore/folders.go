package sqlstore

import (
	"context"
	"fmt"

	"github.com/starford/folio/internal/models"
)

// SelectFolders returns the owner's folders ordered by name.
func (db *DB) SelectFolders(ctx context.Context, userID string) ([]models.Folder, error) {
	folders := []models.Folder{}
	err := db.conn.SelectContext(ctx, &folders, db.rebind(`
		SELECT id, user_id, name, created_at
		FROM folders
		WHERE user_id = ?
		ORDER BY name ASC, created_at ASC`), userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: select folders: %w", classify(err))
	}
	return folders, nil
}

// InsertFolder creates a folder. Duplicate names are allowed.
func (db *DB) InsertFolder(ctx context.Context, userID, name string) (models.Folder, error) {
	f := models.Folder{
		ID:        db.newID(),
		UserID:    userID,
		Name:      name,
		CreatedAt: db.timestamp(),
	}
	_, err := db.conn.ExecContext(ctx, db.rebind(`
		INSERT INTO folders (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`),
		f.ID, f.UserID, f.Name, f.CreatedAt)
	if err != nil {
		return models.Folder{}, fmt.Errorf("sqlstore: insert folder: %w", classify(err))
	}
	return f, nil
}
