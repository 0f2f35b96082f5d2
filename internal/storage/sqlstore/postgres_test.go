package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/storage"
)

const (
	noteID   = "6f1c2a0e-8d1b-4c7e-9f2a-1b2c3d4e5f60"
	folderID = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
)

func newPostgresWithMock(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	db, err := New(sqlx.NewDb(conn, DriverPostgres),
		WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }),
		WithIDGenerator(func() string { return noteID }),
	)
	if err != nil {
		t.Fatal(err)
	}
	return db, mock
}

func noteRows() *sqlmock.Rows {
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "user_id", "title", "content", "is_starred", "folder_id",
		"summary", "summary_updated_at", "created_at", "updated_at",
	}).AddRow(noteID, "u1", "Hello", "world", false, nil, nil, nil, ts, ts)
}

func TestPostgres_SearchUsesILikeAndDollarPlaceholders(t *testing.T) {
	db, mock := newPostgresWithMock(t)

	q := `SELECT .* FROM notes WHERE user_id = \$1 AND \(title ILIKE \$2 ESCAPE '\\' OR content ILIKE \$3 ESCAPE '\\'\) ` +
		`ORDER BY updated_at DESC, created_at DESC$`
	mock.ExpectQuery(q).
		WithArgs("u1", `%50\%%`, `%50\%%`).
		WillReturnRows(noteRows())

	notes, err := db.SelectNotes(context.Background(), "u1", storage.NoteQuery{Match: "50%"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 {
		t.Fatalf("len = %d, want 1", len(notes))
	}
	if got := notes[0].ContentText(); got != "world" {
		t.Errorf("content = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_RecentAppliesLimit(t *testing.T) {
	db, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM notes WHERE user_id = \$1 ORDER BY updated_at DESC, created_at DESC LIMIT \$2`).
		WithArgs("u1", storage.RecentLimit).
		WillReturnRows(noteRows())

	_, err := db.SelectNotes(context.Background(), "u1", storage.NoteQuery{Limit: storage.RecentLimit})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_StarredAndFolderFilters(t *testing.T) {
	db, mock := newPostgresWithMock(t)
	yes := true

	mock.ExpectQuery(`WHERE user_id = \$1 AND is_starred = \$2 AND folder_id = \$3 ORDER BY`).
		WithArgs("u1", true, folderID).
		WillReturnRows(noteRows())

	_, err := db.SelectNotes(context.Background(), "u1", storage.NoteQuery{Starred: &yes, FolderID: folderID})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_MalformedIDNeverQueries(t *testing.T) {
	db, mock := newPostgresWithMock(t)
	ctx := context.Background()

	_, err := db.GetNote(ctx, "u1", "not-a-uuid")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, apperr.ErrNotFound)
	}

	if err := db.DeleteNote(ctx, "u1", "not-a-uuid"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}

	notes, err := db.SelectNotes(ctx, "u1", storage.NoteQuery{FolderID: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Errorf("notes = %+v, want none", notes)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_GetNoteNoRows(t *testing.T) {
	db, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`FROM notes WHERE id = \$1 AND user_id = \$2`).
		WithArgs(noteID, "u2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := db.GetNote(context.Background(), "u2", noteID)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, apperr.ErrNotFound)
	}
}

func TestPostgres_InsertForeignKeyViolation(t *testing.T) {
	db, mock := newPostgresWithMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO notes`)).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Message: "violates foreign key"})

	fid := folderID
	_, err := db.InsertNote(context.Background(), "u1", models.NewNote{Title: "t", FolderID: &fid})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want %v", err, apperr.ErrInvalidInput)
	}
}

func TestPostgres_UpdateLocksRow(t *testing.T) {
	db, mock := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM notes WHERE id = \$1 AND user_id = \$2 FOR UPDATE`).
		WithArgs(noteID, "u1").
		WillReturnRows(noteRows())
	mock.ExpectExec(`UPDATE notes SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := db.UpdateNote(context.Background(), "u1", noteID, models.NotePatch{IsStarred: models.Some(true)})
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsStarred {
		t.Error("note should be starred")
	}
	if got.Title != "Hello" {
		t.Errorf("title = %q", got.Title)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgres_UpdateRollsBackOnConflict(t *testing.T) {
	db, mock := newPostgresWithMock(t)
	stale := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(noteID, "u1").WillReturnRows(noteRows())
	mock.ExpectRollback()

	_, err := db.UpdateNote(context.Background(), "u1", noteID, models.NotePatch{
		Title:       models.Some("x"),
		IfUpdatedAt: &stale,
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, apperr.ErrConflict)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
