// Package models defines the domain types for Folio.
package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Note is a single user-owned note row.
type Note struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	Title            string     `json:"title" db:"title"`
	Content          *string    `json:"content" db:"content"`
	IsStarred        bool       `json:"is_starred" db:"is_starred"`
	FolderID         *string    `json:"folder_id" db:"folder_id"`
	Summary          *string    `json:"summary" db:"summary"`
	SummaryUpdatedAt *time.Time `json:"summary_updated_at" db:"summary_updated_at"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// ContentText returns the note content or an empty string.
func (n Note) ContentText() string {
	if n.Content == nil {
		return ""
	}
	return *n.Content
}

// Folder groups notes. Names are not unique.
type Folder struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewNote holds the caller-supplied fields of a note being created.
// Identity, ownership and timestamps are assigned by the store.
type NewNote struct {
	Title     string  `json:"title"`
	Content   *string `json:"content"`
	IsStarred bool    `json:"is_starred"`
	FolderID  *string `json:"folder_id"`
}

// NotePatch enumerates the updatable note fields. Unset fields are left as stored.
type NotePatch struct {
	Title            Optional[string]     `json:"title"`
	Content          Optional[*string]    `json:"content"`
	IsStarred        Optional[bool]       `json:"is_starred"`
	FolderID         Optional[*string]    `json:"folder_id"`
	Summary          Optional[*string]    `json:"summary"`
	SummaryUpdatedAt Optional[*time.Time] `json:"summary_updated_at"`

	// IfUpdatedAt, when non-nil, makes the update conditional on the stored
	// updated_at being equal to it.
	IfUpdatedAt *time.Time `json:"-"`
}

// Empty reports whether no field is set.
func (p NotePatch) Empty() bool {
	return !p.Title.Set && !p.Content.Set && !p.IsStarred.Set &&
		!p.FolderID.Set && !p.Summary.Set && !p.SummaryUpdatedAt.Set
}

// Apply merges the set fields of p onto n.
func (p NotePatch) Apply(n *Note) {
	if p.Title.Set {
		n.Title = p.Title.Value
	}
	if p.Content.Set {
		n.Content = p.Content.Value
	}
	if p.IsStarred.Set {
		n.IsStarred = p.IsStarred.Value
	}
	if p.FolderID.Set {
		n.FolderID = p.FolderID.Value
	}
	if p.Summary.Set {
		n.Summary = p.Summary.Value
	}
	if p.SummaryUpdatedAt.Set {
		n.SummaryUpdatedAt = p.SummaryUpdatedAt.Value
	}
}

// Optional distinguishes "not provided" from a provided zero or null value.
// In JSON an absent key leaves Set false; an explicit null sets it with the
// zero Value and Null true.
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		var zero T
		o.Value = zero
		o.Null = true
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON implements json.Marshaler.
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }
