package mcpserver

const noteSchemaURI = "folio://note-schema"

// NoteSchema describes the note fields and update rules for LLM consumers.
const NoteSchema = `# Folio Note Schema

A note belongs to exactly one user and has these fields:

| Field                | Type              | Notes                                        |
|----------------------|-------------------|----------------------------------------------|
| id                   | string            | Assigned on creation                         |
| title                | string            | Up to 500 characters                         |
| content              | string or null    | Plain text or Markdown                       |
| is_starred           | boolean           | false on creation unless set                 |
| folder_id            | string or null    | Must reference one of your folders           |
| summary              | string or null    | Written by summarize_note                    |
| summary_updated_at   | timestamp or null | When the summary was generated               |
| created_at           | timestamp         | Assigned on creation                         |
| updated_at           | timestamp         | Set on every change, never moves backwards   |

## Rules

1. Listings are ordered by updated_at, newest first. "recent" returns at most ten notes.
2. Updates only change the fields you pass. Concurrent edits are last-write-wins.
3. Search is a case-insensitive substring match over title and content. The query must not be empty.
4. Folder names are not unique; refer to folders by id.
5. Deleting is permanent. Deleting a note that does not exist is not an error.
6. summarize_note saves the summary only when the model produced text.
`
