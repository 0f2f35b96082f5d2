// Package notesync serves note and folder queries from a per-user query cache
// and runs mutations through the data access layer, invalidating the affected
// cache keys only after a mutation succeeds.
package notesync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/metrics"
	"github.com/starford/folio/internal/models"
	"github.com/starford/folio/internal/querycache"
	"github.com/starford/folio/internal/session"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/summarize"
)

// DataAccess is the typed note and folder API the coordinator drives.
// Implemented by *notes.Service.
type DataAccess interface {
	ListNotes(ctx context.Context) ([]models.Note, error)
	GetNote(ctx context.Context, id string) (models.Note, error)
	CreateNote(ctx context.Context, in models.NewNote) (models.Note, error)
	UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error)
	DeleteNote(ctx context.Context, id string) error
	ListStarredNotes(ctx context.Context) ([]models.Note, error)
	ListRecentNotes(ctx context.Context) ([]models.Note, error)
	SearchNotes(ctx context.Context, query string) ([]models.Note, error)
	ListNotesByFolder(ctx context.Context, folderID string) ([]models.Note, error)
	ListFolders(ctx context.Context) ([]models.Folder, error)
	CreateFolder(ctx context.Context, name string) (models.Folder, error)
}

// Publisher delivers notifications to a user's connected clients.
// Implemented by *sse.Broker.
type Publisher interface {
	Publish(ev sse.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event) {}

// Coordinator owns one query cache per user.
type Coordinator struct {
	dal        DataAccess
	summarizer summarize.Summarizer
	publisher  Publisher
	logger     *slog.Logger
	now        func() time.Time
	cacheOpts  []querycache.Option
	idleTTL    time.Duration

	mu     sync.Mutex
	caches map[string]*userCache
}

type userCache struct {
	qc     *querycache.Cache
	usedAt time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPublisher sets where invalidation and failure notifications go.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithSummarizer enables GenerateSummary.
func WithSummarizer(s summarize.Summarizer) Option {
	return func(c *Coordinator) { c.summarizer = s }
}

// WithLogger sets the coordinator logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithCacheOptions configures every per-user cache.
func WithCacheOptions(opts ...querycache.Option) Option {
	return func(c *Coordinator) { c.cacheOpts = append(c.cacheOpts, opts...) }
}

// WithClock overrides time.Now for the coordinator and its caches.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
		c.cacheOpts = append(c.cacheOpts, querycache.WithClock(now))
	}
}

// WithIdleTTL lets Sweep drop the cache of a user that has made no request
// for longer than d. Zero keeps user caches until Forget.
func WithIdleTTL(d time.Duration) Option {
	return func(c *Coordinator) { c.idleTTL = d }
}

// New creates a Coordinator over dal.
func New(dal DataAccess, opts ...Option) *Coordinator {
	c := &Coordinator{
		dal:       dal,
		publisher: nopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
		caches:    make(map[string]*userCache),
	}
	for _, o := range opts {
		o(c)
	}
	c.cacheOpts = append(c.cacheOpts, querycache.WithLogger(c.logger))
	return c
}

// cache returns the cache of the session user, or ErrUnauthenticated.
func (c *Coordinator) cache(ctx context.Context) (string, *querycache.Cache, error) {
	userID, err := session.UserID(ctx)
	if err != nil {
		return "", nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	uc, ok := c.caches[userID]
	if !ok {
		uc = &userCache{qc: querycache.New(c.cacheOpts...)}
		c.caches[userID] = uc
	}
	uc.usedAt = c.now()
	return userID, uc.qc, nil
}

// Forget drops the cache of userID, e.g. when its session ends.
func (c *Coordinator) Forget(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.caches, userID)
}

// Sweep drops the caches of users idle for longer than the WithIdleTTL
// duration and removes unused entries from the rest. A cache with a fetch
// in progress is never dropped.
func (c *Coordinator) Sweep() (users, entries int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, uc := range c.caches {
		if c.idleTTL > 0 && now.Sub(uc.usedAt) > c.idleTTL && !uc.qc.Busy() {
			delete(c.caches, id)
			users++
			continue
		}
		entries += uc.qc.Sweep()
	}
	metrics.CacheUsers.Set(float64(len(c.caches)))
	if users > 0 || entries > 0 {
		c.logger.Debug("notesync: sweep", slog.Int("users", users), slog.Int("entries", entries))
	}
	return users, entries
}

// RunJanitor calls Sweep every interval until ctx is done.
func (c *Coordinator) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Peek returns the state of key in the session user's cache without fetching.
func (c *Coordinator) Peek(ctx context.Context, key querycache.Key) (querycache.Snapshot, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return querycache.Snapshot{}, err
	}
	return qc.Peek(key), nil
}

// ListNotes serves NotesKey.
func (c *Coordinator) ListNotes(ctx context.Context) ([]models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, qc, NotesKey(), c.dal.ListNotes)
}

// GetNote serves NoteKey(id).
func (c *Coordinator) GetNote(ctx context.Context, id string) (models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return models.Note{}, err
	}
	return querycache.Fetch(ctx, qc, NoteKey(id), func(ctx context.Context) (models.Note, error) {
		return c.dal.GetNote(ctx, id)
	})
}

// ListStarredNotes serves StarredKey.
func (c *Coordinator) ListStarredNotes(ctx context.Context) ([]models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, qc, StarredKey(), c.dal.ListStarredNotes)
}

// ListRecentNotes serves RecentKey.
func (c *Coordinator) ListRecentNotes(ctx context.Context) ([]models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, qc, RecentKey(), c.dal.ListRecentNotes)
}

// SearchNotes serves SearchKey(query). A blank query is rejected without
// touching the cache or the store; any other query is matched verbatim,
// surrounding spaces included.
func (c *Coordinator) SearchNotes(ctx context.Context, query string) ([]models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query is empty", apperr.ErrInvalidInput)
	}
	return querycache.Fetch(ctx, qc, SearchKey(query), func(ctx context.Context) ([]models.Note, error) {
		return c.dal.SearchNotes(ctx, query)
	})
}

// ListNotesByFolder serves FolderNotesKey(folderID).
func (c *Coordinator) ListNotesByFolder(ctx context.Context, folderID string) ([]models.Note, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, qc, FolderNotesKey(folderID), func(ctx context.Context) ([]models.Note, error) {
		return c.dal.ListNotesByFolder(ctx, folderID)
	})
}

// ListFolders serves FoldersKey.
func (c *Coordinator) ListFolders(ctx context.Context) ([]models.Folder, error) {
	_, qc, err := c.cache(ctx)
	if err != nil {
		return nil, err
	}
	return querycache.Fetch(ctx, qc, FoldersKey(), c.dal.ListFolders)
}

// CreateNote creates a note and invalidates the note list.
func (c *Coordinator) CreateNote(ctx context.Context, in models.NewNote) (models.Note, error) {
	var n models.Note
	err := c.mutate(ctx, OpCreateNote, func() (Change, any, error) {
		var err error
		n, err = c.dal.CreateNote(ctx, in)
		return Change{Op: OpCreateNote, Note: n}, n, err
	})
	return n, err
}

// UpdateNote applies patch and invalidates the queries that can include the note.
func (c *Coordinator) UpdateNote(ctx context.Context, id string, patch models.NotePatch) (models.Note, error) {
	var n models.Note
	err := c.mutate(ctx, OpUpdateNote, func() (Change, any, error) {
		var err error
		n, err = c.dal.UpdateNote(ctx, id, patch)
		return Change{Op: OpUpdateNote, Note: n, Patch: patch}, n, err
	})
	return n, err
}

// DeleteNote deletes a note. Deleting an absent note succeeds.
func (c *Coordinator) DeleteNote(ctx context.Context, id string) error {
	return c.mutate(ctx, OpDeleteNote, func() (Change, any, error) {
		err := c.dal.DeleteNote(ctx, id)
		return Change{Op: OpDeleteNote, Note: models.Note{ID: id}}, id, err
	})
}

// CreateFolder creates a folder and invalidates the folder list.
func (c *Coordinator) CreateFolder(ctx context.Context, name string) (models.Folder, error) {
	var f models.Folder
	err := c.mutate(ctx, OpCreateFolder, func() (Change, any, error) {
		var err error
		f, err = c.dal.CreateFolder(ctx, name)
		return Change{Op: OpCreateFolder}, f, err
	})
	return f, err
}

// mutate runs fn for the session user. On failure it records the error under
// MutationKey(op), notifies the user and leaves every query untouched. On
// success it records the result and invalidates the keys of the change.
func (c *Coordinator) mutate(ctx context.Context, op string, fn func() (Change, any, error)) error {
	userID, qc, err := c.cache(ctx)
	if err != nil {
		metrics.Mutations.WithLabelValues(op, "error").Inc()
		return err
	}

	change, result, err := fn()
	if err != nil {
		qc.SetError(MutationKey(op), err)
		metrics.Mutations.WithLabelValues(op, "error").Inc()
		c.logger.Warn("sync: mutation failed",
			slog.String("op", op),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		c.publisher.Publish(sse.Event{
			Type:   sse.TypeMutationFailed,
			UserID: userID,
			Data:   failureEvent{Op: op, Error: err.Error()},
		})
		return err
	}

	qc.Set(MutationKey(op), result)
	metrics.Mutations.WithLabelValues(op, "ok").Inc()

	keys := Invalidations(change)
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		qc.Invalidate(k)
		names[i] = string(k)
	}
	c.publisher.Publish(sse.Event{
		Type:   sse.TypeCacheInvalidated,
		UserID: userID,
		Data:   invalidationEvent{Op: op, Keys: names, NoteID: change.Note.ID},
	})
	return nil
}

type failureEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

type invalidationEvent struct {
	Op     string   `json:"op"`
	Keys   []string `json:"keys"`
	NoteID string   `json:"note_id,omitempty"`
}
