// Package sqlstore implements storage.Provider on top of a SQL database.
// Postgres (pgx) is the production backend; SQLite is used for local runs and tests.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/folio/internal/storage"
)

// Supported driver names.
const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

// sqliteDriver is the go-sqlite3 driver registered with the fold function.
const sqliteDriver = "sqlite3_folio"

// foldFunc lower-cases its argument with Unicode rules. SQLite's own LIKE
// only folds ASCII letters.
const foldFunc = "folio_fold"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc(foldFunc, strings.ToLower, true)
		},
	})
}

// sqlitePragmas are added to SQLite DSNs unless the DSN already sets them.
var sqlitePragmas = []struct{ key, value string }{
	{"_journal_mode", "WAL"},
	{"_busy_timeout", "5000"},
	{"_foreign_keys", "on"},
}

type dialect struct {
	driver string
	// sqlDriver is the database/sql driver name to open.
	sqlDriver string
	// ilike is the case-insensitive LIKE operator.
	ilike string
	// fold, when set, wraps both operands of ilike.
	fold string
	// lockRow is appended to a SELECT that precedes an UPDATE in the same tx.
	lockRow string
	// uuidIDs reports whether id columns are typed UUID, so malformed ids
	// can never match a row.
	uuidIDs bool
	// goose is the goose dialect name.
	goose string
}

var dialects = map[string]dialect{
	DriverPostgres: {driver: DriverPostgres, sqlDriver: DriverPostgres, ilike: "ILIKE", lockRow: " FOR UPDATE", uuidIDs: true, goose: "postgres"},
	DriverSQLite:   {driver: DriverSQLite, sqlDriver: sqliteDriver, ilike: "LIKE", fold: foldFunc, goose: "sqlite3"},
}

// DB is a storage.Provider backed by sqlx.
type DB struct {
	conn    *sqlx.DB
	dialect dialect
	now     func() time.Time
	newID   func() string
}

var _ storage.Provider = (*DB)(nil)

// Option customises a DB.
type Option func(*DB)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(gen func() string) Option {
	return func(db *DB) { db.newID = gen }
}

// Open connects to the database identified by driver and dsn.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}
	raw, err := sql.Open(d.sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open db: %w", err)
	}
	// sqlx picks the bind style from the name, so keep the public one.
	conn := sqlx.NewDb(raw, driver)
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	return New(conn, opts...)
}

// sqliteDSN appends every pragma of sqlitePragmas the DSN does not set.
func sqliteDSN(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		if strings.Contains(dsn, p.key+"=") {
			continue
		}
		b.WriteString(sep + p.key + "=" + p.value)
		sep = "&"
	}
	return b.String()
}

// New wraps an already opened connection. The driver name of conn selects the dialect.
func New(conn *sqlx.DB, opts ...Option) (*DB, error) {
	d, ok := dialects[conn.DriverName()]
	if !ok {
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", conn.DriverName())
	}
	db := &DB{
		conn:    conn,
		dialect: d,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// timestamp returns the current time at the precision both backends store.
func (db *DB) timestamp() time.Time {
	return db.now().UTC().Truncate(time.Microsecond)
}

// validID reports whether id can possibly match a row.
func (db *DB) validID(id string) bool {
	if id == "" {
		return false
	}
	if db.dialect.uuidIDs {
		return uuid.Validate(id) == nil
	}
	return true
}

func (db *DB) rebind(query string) string {
	return db.conn.Rebind(query)
}
