// Package blobcache is the durable record of which content identities
// the remote service already holds.
//
// Entries are keyed by content identity and carry an acknowledgment
// state: Unconfirmed until the remote service has acknowledged receipt
// of that exact identity, Confirmed afterwards. The cache never claims
// Confirmed without an observed acknowledgment; that invariant is what
// lets later scans skip re-uploading unchanged content.
//
// Persistence is a per-workspace SQLite database in the state
// directory. SQLite's WAL journaling gives the crash-safety contract:
// a crash mid-write leaves either the old or the new fully-valid
// state, never a torn file.
package blobcache

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"codesync/internal/identity"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// ErrCacheInconsistency signals an internal invariant violation, e.g.
// committing an identity that was never marked pending. It indicates a
// coordinator bug and halts the affected operation.
var ErrCacheInconsistency = errors.New("blob cache inconsistency")

// State is the remote acknowledgment state of a cache entry.
type State string

const (
	// StateUnconfirmed: content observed locally, remote receipt not
	// yet acknowledged.
	StateUnconfirmed State = "unconfirmed"
	// StateConfirmed: the remote service acknowledged this identity.
	StateConfirmed State = "confirmed"
)

// Entry is one cached content identity.
type Entry struct {
	Identity identity.Identity
	Size     int64
	State    State
	LastUsed time.Time
}

// Cache is the shared, internally-synchronized blob cache. Entry-point
// operations are individually atomic; callers sequence lookup-then-
// enqueue themselves.
type Cache struct {
	db *sql.DB

	capacity int64

	mu   sync.Mutex
	pins map[identity.Identity]int

	now func() time.Time
}

// cacheNamespace is the fixed UUID namespace for deriving stable
// per-workspace database names from workspace root paths.
var cacheNamespace = uuid.MustParse("c0de517c-b10b-4ac8-9e05-1d9a7732c0de")

// PathFor returns the database path for a workspace root: one file per
// workspace under <stateDir>/blobs/, named by the UUIDv5 of the
// normalized root path so the same workspace always maps to the same
// cache across runs.
func PathFor(stateDir, workspaceRoot string) string {
	normalized := strings.ReplaceAll(filepath.Clean(workspaceRoot), "\\", "/")
	name := uuid.NewSHA1(cacheNamespace, []byte(normalized)).String()
	return filepath.Join(stateDir, "blobs", name+".db")
}

// Open opens (creating if needed) the cache database at path.
func Open(path string, capacityBytes int64) (*Cache, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	u := url.URL{Scheme: "file", Path: path}
	db, err := sql.Open("sqlite", u.String())
	if err != nil {
		return nil, err
	}
	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Cache{
		db:       db,
		capacity: capacityBytes,
		pins:     make(map[identity.Identity]int),
		now:      time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Single local writer; keep the pool minimal.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

// Lookup returns the entry for an identity. Never touches the network.
func (c *Cache) Lookup(id identity.Identity) (Entry, bool, error) {
	var (
		size     int64
		state    string
		lastUsed int64
	)
	err := c.db.QueryRow(
		"SELECT size, state, last_used FROM blobs WHERE identity = ?", id.String(),
	).Scan(&size, &state, &lastUsed)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Identity: id,
		Size:     size,
		State:    State(state),
		LastUsed: time.Unix(0, lastUsed),
	}, true, nil
}

// MarkPending records an identity as Unconfirmed. Idempotent; an
// already-Confirmed entry is left untouched.
func (c *Cache) MarkPending(id identity.Identity, size int64) error {
	_, err := c.db.Exec(`
INSERT INTO blobs (identity, size, state, last_used) VALUES (?, ?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET size = excluded.size, last_used = excluded.last_used
WHERE blobs.state = ?`,
		id.String(), size, string(StateUnconfirmed), c.now().UnixNano(), string(StateUnconfirmed))
	return err
}

// Commit transitions an entry to Confirmed after a remote
// acknowledgment. Committing an unknown identity is an invariant
// violation and returns ErrCacheInconsistency.
func (c *Cache) Commit(id identity.Identity) error {
	res, err := c.db.Exec(
		"UPDATE blobs SET state = ?, last_used = ? WHERE identity = ?",
		string(StateConfirmed), c.now().UnixNano(), id.String())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: commit of unknown identity %s", ErrCacheInconsistency, id)
	}
	return nil
}

// Touch bumps the last-used timestamp of an entry.
func (c *Cache) Touch(id identity.Identity) error {
	_, err := c.db.Exec(
		"UPDATE blobs SET last_used = ? WHERE identity = ?",
		c.now().UnixNano(), id.String())
	return err
}

// Pin marks an identity as referenced by an in-flight upload task.
// Pinned entries are never evicted.
func (c *Cache) Pin(id identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[id]++
}

// Unpin releases an in-flight reference.
func (c *Cache) Unpin(id identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[id] <= 1 {
		delete(c.pins, id)
		return
	}
	c.pins[id]--
}

func (c *Cache) pinned(id identity.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pins[id] > 0
}

// TotalSize returns the summed size of all entries.
func (c *Cache) TotalSize() (int64, error) {
	var total sql.NullInt64
	if err := c.db.QueryRow("SELECT SUM(size) FROM blobs").Scan(&total); err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// Stats summarizes the cache for status reporting.
type Stats struct {
	Entries     int
	Confirmed   int
	Unconfirmed int
	TotalBytes  int64
}

// Stats returns entry counts and total size.
func (c *Cache) Stats() (Stats, error) {
	var st Stats
	rows, err := c.db.Query("SELECT state, COUNT(*), COALESCE(SUM(size), 0) FROM blobs GROUP BY state")
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			state string
			count int
			size  int64
		)
		if err := rows.Scan(&state, &count, &size); err != nil {
			return st, err
		}
		st.Entries += count
		st.TotalBytes += size
		switch State(state) {
		case StateConfirmed:
			st.Confirmed = count
		case StateUnconfirmed:
			st.Unconfirmed = count
		}
	}
	return st, rows.Err()
}

// EvictIfNeeded removes Confirmed entries least-recently-used first
// until the cache is back under capacity. Unconfirmed and pinned
// (in-flight) entries are never evicted. Returns the number of entries
// removed.
func (c *Cache) EvictIfNeeded() (int, error) {
	if c.capacity <= 0 {
		return 0, nil
	}
	total, err := c.TotalSize()
	if err != nil {
		return 0, err
	}
	if total <= c.capacity {
		return 0, nil
	}

	rows, err := c.db.Query(
		"SELECT identity, size FROM blobs WHERE state = ? ORDER BY last_used ASC",
		string(StateConfirmed))
	if err != nil {
		return 0, err
	}

	type victim struct {
		id   identity.Identity
		size int64
	}
	var victims []victim
	for rows.Next() {
		var (
			raw  string
			size int64
		)
		if err := rows.Scan(&raw, &size); err != nil {
			rows.Close()
			return 0, err
		}
		id, err := identity.Parse(raw)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: malformed identity %q in cache", ErrCacheInconsistency, raw)
		}
		victims = append(victims, victim{id: id, size: size})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	evicted := 0
	for _, v := range victims {
		if total <= c.capacity {
			break
		}
		if c.pinned(v.id) {
			continue
		}
		if _, err := c.db.Exec("DELETE FROM blobs WHERE identity = ?", v.id.String()); err != nil {
			return evicted, err
		}
		total -= v.size
		evicted++
	}
	return evicted, nil
}
