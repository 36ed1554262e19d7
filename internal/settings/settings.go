// Package settings stores per-guild feature toggles, per-user tracking
// warning preferences and fix counters in sqlite.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Scope selects whose document a setting lives in.
type Scope string

const (
	Guild Scope = "guild"
	User  Scope = "user"
)

// Setting keys inside a platform entry.
const (
	KeyEnabled  = "enabled"
	KeyTracking = "tracking"
)

// Document maps platform keys to their settings.
type Document map[string]map[string]bool

// Defaults apply when a document has no value. Platforms missing from a
// map default to enabled.
type Defaults struct {
	Enabled  map[string]bool
	Tracking map[string]bool
}

func (d Defaults) lookup(scope Scope, platform string) bool {
	m := d.Enabled
	if scope == User {
		m = d.Tracking
	}
	if v, ok := m[platform]; ok {
		return v
	}
	return true
}

// Store is the sqlite backed settings store. It is safe for concurrent use.
type Store struct {
	db  *sql.DB
	log logrus.FieldLogger

	mu       sync.RWMutex
	defaults Defaults
	docs     map[Scope]map[string]Document
}

// Open opens or creates the database at path.
func Open(path string, defaults Defaults, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS guild_config (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS user_config (id TEXT PRIMARY KEY, doc TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS link_fix_counts (platform TEXT PRIMARY KEY, count INTEGER NOT NULL DEFAULT 0)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}

	return &Store{
		db:       db,
		log:      logger.WithField("component", "settings"),
		defaults: defaults,
		docs:     map[Scope]map[string]Document{Guild: {}, User: {}},
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetDefaults replaces the defaults, for example after a config reload.
func (s *Store) SetDefaults(d Defaults) {
	s.mu.Lock()
	s.defaults = d
	s.mu.Unlock()
}

func table(scope Scope) string {
	if scope == User {
		return "user_config"
	}
	return "guild_config"
}

// Document returns the stored document for id. A missing document is empty.
func (s *Store) Document(ctx context.Context, scope Scope, id string) (Document, error) {
	s.mu.RLock()
	doc, ok := s.docs[scope][id]
	s.mu.RUnlock()
	if ok {
		return doc, nil
	}

	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT doc FROM "+table(scope)+" WHERE id = ?", id).Scan(&raw)
	doc = Document{}
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("decode %s document %s: %w", scope, id, err)
		}
	}

	s.mu.Lock()
	s.docs[scope][id] = doc
	s.mu.Unlock()
	return doc, nil
}

// Get returns the value of one setting, falling back to the defaults. An
// empty id always reads the defaults.
func (s *Store) Get(ctx context.Context, scope Scope, id, platform, key string) (bool, error) {
	s.mu.RLock()
	def := s.defaults.lookup(scope, platform)
	s.mu.RUnlock()
	if id == "" {
		return def, nil
	}

	doc, err := s.Document(ctx, scope, id)
	if err != nil {
		return def, err
	}
	if v, ok := doc[platform][key]; ok {
		return v, nil
	}
	return def, nil
}

// Enabled reports whether fixing platform is enabled in the guild. Read
// failures count as enabled.
func (s *Store) Enabled(ctx context.Context, guildID, platform string) bool {
	v, err := s.Get(ctx, Guild, guildID, platform, KeyEnabled)
	if err != nil {
		s.log.WithError(err).WithField("guild", guildID).Warn("Failed to read guild config")
	}
	return v
}

// TrackingWarnings reports whether the user wants tracking warnings for
// platform.
func (s *Store) TrackingWarnings(ctx context.Context, userID, platform string) bool {
	v, err := s.Get(ctx, User, userID, platform, KeyTracking)
	if err != nil {
		s.log.WithError(err).WithField("user", userID).Warn("Failed to read user config")
	}
	return v
}

// Set stores one setting.
func (s *Store) Set(ctx context.Context, scope Scope, id, platform, key string, value bool) error {
	doc, err := s.Document(ctx, scope, id)
	if err != nil {
		return err
	}

	next := make(Document, len(doc)+1)
	for p, m := range doc {
		next[p] = make(map[string]bool, len(m))
		for k, v := range m {
			next[p][k] = v
		}
	}
	if next[platform] == nil {
		next[platform] = map[string]bool{}
	}
	next[platform][key] = value

	raw, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := s.exec(ctx, "INSERT OR REPLACE INTO "+table(scope)+" (id, doc) VALUES (?, ?)", id, string(raw)); err != nil {
		return err
	}

	s.mu.Lock()
	s.docs[scope][id] = next
	s.mu.Unlock()
	return nil
}

// Increment adds one to the fix counter of platform.
func (s *Store) Increment(ctx context.Context, platform string) error {
	return s.exec(ctx, `INSERT INTO link_fix_counts (platform, count) VALUES (?, 1)
		ON CONFLICT(platform) DO UPDATE SET count = count + 1`, platform)
}

// Counts returns every fix counter.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT platform, count FROM link_fix_counts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var platform string
		var n int64
		if err := rows.Scan(&platform, &n); err != nil {
			continue
		}
		counts[platform] = n
	}
	return counts, rows.Err()
}

// exec retries while the database is locked.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	var lastErr error
	for i := 0; i < 5; i++ {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		lastErr = err
		if strings.Contains(err.Error(), "database is locked") {
			time.Sleep(100 * time.Millisecond)
			continue
		}
		return err
	}
	return lastErr
}
