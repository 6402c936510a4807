package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"sitemigrate/internal/config"
)

// Store manages migration record persistence.
type Store struct {
	db       *sql.DB
	dialect  dialect
	location string

	mu       sync.RWMutex
	identity string
	now      func() time.Time
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the configured backend and applies pending schema migrations.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("migration store: config is required")
	}
	d, ok := dialectFor(cfg.Store.Driver)
	if !ok {
		return nil, fmt.Errorf("migration store: unsupported driver %q", cfg.Store.Driver)
	}

	var (
		dsn      string
		location string
	)
	switch d {
	case dialectSQLite:
		location = cfg.Store.Path
		if dir := filepath.Dir(location); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure store directory: %w", err)
			}
		}
		dsn = location
	case dialectPostgres:
		dsn = cfg.Store.DSN
		location = redactDSN(dsn)
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, unavailable("open", err)
	}

	if d == dialectSQLite {
		pragmas := []string{
			"PRAGMA journal_mode=WAL",
			fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.Store.BusyTimeoutMS),
		}
		for _, pragma := range pragmas {
			if _, execErr := db.Exec(pragma); execErr != nil {
				_ = db.Close()
				return nil, unavailable(fmt.Sprintf("apply pragma %q", pragma), execErr)
			}
		}
	}

	store := &Store{
		db:       db,
		dialect:  d,
		location: location,
		identity: cfg.Scheduler.Identity,
		now:      time.Now,
	}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, unavailable("migrate", err)
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the backend name (sqlite or postgres).
func (s *Store) Driver() string {
	return s.dialect.name
}

// Location returns the database path or a redacted DSN.
func (s *Store) Location() string {
	return s.location
}

// Ping verifies that the backend is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return unavailable("ping", s.db.PingContext(ensureContext(ctx)))
}

// SetIdentity changes the modified_by value stamped on subsequent writes.
func (s *Store) SetIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = strings.TrimSpace(identity)
}

// SetClock overrides the time source used for timestamps and expiry.
func (s *Store) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) currentIdentity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

func (s *Store) clock() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().UTC()
}

func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***" + dsn[at:]
}
