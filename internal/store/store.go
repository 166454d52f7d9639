// Package store persists tracked objects, detection classes and behavioural
// events in SQLite. It is the system of record the per-view tracker commits
// into: object rows live forever, presence and movement flags flip in place.
package store

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

// defaultPositionAlpha is the EMA weight applied to incoming 3D positions.
// Low enough to ride out detector jitter, high enough to follow a restock.
const defaultPositionAlpha = 0.25

// Store wraps the SQLite handle with the retail-tracking schema applied.
type Store struct {
	*sql.DB

	// positionAlpha is the smoothing factor for stored 3D positions.
	positionAlpha float64
}

// Option configures a Store at open time.
type Option func(*Store)

// WithPositionAlpha overrides the position smoothing factor.
func WithPositionAlpha(alpha float64) Option {
	return func(s *Store) {
		if alpha > 0 && alpha <= 1 {
			s.positionAlpha = alpha
		}
	}
}

// Open opens (creating if necessary) the database at path and brings the
// schema up to date. Use ":memory:" for tests.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// modernc sqlite serialises at the driver level, but keeping a single
	// connection avoids table-lock errors under concurrent API reads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{DB: db, positionAlpha: defaultPositionAlpha}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("[store] opened %s (position alpha %.2f)", path, s.positionAlpha)
	return s, nil
}
