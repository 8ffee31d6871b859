// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/seongminnpark/Villim/lib/clock"
	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/principal"
	"github.com/seongminnpark/Villim/lib/registry"
	"github.com/seongminnpark/Villim/lib/sqlitepool"
)

// schema creates the archive tables. Listings are stored as CBOR
// blobs with the columns needed for querying duplicated alongside;
// the blob is authoritative.
const schema = `
	CREATE TABLE IF NOT EXISTS generations (
		generation    INTEGER PRIMARY KEY AUTOINCREMENT,
		taken_at      INTEGER NOT NULL,
		reason        TEXT NOT NULL,
		listing_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS listings (
		generation INTEGER NOT NULL,
		id         INTEGER NOT NULL,
		host       TEXT NOT NULL,
		grid       INTEGER NOT NULL,
		record     BLOB NOT NULL,
		PRIMARY KEY (generation, id)
	);

	CREATE INDEX IF NOT EXISTS listings_by_host ON listings (host);
`

// StoreConfig holds the parameters for opening an archive store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides the capture timestamp for each generation.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// Store is a SQLite-backed archive of registry generations. Safe for
// concurrent use.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// Generation describes one archived capture.
type Generation struct {
	Generation   int64
	TakenAt      int64
	Reason       string
	ListingCount int
}

// OpenStore opens (creating if necessary) the archive database.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("archive: Clock is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}

	return &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: logger,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Archive writes one generation containing the given listings. The
// header row and every listing row commit in a single IMMEDIATE
// transaction, so a generation is either fully present or absent.
// Returns the new generation number.
func (s *Store) Archive(ctx context.Context, reason string, listings []registry.Listing) (generation int64, err error) {
	if reason == "" {
		return 0, fmt.Errorf("archive: reason is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return 0, fmt.Errorf("archive: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	err = sqlitex.Execute(conn, `
		INSERT INTO generations (taken_at, reason, listing_count)
		VALUES (?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{s.clock.Now().Unix(), reason, len(listings)},
	})
	if err != nil {
		return 0, fmt.Errorf("archive: inserting generation: %w", err)
	}
	generation = conn.LastInsertRowID()

	for i := range listings {
		listing := &listings[i]
		blob, err := codec.Marshal(listing)
		if err != nil {
			return 0, fmt.Errorf("archive: encoding listing %d: %w", listing.ID, err)
		}
		err = sqlitex.Execute(conn, `
			INSERT INTO listings (generation, id, host, grid, record)
			VALUES (?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
			Args: []any{generation, int64(listing.ID), string(listing.Host), int64(listing.Grid), blob},
		})
		if err != nil {
			return 0, fmt.Errorf("archive: inserting listing %d: %w", listing.ID, err)
		}
	}

	s.logger.Info("generation archived",
		"generation", generation,
		"reason", reason,
		"listings", len(listings),
	)
	return generation, nil
}

// Generations returns all archived generations, oldest first.
func (s *Store) Generations(ctx context.Context) ([]Generation, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var generations []Generation
	err = sqlitex.Execute(conn, `
		SELECT generation, taken_at, reason, listing_count
		FROM generations ORDER BY generation`, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			generations = append(generations, Generation{
				Generation:   stmt.ColumnInt64(0),
				TakenAt:      stmt.ColumnInt64(1),
				Reason:       stmt.ColumnText(2),
				ListingCount: stmt.ColumnInt(3),
			})
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: querying generations: %w", err)
	}
	return generations, nil
}

// Listings returns the full listing records of one generation, in id
// order. Returns an error if the generation does not exist.
func (s *Store) Listings(ctx context.Context, generation int64) ([]registry.Listing, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	exists := false
	err = sqlitex.Execute(conn, `
		SELECT 1 FROM generations WHERE generation = ?`, &sqlitex.ExecOptions{
		Args: []any{generation},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			exists = true
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: checking generation %d: %w", generation, err)
	}
	if !exists {
		return nil, fmt.Errorf("archive: generation %d not found", generation)
	}

	var listings []registry.Listing
	err = sqlitex.Execute(conn, `
		SELECT record FROM listings
		WHERE generation = ? ORDER BY id`, &sqlitex.ExecOptions{
		Args: []any{generation},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			var listing registry.Listing
			if err := codec.Unmarshal(blob, &listing); err != nil {
				return fmt.Errorf("decoding listing record: %w", err)
			}
			listings = append(listings, listing)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: querying generation %d: %w", generation, err)
	}
	return listings, nil
}

// ListingsByHost returns every archived record for listings created by
// the given host, across all generations, newest generation first.
func (s *Store) ListingsByHost(ctx context.Context, host principal.ID) ([]registry.Listing, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var listings []registry.Listing
	err = sqlitex.Execute(conn, `
		SELECT record FROM listings
		WHERE host = ? ORDER BY generation DESC, id`, &sqlitex.ExecOptions{
		Args: []any{string(host)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			blob := make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			var listing registry.Listing
			if err := codec.Unmarshal(blob, &listing); err != nil {
				return fmt.Errorf("decoding listing record: %w", err)
			}
			listings = append(listings, listing)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("archive: querying host %s: %w", host, err)
	}
	return listings, nil
}
