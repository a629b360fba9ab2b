package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
)

//go:embed schema.sql
var schema string

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

/*
SQLStore persists items and frontier entries in SQL tables.

  - "sqlite" opens a local database file through modernc.org/sqlite.
  - "libsql" connects to a remote libSQL/Turso database.
  - Insert-if-absent relies on the (namespace, canonical_key) primary key:
    INSERT ... ON CONFLICT DO NOTHING affects one row only for the winner.
*/
type SQLStore struct {
	db        *sql.DB
	driver    string
	namespace string
}

// OpenSQLStore opens the database and applies the schema.
func OpenSQLStore(ctx context.Context, driver, dsn, namespace string) (*SQLStore, error) {
	if driver != DriverSQLite && driver != DriverLibSQL {
		return nil, &StorageError{Message: driver, Cause: ErrCauseUnknownBackend}
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Cause: ErrCauseUnavailable, Store: driver}
	}
	if driver == DriverSQLite {
		// a single writer avoids SQLITE_BUSY under concurrent leaves
		db.SetMaxOpenConns(1)
	}
	store, err := NewSQLStore(ctx, db, driver, namespace)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(ctx context.Context, db *sql.DB, driver, namespace string) (*SQLStore, error) {
	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			return nil, &StorageError{Message: err.Error(), Cause: ErrCauseUnavailable, Store: driver}
		}
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, &StorageError{Message: fmt.Sprintf("apply schema: %v", err), Cause: ErrCauseUnavailable, Store: driver}
		}
	}
	return &SQLStore{db: db, driver: driver, namespace: namespace}, nil
}

func (s *SQLStore) Name() string {
	return s.driver
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseUnavailable, Store: s.driver}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) InsertIfAbsent(ctx context.Context, item catalog.ItemIdentifier) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO items (namespace, canonical_key, source_leaf_id, first_seen_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, canonical_key) DO NOTHING`,
		s.namespace, item.CanonicalKey, item.SourceLeafID, item.FirstSeenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Store: s.driver}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Store: s.driver}
	}
	return affected == 1, nil
}

func (s *SQLStore) Lookup(ctx context.Context, canonicalKey string) (catalog.ItemIdentifier, bool, error) {
	var item catalog.ItemIdentifier
	var firstSeen string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_key, source_leaf_id, first_seen_at FROM items
		 WHERE namespace = ? AND canonical_key = ?`,
		s.namespace, canonicalKey,
	).Scan(&item.CanonicalKey, &item.SourceLeafID, &firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return catalog.ItemIdentifier{}, false, nil
	}
	if err != nil {
		return catalog.ItemIdentifier{}, false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: s.driver}
	}
	if t, parseErr := time.Parse(time.RFC3339Nano, firstSeen); parseErr == nil {
		item.FirstSeenAt = t
	}
	return item, true, nil
}

func (s *SQLStore) CountItems(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE namespace = ?`, s.namespace).Scan(&n)
	if err != nil {
		return 0, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: s.driver}
	}
	return n, nil
}

func (s *SQLStore) PutEntry(ctx context.Context, entry catalog.FrontierEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return &StorageError{Message: err.Error(), Cause: ErrCauseEncodeFailure, Store: s.driver}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO frontier (namespace, leaf_id, entry, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (namespace, leaf_id) DO UPDATE SET entry = excluded.entry, updated_at = excluded.updated_at`,
		s.namespace, entry.LeafID, string(encoded), entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure, Store: s.driver}
	}
	return nil
}

func (s *SQLStore) Entries(ctx context.Context) (map[string]catalog.FrontierEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT leaf_id, entry FROM frontier WHERE namespace = ?`, s.namespace)
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: s.driver}
	}
	defer rows.Close()

	entries := make(map[string]catalog.FrontierEntry)
	for rows.Next() {
		var leafID, encoded string
		if err := rows.Scan(&leafID, &encoded); err != nil {
			return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: s.driver}
		}
		var entry catalog.FrontierEntry
		if err := json.Unmarshal([]byte(encoded), &entry); err != nil {
			return nil, &StorageError{Message: fmt.Sprintf("leaf %s: %v", leafID, err), Cause: ErrCauseReadFailure, Store: s.driver}
		}
		entries[leafID] = entry
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseReadFailure, Store: s.driver}
	}
	return entries, nil
}
