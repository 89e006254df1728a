package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteProvider backs collections with tables in a single SQLite database.
// It exists for local development and operator tooling; production runs on
// BlobProvider. ETags are per-write UUIDs checked inside one UPDATE so
// conditional writes stay atomic.
type SQLiteProvider struct {
	db *sql.DB
}

func NewSQLiteProvider(path string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	schema := `CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		data       BLOB NOT NULL,
		etag       TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (collection, key)
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating records table: %w", err)
	}
	return &SQLiteProvider{db: db}, nil
}

func (p *SQLiteProvider) Collection(_ context.Context, name string) (Store, error) {
	if name == "" {
		return nil, ErrInvalidData
	}
	return &sqliteStore{db: p.db, collection: name}, nil
}

func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

type sqliteStore struct {
	db         *sql.DB
	collection string
}

func (s *sqliteStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrInvalidData
	}
	var rec Record
	err := s.db.QueryRowContext(ctx,
		`SELECT data, etag FROM records WHERE collection = ? AND key = ?`,
		s.collection, key).Scan(&rec.Data, &rec.ETag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

func (s *sqliteStore) Put(ctx context.Context, key string, data []byte, opts *PutOptions) (string, error) {
	if key == "" {
		return "", ErrInvalidData
	}
	etag := uuid.NewString()
	now := time.Now().UTC()

	switch {
	case opts != nil && opts.IfNoneMatchAny:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO records (collection, key, data, etag, updated_at) VALUES (?, ?, ?, ?, ?)`,
			s.collection, key, data, etag, now)
		if err != nil {
			if isUniqueViolation(err) {
				return "", ErrConflict
			}
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return etag, nil

	case opts != nil && opts.IfMatch != "":
		res, err := s.db.ExecContext(ctx,
			`UPDATE records SET data = ?, etag = ?, updated_at = ? WHERE collection = ? AND key = ? AND etag = ?`,
			data, etag, now, s.collection, key, opts.IfMatch)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == 0 {
			return "", ErrConflict
		}
		return etag, nil

	default:
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO records (collection, key, data, etag, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (collection, key) DO UPDATE SET data = excluded.data, etag = excluded.etag, updated_at = excluded.updated_at`,
			s.collection, key, data, etag, now)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return etag, nil
	}
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidData
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND key = ?`, s.collection, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, LENGTH(data), updated_at FROM records
		 WHERE collection = ? AND key LIKE ? || '%' ORDER BY key`,
		s.collection, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Size, &e.LastModified); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return entries, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT in the error string;
	// it does not export a typed constraint error.
	return err != nil && strings.Contains(err.Error(), "constraint")
}
