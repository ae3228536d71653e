package registry

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SnapshotStoreConfig configures the SQLite snapshot store.
type SnapshotStoreConfig struct {
	// DSN is the database connection string.
	DSN string

	// RetentionCount keeps at most this many snapshots (0 = keep all).
	RetentionCount int
}

// SnapshotInfo describes a stored snapshot without its payload.
type SnapshotInfo struct {
	ID        string
	CreatedAt time.Time
	Size      int
}

// SnapshotStore persists serialized registry snapshots to a SQLite
// database. Snapshot bytes are stored opaquely: an encrypted snapshot
// stays encrypted at rest.
type SnapshotStore struct {
	db  *sql.DB
	cfg SnapshotStoreConfig
}

// NewSnapshotStore opens (or creates) a SQLite snapshot store.
func NewSnapshotStore(cfg SnapshotStoreConfig) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: open: %w", err)
	}

	// Enable WAL mode for concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshotstore: set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshotstore: create schema: %w", err)
	}

	return &SnapshotStore{db: db, cfg: cfg}, nil
}

// Save stores a serialized snapshot and returns its id. When a
// retention count is configured, older snapshots beyond it are pruned.
func (s *SnapshotStore) Save(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (id, created_at, bytes) VALUES (?, ?, ?)`,
		id,
		time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		data,
	)
	if err != nil {
		return "", fmt.Errorf("snapshotstore: save: %w", err)
	}
	if s.cfg.RetentionCount > 0 {
		if err := s.prune(ctx); err != nil {
			return "", err
		}
	}
	return id, nil
}

// Get returns the snapshot bytes for the given id.
func (s *SnapshotStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bytes FROM snapshots WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: snapshot %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: get: %w", err)
	}
	return data, nil
}

// Latest returns the bytes of the most recent snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT bytes FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no snapshots stored", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: latest: %w", err)
	}
	return data, nil
}

// List returns metadata for stored snapshots, newest first.
func (s *SnapshotStore) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, length(bytes) FROM snapshots ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: list: %w", err)
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		var created string
		if err := rows.Scan(&info.ID, &created, &info.Size); err != nil {
			return nil, fmt.Errorf("snapshotstore: scan: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = t
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshotstore: list: %w", err)
	}
	return infos, nil
}

func (s *SnapshotStore) prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE id NOT IN (
			SELECT id FROM snapshots ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`,
		s.cfg.RetentionCount,
	)
	if err != nil {
		return fmt.Errorf("snapshotstore: prune: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}
