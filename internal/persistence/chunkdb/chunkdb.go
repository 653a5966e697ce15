// Package chunkdb persists chunk terrain payloads in a sqlite database,
// one zstd-compressed blob per chunk coordinate.
package chunkdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open creates or opens the chunk database at path. Safe for concurrent
// use: Load runs on generation workers while Save runs on the world loop;
// the single sqlite connection serializes access.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, enc: enc, dec: dec}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for the steady save/load churn of streaming, and
	// NORMAL is an acceptable durability tradeoff for regenerable terrain.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	cx         INTEGER NOT NULL,
	cy         INTEGER NOT NULL,
	payload    BLOB    NOT NULL,
	updated_at TEXT    NOT NULL,
	PRIMARY KEY (cx, cy)
);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Save upserts the raw terrain payload for a coordinate, compressed.
func (s *Store) Save(coord world.ChunkCoord, payload []byte) error {
	blob := s.enc.EncodeAll(payload, nil)
	_, err := s.db.Exec(`
INSERT INTO chunks (cx, cy, payload, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (cx, cy) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		coord.X, coord.Y, blob, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save chunk (%d,%d): %w", coord.X, coord.Y, err)
	}
	return nil
}

// Load returns the decompressed payload for a coordinate, or ok=false when
// no save exists. A blob that fails to decompress is reported as an error;
// the caller treats it as "no save" and regenerates.
func (s *Store) Load(coord world.ChunkCoord) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT payload FROM chunks WHERE cx = ? AND cy = ?`, coord.X, coord.Y).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load chunk (%d,%d): %w", coord.X, coord.Y, err)
	}
	payload, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, false, fmt.Errorf("decompress chunk (%d,%d): %w", coord.X, coord.Y, err)
	}
	return payload, true, nil
}

// Exists reports whether a save exists for the coordinate.
func (s *Store) Exists(coord world.ChunkCoord) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM chunks WHERE cx = ? AND cy = ?`, coord.X, coord.Y).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of persisted chunks, for stats and tests.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}
