// Package playerdb keeps the server's player profile cache in SQLite:
// identity, join history and last known position, written when a session
// ends and consulted when the player returns.
package playerdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Profile is one stored player record.
type Profile struct {
	UUID      string
	Username  string
	FirstSeen time.Time
	LastSeen  time.Time
	LastX     float64
	LastY     float64
	LastZ     float64
	GameMode  string
}

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open creates or opens the profile database at path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, err
		}
	}

	const schema = `CREATE TABLE IF NOT EXISTS profiles (
		uuid TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL,
		last_x REAL NOT NULL DEFAULT 0,
		last_y REAL NOT NULL DEFAULT 0,
		last_z REAL NOT NULL DEFAULT 0,
		gamemode TEXT NOT NULL DEFAULT 'survival'
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// Upsert records a profile, preserving the original first_seen timestamp.
func (d *DB) Upsert(p Profile) error {
	_, err := d.db.Exec(`INSERT INTO profiles
		(uuid, username, first_seen, last_seen, last_x, last_y, last_z, gamemode)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			username = excluded.username,
			last_seen = excluded.last_seen,
			last_x = excluded.last_x,
			last_y = excluded.last_y,
			last_z = excluded.last_z,
			gamemode = excluded.gamemode`,
		p.UUID, p.Username,
		p.FirstSeen.UnixMilli(), p.LastSeen.UnixMilli(),
		p.LastX, p.LastY, p.LastZ, p.GameMode)
	return err
}

// Get fetches a profile by UUID; ok=false when the player has never joined.
func (d *DB) Get(uuid string) (Profile, bool, error) {
	var p Profile
	var first, last int64
	err := d.db.QueryRow(`SELECT uuid, username, first_seen, last_seen,
		last_x, last_y, last_z, gamemode FROM profiles WHERE uuid = ?`, uuid).
		Scan(&p.UUID, &p.Username, &first, &last, &p.LastX, &p.LastY, &p.LastZ, &p.GameMode)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	p.FirstSeen = time.UnixMilli(first)
	p.LastSeen = time.UnixMilli(last)
	return p, true, nil
}

// Count returns the number of stored profiles.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM profiles`).Scan(&n)
	return n, err
}
