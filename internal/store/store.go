// Package store persists the streaming dataset in sqlite so repeated
// analysis runs skip the CSV parse.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
  user_id TEXT PRIMARY KEY,
  signup_date DATETIME,
  tier TEXT,
  country TEXT,
  age_group TEXT,
  gender TEXT,
  preferred_genre TEXT,
  avg_session_length_pref REAL,
  skip_tendency REAL
);

CREATE TABLE IF NOT EXISTS tracks (
  track_id TEXT PRIMARY KEY,
  tempo REAL,
  energy REAL,
  danceability REAL,
  valence REAL,
  acousticness REAL,
  instrumentalness REAL,
  liveness REAL,
  speechiness REAL,
  loudness REAL,
  duration_ms INTEGER,
  genre TEXT,
  artist_id TEXT,
  release_year INTEGER,
  popularity REAL
);

-- One row per track event. A listening session spans several rows, so
-- session_id is not unique.
CREATE TABLE IF NOT EXISTS sessions (
  session_id TEXT NOT NULL,
  user_id TEXT,
  track_id TEXT,
  timestamp DATETIME,
  listen_duration_ms INTEGER,
  track_duration_ms INTEGER,
  skipped INTEGER,
  skip_time_ms INTEGER,
  context TEXT,
  device TEXT,
  FOREIGN KEY (user_id) REFERENCES users(user_id),
  FOREIGN KEY (track_id) REFERENCES tracks(track_id)
);

CREATE TABLE IF NOT EXISTS playlists (
  playlist_id TEXT PRIMARY KEY,
  user_id TEXT,
  name TEXT,
  created_date DATETIME,
  num_tracks INTEGER,
  is_public INTEGER,
  FOREIGN KEY (user_id) REFERENCES users(user_id)
);

CREATE TABLE IF NOT EXISTS playlist_tracks (
  playlist_id TEXT,
  track_id TEXT,
  position INTEGER,
  PRIMARY KEY (playlist_id, track_id),
  FOREIGN KEY (playlist_id) REFERENCES playlists(playlist_id),
  FOREIGN KEY (track_id) REFERENCES tracks(track_id)
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON sessions(timestamp);
`

func createTables(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}
