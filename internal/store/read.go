package store

import (
	"fmt"

	"github.com/tunestats/tunestats/internal/dataset"
)

// LoadDataset reads the full dataset back out of sqlite.
func (s *Store) LoadDataset() (*dataset.Dataset, error) {
	ds := &dataset.Dataset{}

	rows, err := s.db.Query(`SELECT user_id, signup_date, tier, country, age_group,
		gender, preferred_genre, avg_session_length_pref, skip_tendency FROM users`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u dataset.User
		if err := rows.Scan(&u.UserID, &u.SignupDate, &u.Tier, &u.Country, &u.AgeGroup,
			&u.Gender, &u.PreferredGenre, &u.AvgSessionLengthPref, &u.SkipTendency); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		ds.Users = append(ds.Users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if ds.Tracks, err = s.loadTracks(); err != nil {
		return nil, err
	}
	if ds.Sessions, err = s.loadSessions(); err != nil {
		return nil, err
	}
	if ds.Playlists, ds.PlaylistTracks, err = s.loadPlaylists(); err != nil {
		return nil, err
	}
	return ds, nil
}

func (s *Store) loadTracks() ([]dataset.Track, error) {
	rows, err := s.db.Query(`SELECT track_id, tempo, energy, danceability, valence,
		acousticness, instrumentalness, liveness, speechiness, loudness,
		duration_ms, genre, artist_id, release_year, popularity FROM tracks`)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()

	var tracks []dataset.Track
	for rows.Next() {
		var t dataset.Track
		if err := rows.Scan(&t.TrackID, &t.Tempo, &t.Energy, &t.Danceability, &t.Valence,
			&t.Acousticness, &t.Instrumentalness, &t.Liveness, &t.Speechiness, &t.Loudness,
			&t.DurationMs, &t.Genre, &t.ArtistID, &t.ReleaseYear, &t.Popularity); err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (s *Store) loadSessions() ([]dataset.Session, error) {
	rows, err := s.db.Query(`SELECT session_id, user_id, track_id, timestamp,
		listen_duration_ms, track_duration_ms, skipped, skip_time_ms, context, device
		FROM sessions ORDER BY timestamp`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []dataset.Session
	for rows.Next() {
		var sess dataset.Session
		if err := rows.Scan(&sess.SessionID, &sess.UserID, &sess.TrackID, &sess.Timestamp,
			&sess.ListenDurationMs, &sess.TrackDurationMs, &sess.Skipped, &sess.SkipTimeMs,
			&sess.Context, &sess.Device); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *Store) loadPlaylists() ([]dataset.Playlist, []dataset.PlaylistTrack, error) {
	rows, err := s.db.Query(`SELECT playlist_id, user_id, name, created_date,
		num_tracks, is_public FROM playlists`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying playlists: %w", err)
	}
	defer rows.Close()

	var playlists []dataset.Playlist
	for rows.Next() {
		var p dataset.Playlist
		if err := rows.Scan(&p.PlaylistID, &p.UserID, &p.Name, &p.CreatedDate,
			&p.NumTracks, &p.IsPublic); err != nil {
			return nil, nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating playlists: %w", err)
	}

	ptRows, err := s.db.Query(`SELECT playlist_id, track_id, position
		FROM playlist_tracks ORDER BY playlist_id, position`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying playlist tracks: %w", err)
	}
	defer ptRows.Close()

	var playlistTracks []dataset.PlaylistTrack
	for ptRows.Next() {
		var pt dataset.PlaylistTrack
		if err := ptRows.Scan(&pt.PlaylistID, &pt.TrackID, &pt.Position); err != nil {
			return nil, nil, fmt.Errorf("scanning playlist track: %w", err)
		}
		playlistTracks = append(playlistTracks, pt)
	}
	return playlists, playlistTracks, ptRows.Err()
}

// CountSessions returns the number of stored sessions.
func (s *Store) CountSessions() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// TrackIDs returns all stored track IDs.
func (s *Store) TrackIDs() ([]string, error) {
	rows, err := s.db.Query("SELECT track_id FROM tracks ORDER BY track_id")
	if err != nil {
		return nil, fmt.Errorf("querying track ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning track id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
