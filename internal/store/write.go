package store

import (
	"database/sql"
	"fmt"

	"github.com/tunestats/tunestats/internal/audioapi"
	"github.com/tunestats/tunestats/internal/dataset"
)

// SaveDataset replaces the stored tables with the given dataset in one
// transaction.
func (s *Store) SaveDataset(ds *dataset.Dataset) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"playlist_tracks", "playlists", "sessions", "tracks", "users"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}

	if err := insertUsers(tx, ds.Users); err != nil {
		return err
	}
	if err := insertTracks(tx, ds.Tracks); err != nil {
		return err
	}
	if err := insertSessions(tx, ds.Sessions); err != nil {
		return err
	}
	if err := insertPlaylists(tx, ds.Playlists, ds.PlaylistTracks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertUsers(tx *sql.Tx, users []dataset.User) error {
	stmt, err := tx.Prepare(`INSERT INTO users
		(user_id, signup_date, tier, country, age_group, gender,
		 preferred_genre, avg_session_length_pref, skip_tendency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing user insert: %w", err)
	}
	defer stmt.Close()

	for _, u := range users {
		_, err := stmt.Exec(u.UserID, u.SignupDate, u.Tier, u.Country, u.AgeGroup,
			u.Gender, u.PreferredGenre, u.AvgSessionLengthPref, u.SkipTendency)
		if err != nil {
			return fmt.Errorf("inserting user %q: %w", u.UserID, err)
		}
	}
	return nil
}

func insertTracks(tx *sql.Tx, tracks []dataset.Track) error {
	stmt, err := tx.Prepare(`INSERT INTO tracks
		(track_id, tempo, energy, danceability, valence, acousticness,
		 instrumentalness, liveness, speechiness, loudness, duration_ms,
		 genre, artist_id, release_year, popularity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing track insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tracks {
		_, err := stmt.Exec(t.TrackID, t.Tempo, t.Energy, t.Danceability, t.Valence,
			t.Acousticness, t.Instrumentalness, t.Liveness, t.Speechiness, t.Loudness,
			t.DurationMs, t.Genre, t.ArtistID, t.ReleaseYear, t.Popularity)
		if err != nil {
			return fmt.Errorf("inserting track %q: %w", t.TrackID, err)
		}
	}
	return nil
}

func insertSessions(tx *sql.Tx, sessions []dataset.Session) error {
	stmt, err := tx.Prepare(`INSERT INTO sessions
		(session_id, user_id, track_id, timestamp, listen_duration_ms,
		 track_duration_ms, skipped, skip_time_ms, context, device)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing session insert: %w", err)
	}
	defer stmt.Close()

	for _, sess := range sessions {
		_, err := stmt.Exec(sess.SessionID, sess.UserID, sess.TrackID, sess.Timestamp,
			sess.ListenDurationMs, sess.TrackDurationMs, sess.Skipped, sess.SkipTimeMs,
			sess.Context, sess.Device)
		if err != nil {
			return fmt.Errorf("inserting session %q: %w", sess.SessionID, err)
		}
	}
	return nil
}

func insertPlaylists(tx *sql.Tx, playlists []dataset.Playlist, playlistTracks []dataset.PlaylistTrack) error {
	stmt, err := tx.Prepare(`INSERT INTO playlists
		(playlist_id, user_id, name, created_date, num_tracks, is_public)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing playlist insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range playlists {
		_, err := stmt.Exec(p.PlaylistID, p.UserID, p.Name, p.CreatedDate, p.NumTracks, p.IsPublic)
		if err != nil {
			return fmt.Errorf("inserting playlist %q: %w", p.PlaylistID, err)
		}
	}

	ptStmt, err := tx.Prepare(`INSERT INTO playlist_tracks
		(playlist_id, track_id, position) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing playlist track insert: %w", err)
	}
	defer ptStmt.Close()

	for _, pt := range playlistTracks {
		if _, err := ptStmt.Exec(pt.PlaylistID, pt.TrackID, pt.Position); err != nil {
			return fmt.Errorf("inserting playlist track %q/%q: %w", pt.PlaylistID, pt.TrackID, err)
		}
	}
	return nil
}

// UpdateTrackFeatures overwrites a track's audio features, typically after a
// catalog API fetch.
func (s *Store) UpdateTrackFeatures(features []audioapi.AudioFeatures) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`UPDATE tracks SET
		tempo = ?, energy = ?, danceability = ?, valence = ?, acousticness = ?,
		instrumentalness = ?, liveness = ?, speechiness = ?, loudness = ?,
		duration_ms = ?
		WHERE track_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing feature update: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		_, err := stmt.Exec(f.Tempo, f.Energy, f.Danceability, f.Valence, f.Acousticness,
			f.Instrumentalness, f.Liveness, f.Speechiness, f.Loudness, f.DurationMs,
			f.TrackID)
		if err != nil {
			return fmt.Errorf("updating features for track %q: %w", f.TrackID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
