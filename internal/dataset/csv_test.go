package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseTimeLayouts(t *testing.T) {
	for _, s := range []string{
		"2024-03-15 13:45:00",
		"2024-03-15T13:45:00Z",
		"2024-03-15",
	} {
		ts, err := parseTime(s)
		require.NoError(t, err, s)
		assert.Equal(t, 2024, ts.Year())
		assert.Equal(t, time.March, ts.Month())
	}

	_, err := parseTime("15/03/2024")
	assert.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	assert.True(t, parseBool("true"))
	assert.True(t, parseBool("1"))
	assert.True(t, parseBool(" Yes "))
	assert.False(t, parseBool("false"))
	assert.False(t, parseBool(""))

	assert.Equal(t, int64(42), parseInt("42"))
	assert.Equal(t, int64(42), parseInt("42.0"), "float-formatted integers are accepted")
	assert.Zero(t, parseInt(""))

	assert.Equal(t, 1.5, parseFloat("1.5"))
	assert.Zero(t, parseFloat(""))
}

func TestReadSessionsMissingColumns(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sessions.csv",
		"session_id,user_id,timestamp\ns1,u1,2024-01-01\n")

	_, err := ReadSessions(path)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sessions", verr.Table)
	assert.ElementsMatch(t, []string{"track_id", "listen_duration_ms", "track_duration_ms", "skipped"}, verr.Missing)
	assert.Contains(t, err.Error(), "missing required columns")
}

func TestReadSessionsOptionalColumns(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sessions.csv",
		"session_id,user_id,track_id,timestamp,listen_duration_ms,track_duration_ms,skipped\n"+
			"s1,u1,t1,2024-01-01 10:30:00,150000,200000,true\n")

	sessions, err := ReadSessions(path)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "s1", s.SessionID)
	assert.True(t, s.Skipped)
	assert.Equal(t, int64(150000), s.ListenDurationMs)
	assert.Empty(t, s.Context, "absent optional columns default to empty")
	assert.Zero(t, s.SkipTimeMs)
}

func TestReadUsersBadTimestamp(t *testing.T) {
	path := writeFile(t, t.TempDir(), "users.csv",
		"user_id,signup_date,tier,country,age_group\nu1,not-a-date,free,US,18-24\n")

	_, err := ReadUsers(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized timestamp")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	signup := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	want := &Dataset{
		Users: []User{{
			UserID:               "u1",
			SignupDate:           signup,
			Tier:                 "premium",
			Country:              "US",
			AgeGroup:             "25-34",
			Gender:               "F",
			PreferredGenre:       "rock",
			AvgSessionLengthPref: 30.5,
			SkipTendency:         0.25,
		}},
		Tracks: []Track{{
			TrackID:    "t1",
			Tempo:      120.5,
			Energy:     0.75,
			DurationMs: 210000,
			Genre:      "rock",
			ArtistID:   "a1",
			Popularity: 42,
		}},
		Sessions: []Session{{
			SessionID:        "s1",
			UserID:           "u1",
			TrackID:          "t1",
			Timestamp:        signup.Add(25 * time.Hour),
			ListenDurationMs: 45000,
			TrackDurationMs:  210000,
			Skipped:          true,
			SkipTimeMs:       45000,
			Context:          "playlist",
			Device:           "mobile",
		}},
		Playlists: []Playlist{{
			PlaylistID:  "p1",
			UserID:      "u1",
			Name:        "Playlist 1",
			CreatedDate: signup,
			NumTracks:   1,
			IsPublic:    true,
		}},
		PlaylistTracks: []PlaylistTrack{{PlaylistID: "p1", TrackID: "t1", Position: 0}},
	}
	require.NoError(t, Save(want, dir))

	got, err := Load(dir)
	require.NoError(t, err)

	require.Len(t, got.Users, 1)
	assert.Equal(t, "u1", got.Users[0].UserID)
	assert.True(t, got.Users[0].SignupDate.Equal(signup))
	assert.Equal(t, 0.25, got.Users[0].SkipTendency)

	require.Len(t, got.Tracks, 1)
	assert.Equal(t, want.Tracks[0], got.Tracks[0])

	require.Len(t, got.Sessions, 1)
	gotSession, wantSession := got.Sessions[0], want.Sessions[0]
	assert.True(t, gotSession.Timestamp.Equal(wantSession.Timestamp))
	gotSession.Timestamp, wantSession.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, wantSession, gotSession)

	require.Len(t, got.Playlists, 1)
	assert.True(t, got.Playlists[0].CreatedDate.Equal(signup))
	assert.Equal(t, 1, got.Playlists[0].NumTracks)
	assert.True(t, got.Playlists[0].IsPublic)
	assert.Equal(t, want.PlaylistTracks, got.PlaylistTracks)
}

func TestLoadWithoutPlaylists(t *testing.T) {
	dir := t.TempDir()
	ds := &Dataset{
		Users:  []User{{UserID: "u1", SignupDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Tier: "free", Country: "US", AgeGroup: "18-24"}},
		Tracks: []Track{{TrackID: "t1", Genre: "pop", DurationMs: 180000}},
		Sessions: []Session{{
			SessionID: "s1", UserID: "u1", TrackID: "t1",
			Timestamp: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC),
		}},
	}
	require.NoError(t, Save(ds, dir))

	// Playlist tables are optional.
	require.NoError(t, os.Remove(filepath.Join(dir, "playlists.csv")))
	require.NoError(t, os.Remove(filepath.Join(dir, "playlist_tracks.csv")))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, got.Sessions, 1)
	assert.Empty(t, got.Playlists)
}

func TestTrackIndex(t *testing.T) {
	ds := &Dataset{Tracks: []Track{{TrackID: "t1", Genre: "pop"}, {TrackID: "t2", Genre: "rock"}}}
	idx := ds.TrackIndex()
	require.Len(t, idx, 2)
	assert.Equal(t, "rock", idx["t2"].Genre)
	assert.Nil(t, idx["missing"])
}

func TestMaxTimestamp(t *testing.T) {
	assert.True(t, MaxTimestamp(nil).IsZero())

	late := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	sessions := []Session{
		{Timestamp: late.AddDate(0, 0, -10)},
		{Timestamp: late},
		{Timestamp: late.AddDate(0, 0, -1)},
	}
	assert.True(t, MaxTimestamp(sessions).Equal(late))
}
