package generator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunestats/tunestats/internal/dataset"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.NumUsers = 50
	cfg.NumSessions = 2000
	cfg.NumTracks = 200
	cfg.NumPlaylists = 10
	return cfg
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.NumUsers = 0
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = smallConfig()
	cfg.EndDate = cfg.StartDate
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestGenerateAllSizes(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	ds := g.GenerateAll()
	assert.Len(t, ds.Users, 50)
	assert.Len(t, ds.Sessions, 2000)
	assert.Len(t, ds.Tracks, 200)
	assert.Len(t, ds.Playlists, 10)
	assert.NotEmpty(t, ds.PlaylistTracks)
}

func TestDeterminism(t *testing.T) {
	a, err := New(smallConfig())
	require.NoError(t, err)
	b, err := New(smallConfig())
	require.NoError(t, err)

	first := a.GenerateAll()
	assert.Equal(t, first, b.GenerateAll())

	cfg := smallConfig()
	cfg.Seed = 99
	c, err := New(cfg)
	require.NoError(t, err)
	assert.NotEqual(t, first.Sessions, c.GenerateAll().Sessions)
}

func TestUserValueRanges(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	validTier := map[string]bool{"free": true, "premium": true, "family": true, "student": true}
	cfg := g.cfg
	for _, u := range g.Users() {
		assert.True(t, validTier[u.Tier], "unexpected tier %q", u.Tier)
		assert.False(t, u.SignupDate.Before(cfg.StartDate))
		assert.False(t, u.SignupDate.After(cfg.EndDate))
		assert.Greater(t, u.AvgSessionLengthPref, 0.0)
		assert.GreaterOrEqual(t, u.SkipTendency, 0.0)
		assert.LessOrEqual(t, u.SkipTendency, 1.0)
		assert.NotEmpty(t, u.PreferredGenre)
	}
}

func TestTrackValueRanges(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	for _, tr := range g.Tracks() {
		assert.GreaterOrEqual(t, tr.Tempo, 60.0)
		assert.LessOrEqual(t, tr.Tempo, 200.0)
		assert.GreaterOrEqual(t, tr.Energy, 0.0)
		assert.LessOrEqual(t, tr.Energy, 1.0)
		assert.GreaterOrEqual(t, tr.DurationMs, int64(120000))
		assert.LessOrEqual(t, tr.DurationMs, int64(480000))
		assert.GreaterOrEqual(t, tr.Loudness, -20.0)
		assert.LessOrEqual(t, tr.Loudness, 0.0)
		assert.GreaterOrEqual(t, tr.ReleaseYear, 1990)
		assert.LessOrEqual(t, tr.ReleaseYear, 2024)
		assert.GreaterOrEqual(t, tr.Popularity, 0.0)
		assert.LessOrEqual(t, tr.Popularity, 100.0)
	}
}

func TestSessionSemantics(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	users := g.Users()
	tracks := g.Tracks()
	sessions := g.Sessions(users, tracks)

	validContext := map[string]bool{
		"playlist": true, "album": true, "radio": true,
		"search": true, "recommendation": true,
	}
	trackDuration := make(map[string]int64, len(tracks))
	for _, tr := range tracks {
		trackDuration[tr.TrackID] = tr.DurationMs
	}

	skipped := 0
	for _, s := range sessions {
		assert.True(t, validContext[s.Context], "unexpected context %q", s.Context)
		assert.Equal(t, trackDuration[s.TrackID], s.TrackDurationMs)
		assert.LessOrEqual(t, s.ListenDurationMs, s.TrackDurationMs)
		if s.Skipped {
			skipped++
			assert.Equal(t, s.ListenDurationMs, s.SkipTimeMs)
		} else {
			assert.Zero(t, s.SkipTimeMs)
		}
		assert.False(t, s.Timestamp.Before(g.cfg.StartDate))
	}
	// A beta(2,5) tendency puts the aggregate skip rate well inside (0,1).
	assert.Greater(t, skipped, 0)
	assert.Less(t, skipped, len(sessions))

	// Timestamps are not sorted on purpose; spot check the hour spread.
	hours := make(map[int]int)
	for _, s := range sessions {
		hours[s.Timestamp.Hour()]++
	}
	assert.Greater(t, hours[19], hours[3], "evening listening outweighs 3am")
}

func TestPlaylistsDistinctTracks(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	users := g.Users()
	tracks := g.Tracks()
	playlists, entries := g.Playlists(users, tracks)

	perPlaylist := make(map[string]map[string]struct{})
	for _, e := range entries {
		if perPlaylist[e.PlaylistID] == nil {
			perPlaylist[e.PlaylistID] = make(map[string]struct{})
		}
		_, dup := perPlaylist[e.PlaylistID][e.TrackID]
		assert.False(t, dup, "duplicate track in %s", e.PlaylistID)
		perPlaylist[e.PlaylistID][e.TrackID] = struct{}{}
	}

	for _, p := range playlists {
		assert.GreaterOrEqual(t, p.NumTracks, 10)
		assert.LessOrEqual(t, p.NumTracks, 99)
		assert.Len(t, perPlaylist[p.PlaylistID], p.NumTracks)
	}
}

func TestExperiment(t *testing.T) {
	cfg := smallConfig()
	cfg.NumUsers = 400
	cfg.NumSessions = 20000
	g, err := New(cfg)
	require.NoError(t, err)

	users := g.Users()
	tracks := g.Tracks()
	sessions := g.Sessions(users, tracks)

	assignments, rates := g.Experiment(users, sessions, "exp", 0.10)
	require.Len(t, assignments, len(users))

	var controlSum, treatSum float64
	var controlN, treatN int
	for _, a := range assignments {
		assert.Equal(t, "exp", a.Experiment)
		switch a.Variant {
		case "control":
			controlSum += rates[a.UserID]
			controlN++
		case "treatment":
			treatSum += rates[a.UserID]
			treatN++
		default:
			t.Fatalf("unexpected variant %q", a.Variant)
		}
	}
	// Roughly even split.
	assert.InDelta(t, 200, controlN, 60)
	assert.InDelta(t, 200, treatN, 60)
	// Treatment skip rates are scaled down by the effect.
	assert.Less(t, treatSum/float64(treatN), controlSum/float64(controlN))
}

func TestExperimentSessionlessUsers(t *testing.T) {
	g, err := New(smallConfig())
	require.NoError(t, err)

	users := []dataset.User{
		{UserID: "user_a"},
		{UserID: "user_b"},
		{UserID: "user_c"},
	}
	sessions := []dataset.Session{
		{SessionID: "s1", UserID: "user_a", Skipped: true},
		{SessionID: "s2", UserID: "user_a"},
	}

	assignments, rates := g.Experiment(users, sessions, "exp", 0.10)
	require.Len(t, assignments, len(users))

	// Users without sessions have no skip rate to scale; the treatment
	// uplift must not invent 0.0 observations for them.
	require.Len(t, rates, 1)
	assert.Contains(t, rates, "user_a")
}

func TestSessionWindowFits(t *testing.T) {
	cfg := smallConfig()
	cfg.StartDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	cfg.EndDate = time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)
	g, err := New(cfg)
	require.NoError(t, err)

	users := g.Users()
	tracks := g.Tracks()
	for _, s := range g.Sessions(users, tracks) {
		assert.False(t, s.Timestamp.Before(cfg.StartDate))
		assert.True(t, s.Timestamp.Before(cfg.EndDate.AddDate(0, 0, 1)))
	}
}
