package features

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunestats/tunestats/internal/dataset"
)

func sessionAt(user, track string, ts time.Time, skipped bool) dataset.Session {
	return dataset.Session{
		SessionID:        user + "-" + ts.Format("20060102T150405"),
		UserID:           user,
		TrackID:          track,
		Timestamp:        ts,
		ListenDurationMs: 120000,
		TrackDurationMs:  200000,
		Skipped:          skipped,
		Context:          "album",
		Device:           "mobile",
	}
}

func day(d int) time.Time {
	return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestStreakFeatures(t *testing.T) {
	// Active on days 0,1,2 then 4,5 then 9: three streaks of 3, 2, 1.
	var sessions []dataset.Session
	for _, d := range []int{0, 1, 2, 4, 5, 9} {
		sessions = append(sessions, sessionAt("u1", "t1", day(d), false))
	}

	rows := Build(sessions, nil, nil)
	require.Len(t, rows, 1)
	f := rows[0]

	assert.Equal(t, 3, f.MaxStreak)
	assert.Equal(t, 3, f.StreakCount)
	assert.Equal(t, 1, f.CurrentStreak)
	assert.Equal(t, 6, f.ActiveDays)
	assert.InDelta(t, 2.0, f.AvgStreak, 1e-9)
	assert.InDelta(t, 0.6, f.ActiveDaysRatio, 1e-9)
}

func TestStreakSingleDay(t *testing.T) {
	sessions := []dataset.Session{
		sessionAt("u1", "t1", day(0), false),
		sessionAt("u1", "t2", day(0).Add(2*time.Hour), false),
	}

	rows := Build(sessions, nil, nil)
	require.Len(t, rows, 1)
	f := rows[0]

	assert.Equal(t, 1, f.MaxStreak)
	assert.Equal(t, 1, f.CurrentStreak)
	assert.Equal(t, 1, f.ActiveDays)
	assert.InDelta(t, 1.0, f.ActiveDaysRatio, 1e-9)
}

func TestGenreFeaturesTwoEvenGenres(t *testing.T) {
	tracks := []dataset.Track{
		{TrackID: "pop1", Genre: "pop"},
		{TrackID: "rock1", Genre: "rock"},
	}
	var sessions []dataset.Session
	for i := 0; i < 4; i++ {
		sessions = append(sessions, sessionAt("u1", "pop1", day(i), false))
		sessions = append(sessions, sessionAt("u1", "rock1", day(i).Add(time.Hour), false))
	}

	rows := Build(sessions, nil, tracks)
	require.Len(t, rows, 1)
	f := rows[0]

	assert.InDelta(t, 1.0, f.GenreEntropy, 1e-9, "two even genres are one bit")
	assert.Equal(t, 2, f.GenreCount)
	assert.InDelta(t, 0.5, f.TopGenreRatio, 1e-9)
	assert.InDelta(t, 0.5, f.GenreConcentration, 1e-9)
	assert.Zero(t, f.GenreExplorationRate, "no genre is under the 5% exploration threshold")
}

func TestGenreFeaturesSingleGenre(t *testing.T) {
	tracks := []dataset.Track{{TrackID: "t1", Genre: "jazz"}}
	sessions := []dataset.Session{
		sessionAt("u1", "t1", day(0), false),
		sessionAt("u1", "t1", day(1), false),
	}

	rows := Build(sessions, nil, tracks)
	f := rows[0]

	assert.Zero(t, f.GenreEntropy)
	assert.Zero(t, f.GenreExplorationRate)
	assert.InDelta(t, 1.0, f.GenreConcentration, 1e-9)
	assert.InDelta(t, 1.0, f.TopGenreRatio, 1e-9)
}

func TestGenreFeaturesUnknownTracks(t *testing.T) {
	sessions := []dataset.Session{sessionAt("u1", "missing", day(0), false)}

	rows := Build(sessions, nil, nil)
	f := rows[0]

	assert.Zero(t, f.GenreCount)
	assert.InDelta(t, 1.0, f.GenreConcentration, 1e-9)
}

func TestPlaylistFeatures(t *testing.T) {
	s1 := sessionAt("u1", "t1", day(0), true)
	s1.Context = "playlist"
	s2 := sessionAt("u1", "t1", day(1), false)
	s2.Context = "playlist"
	s3 := sessionAt("u1", "t1", day(2), false)

	rows := Build([]dataset.Session{s1, s2, s3}, nil, nil)
	f := rows[0]

	assert.Equal(t, 2, f.PlaylistTrackCount)
	assert.InDelta(t, 2.0/3.0, f.PlaylistSessionRatio, 1e-9)
	assert.InDelta(t, 0.5, f.PlaylistSkipRate, 1e-9)
	assert.InDelta(t, 0.5, f.PlaylistCompletionTendency, 1e-9)
}

func TestTemporalFeatures(t *testing.T) {
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // a Monday
	sessions := []dataset.Session{
		sessionAt("u1", "t1", base.Add(7*time.Hour), false),   // morning
		sessionAt("u1", "t1", base.Add(8*time.Hour), false),   // morning
		sessionAt("u1", "t1", base.Add(19*time.Hour), false),  // evening
		sessionAt("u1", "t1", base.AddDate(0, 0, 5).Add(3*time.Hour), false), // Saturday night
	}

	rows := Build(sessions, nil, nil)
	f := rows[0]

	assert.InDelta(t, 0.25, f.NightRatio, 1e-9)
	assert.InDelta(t, 0.5, f.MorningRatio, 1e-9)
	assert.Zero(t, f.AfternoonRatio)
	assert.InDelta(t, 0.25, f.EveningRatio, 1e-9)
	assert.InDelta(t, 0.25, f.WeekendRatio, 1e-9)
	assert.Greater(t, f.HourEntropy, 0.0)
}

func TestPeakHourSmallestTie(t *testing.T) {
	sessions := []dataset.Session{
		sessionAt("u1", "t1", day(0).Add(5*time.Hour), false),
		sessionAt("u1", "t1", day(1).Add(-7*time.Hour), false),
	}
	// day() base hour is 10:00; the two sessions land at 15:00 and 03:00.
	rows := Build(sessions, nil, nil)
	assert.Equal(t, 3, rows[0].PeakHour)
}

func TestAudioFeatures(t *testing.T) {
	tracks := []dataset.Track{
		{TrackID: "hi", Energy: 0.9, Acousticness: 0.1, Tempo: 140},
		{TrackID: "lo", Energy: 0.3, Acousticness: 0.8, Tempo: 80},
	}
	sessions := []dataset.Session{
		sessionAt("u1", "hi", day(0), false),
		sessionAt("u1", "lo", day(1), false),
		sessionAt("u1", "missing", day(2), false),
	}

	rows := Build(sessions, nil, tracks)
	f := rows[0]

	assert.InDelta(t, 0.6, f.AvgEnergyPref, 1e-9, "means skip unknown tracks")
	assert.InDelta(t, 110, f.AvgTempoPref, 1e-9)
	assert.InDelta(t, 1.0/3.0, f.HighEnergyRatio, 1e-9, "ratios count all sessions")
	assert.InDelta(t, 1.0/3.0, f.MellowMusicRatio, 1e-9)
}

func TestEngagementRecency(t *testing.T) {
	sessions := []dataset.Session{
		sessionAt("early", "t1", day(0), false),
		sessionAt("late", "t1", day(30), false),
	}

	rows := Build(sessions, nil, nil)
	require.Len(t, rows, 2)

	var early, late UserFeatures
	for _, r := range rows {
		if r.UserID == "early" {
			early = r
		} else {
			late = r
		}
	}

	assert.Equal(t, 30, early.DaysSinceLastListen)
	assert.Equal(t, 0, late.DaysSinceLastListen)
	assert.Greater(t, late.EngagementScore, early.EngagementScore)
	assert.GreaterOrEqual(t, early.EngagementScore, 0.0)
	assert.LessOrEqual(t, late.EngagementScore, 1.0)
}

func TestBuildCoversUnionOfUsers(t *testing.T) {
	users := []dataset.User{
		{UserID: "u1", Tier: "premium", Country: "US", AgeGroup: "25-34"},
		{UserID: "u2", Tier: "free", Country: "US", AgeGroup: "18-24"},
	}
	sessions := []dataset.Session{
		sessionAt("u2", "t1", day(0), false),
		sessionAt("u3", "t1", day(0), false),
	}

	rows := Build(sessions, users, nil)
	require.Len(t, rows, 3)
	assert.Equal(t, "u1", rows[0].UserID)
	assert.Equal(t, "u2", rows[1].UserID)
	assert.Equal(t, "u3", rows[2].UserID)

	// The sessionless user still has demographics and zeroed behavior.
	assert.Equal(t, "premium", rows[0].Tier)
	assert.Zero(t, rows[0].SessionCount)
	assert.Zero(t, rows[0].EngagementScore)
}

func TestDemographicEncodings(t *testing.T) {
	users := []dataset.User{
		{UserID: "u1", Tier: "family", Country: "US", AgeGroup: "55+"},
		{UserID: "u2", Tier: "free", Country: "US", AgeGroup: "18-24"},
		{UserID: "u3", Tier: "bogus", Country: "DE", AgeGroup: "unknown"},
		{UserID: "u4"},
	}

	rows := Build(nil, users, nil)
	require.Len(t, rows, 4)

	assert.Equal(t, 3.0, rows[0].TierEncoded)
	assert.Equal(t, 4.0, rows[0].AgeGroupEncoded)
	assert.InDelta(t, 2.0/3.0, rows[0].CountryFrequency, 1e-9)

	assert.Equal(t, 0.0, rows[1].TierEncoded)
	assert.Equal(t, 0.0, rows[1].AgeGroupEncoded)

	assert.Equal(t, 0.0, rows[2].TierEncoded, "unknown tier defaults to 0")
	assert.Equal(t, 1.0, rows[2].AgeGroupEncoded, "unknown age group defaults to 1")
	assert.InDelta(t, 1.0/3.0, rows[2].CountryFrequency, 1e-9)

	assert.InDelta(t, 0.1, rows[3].CountryFrequency, 1e-9, "missing country defaults to 0.1")
}

func TestRowHasNoNaN(t *testing.T) {
	users := []dataset.User{{UserID: "idle", Tier: "free"}}
	sessions := []dataset.Session{sessionAt("active", "t1", day(0), false)}

	rows := Build(sessions, users, nil)
	for _, r := range rows {
		cells := r.Row()
		require.Len(t, cells, len(Columns))
		for i, c := range cells {
			assert.False(t, strings.Contains(c, "NaN"), "column %s is NaN for %s", Columns[i], r.UserID)
			assert.False(t, strings.Contains(c, "Inf"), "column %s is Inf for %s", Columns[i], r.UserID)
		}
	}
}

func TestSampleStd(t *testing.T) {
	assert.Zero(t, sampleStd(nil))
	assert.Zero(t, sampleStd([]float64{5}))
	assert.InDelta(t, math.Sqrt(2), sampleStd([]float64{1, 3}), 1e-9)
}
