package dashboard

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunestats/tunestats/internal/dataset"
)

func sess(user, track, context string, ts time.Time, skipped bool) dataset.Session {
	return dataset.Session{
		SessionID: user + ts.Format("20060102T15"),
		UserID:    user,
		TrackID:   track,
		Context:   context,
		Timestamp: ts,
		Skipped:   skipped,
	}
}

func TestDAUMAU(t *testing.T) {
	jan1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	jan2 := jan1.AddDate(0, 0, 1)
	feb1 := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	sessions := []dataset.Session{
		sess("u1", "t1", "playlist", jan1, false),
		sess("u1", "t2", "playlist", jan1.Add(time.Hour), false), // same user, same day
		sess("u2", "t1", "album", jan1, true),
		sess("u1", "t1", "radio", jan2, false),
		sess("u3", "t1", "playlist", feb1, false),
	}

	out := DAUMAU(sessions)
	require.Len(t, out, 3)

	assert.Equal(t, "2024-01-01", out[0].Date)
	assert.Equal(t, 2, out[0].DAU)
	assert.Equal(t, 2, out[0].MAU)
	assert.InDelta(t, 1.0, out[0].DAUMAU, 1e-9)

	assert.Equal(t, "2024-01-02", out[1].Date)
	assert.Equal(t, 1, out[1].DAU)
	assert.Equal(t, 2, out[1].MAU, "monthly actives span the whole month")
	assert.InDelta(t, 0.5, out[1].DAUMAU, 1e-9)

	assert.Equal(t, "2024-02", out[2].Month)
	assert.Equal(t, 1, out[2].MAU)
}

func TestSkipRates(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	tracks := []dataset.Track{
		{TrackID: "t1", Genre: "rock"},
		{TrackID: "t2", Genre: "jazz"},
	}
	sessions := []dataset.Session{
		sess("u1", "t1", "playlist", ts, true),
		sess("u2", "t1", "playlist", ts, false),
		sess("u3", "t2", "album", ts.Add(14*time.Hour), false),
		sess("u4", "missing", "album", ts, true),
	}

	rates := SkipRates(sessions, tracks)

	byGenre := rates["by_genre"]
	require.Len(t, byGenre, 3)
	// Keys come back sorted.
	assert.Equal(t, "jazz", byGenre[0].Key)
	assert.Equal(t, "rock", byGenre[1].Key)
	assert.Equal(t, "unknown", byGenre[2].Key)
	assert.InDelta(t, 0.5, byGenre[1].SkipRate, 1e-9)
	assert.Equal(t, 2, byGenre[1].Sessions)
	assert.InDelta(t, 1.0, byGenre[2].SkipRate, 1e-9)

	byHour := rates["by_hour"]
	require.Len(t, byHour, 2)
	assert.Equal(t, "09", byHour[0].Key)
	assert.Equal(t, "23", byHour[1].Key)
	assert.Equal(t, 3, byHour[0].Sessions)

	byContext := rates["by_context"]
	require.Len(t, byContext, 2)
	assert.Equal(t, "album", byContext[0].Key)
	assert.InDelta(t, 0.5, byContext[0].SkipRate, 1e-9)
}

func TestRetentionCurve(t *testing.T) {
	signup := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []dataset.User{
		{UserID: "u1", SignupDate: signup},
		{UserID: "u2", SignupDate: signup},
	}
	sessions := []dataset.Session{
		sess("u1", "t", "playlist", signup.Add(2*time.Hour), false),       // day 0
		sess("u2", "t", "playlist", signup.AddDate(0, 0, 1), false),       // day 1
		sess("u1", "t", "playlist", signup.AddDate(0, 0, 7), false),       // day 7
		sess("u1", "t", "playlist", signup.AddDate(0, 0, 40), false),      // past horizon
		sess("ghost", "t", "playlist", signup, false),                     // unknown user
	}

	curve := RetentionCurve(users, sessions, 7)
	require.Len(t, curve, 8)

	assert.Equal(t, 1, curve[0].Users)
	assert.InDelta(t, 0.5, curve[0].Retention, 1e-9)
	assert.Equal(t, 1, curve[1].Users)
	assert.Zero(t, curve[2].Users)
	assert.Equal(t, 1, curve[7].Users)
}

func TestRetentionCurveNoUsers(t *testing.T) {
	curve := RetentionCurve(nil, nil, 3)
	require.Len(t, curve, 4)
	for _, p := range curve {
		assert.Zero(t, p.Users)
		assert.Zero(t, p.Retention)
	}
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dashboards")

	signup := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	users := []dataset.User{{UserID: "u1", SignupDate: signup}}
	tracks := []dataset.Track{{TrackID: "t1", Genre: "rock"}}
	sessions := []dataset.Session{
		sess("u1", "t1", "playlist", signup.Add(10*time.Hour), true),
	}

	err := Export(dir,
		DAUMAU(sessions),
		SkipRates(sessions, tracks),
		RetentionCurve(users, sessions, 7))
	require.NoError(t, err)

	for _, name := range []string{
		"dau_mau_metrics.csv",
		"skip_rates_by_genre.csv",
		"skip_rates_by_hour.csv",
		"skip_rates_by_context.csv",
		"retention_curve.csv",
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.NotEmpty(t, data, name)
	}

	genreCSV, err := os.ReadFile(filepath.Join(dir, "skip_rates_by_genre.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(genreCSV), "genre,skip_rate,sessions")
	assert.Contains(t, string(genreCSV), "rock,1.000000,1")
}

func TestRenderSummary(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tracks := []dataset.Track{{TrackID: "t1", Genre: "rock"}}
	sessions := []dataset.Session{
		sess("u1", "t1", "playlist", ts, false),
		sess("u2", "t1", "playlist", ts, true),
	}

	var buf bytes.Buffer
	err := RenderSummary(&buf, DAUMAU(sessions), SkipRates(sessions, tracks))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "2024-01-01")
	assert.Contains(t, out, "rock")
	assert.Contains(t, out, "50.0%")
}
