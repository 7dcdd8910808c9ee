package features

import (
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/tunestats/tunestats/internal/dataset"
)

// Matrix is a dense feature matrix with named columns, the model input
// shape shared by the skip predictor and the session forecaster.
type Matrix struct {
	Names []string
	X     [][]float64
	Y     []float64
}

// BuildSkipMatrix produces one row per session for skip prediction: track
// audio features, temporal indicators, one-hot context/device, and the
// user's and track's historical skip behavior. The label is the skip flag.
func BuildSkipMatrix(sessions []dataset.Session, tracks []dataset.Track) *Matrix {
	trackIdx := make(map[string]*dataset.Track, len(tracks))
	for i := range tracks {
		trackIdx[tracks[i].TrackID] = &tracks[i]
	}

	// Historical rates per user and per track.
	userSkips := make(map[string]int)
	userCounts := make(map[string]int)
	trackSkips := make(map[string]int)
	trackCounts := make(map[string]int)
	contexts := make(map[string]struct{})
	devices := make(map[string]struct{})
	for _, s := range sessions {
		userCounts[s.UserID]++
		trackCounts[s.TrackID]++
		if s.Skipped {
			userSkips[s.UserID]++
			trackSkips[s.TrackID]++
		}
		contexts[s.Context] = struct{}{}
		devices[s.Device] = struct{}{}
	}

	contextNames := sortedKeys(contexts)
	deviceNames := sortedKeys(devices)

	names := []string{
		"tempo", "energy", "danceability", "valence", "acousticness",
		"instrumentalness", "liveness", "speechiness", "loudness",
		"hour", "is_weekend", "is_morning", "is_evening",
		"user_historical_skip_rate", "user_listen_count", "track_skip_rate",
	}
	for _, c := range contextNames {
		names = append(names, "context_"+c)
	}
	for _, d := range deviceNames {
		names = append(names, "device_"+d)
	}

	m := &Matrix{Names: names}
	for _, s := range sessions {
		row := make([]float64, 0, len(names))
		if t := trackIdx[s.TrackID]; t != nil {
			row = append(row, t.Tempo, t.Energy, t.Danceability, t.Valence, t.Acousticness,
				t.Instrumentalness, t.Liveness, t.Speechiness, t.Loudness)
		} else {
			row = append(row, 0, 0, 0, 0, 0, 0, 0, 0, 0)
		}

		hour := s.Timestamp.Hour()
		row = append(row, float64(hour))
		row = append(row, indicator(weekdayMondayZero(int(s.Timestamp.Weekday())) >= 5))
		row = append(row, indicator(hour >= 6 && hour < 12))
		row = append(row, indicator(hour >= 18))

		row = append(row, float64(userSkips[s.UserID])/float64(userCounts[s.UserID]))
		row = append(row, float64(userCounts[s.UserID]))
		row = append(row, float64(trackSkips[s.TrackID])/float64(trackCounts[s.TrackID]))

		for _, c := range contextNames {
			row = append(row, indicator(s.Context == c))
		}
		for _, d := range deviceNames {
			row = append(row, indicator(s.Device == d))
		}

		m.X = append(m.X, row)
		m.Y = append(m.Y, indicator(s.Skipped))
	}

	log.WithFields(log.Fields{"features": len(names), "rows": len(m.X)}).
		Info("built skip prediction matrix")
	return m
}

// BuildDurationMatrix aggregates sessions per user for session-duration
// forecasting. The target is the user's mean listen duration.
func BuildDurationMatrix(sessions []dataset.Session) *Matrix {
	type acc struct {
		durations []float64
		skips     int
		hourSum   int
	}
	byUser := make(map[string]*acc)
	for _, s := range sessions {
		a := byUser[s.UserID]
		if a == nil {
			a = &acc{}
			byUser[s.UserID] = a
		}
		a.durations = append(a.durations, float64(s.ListenDurationMs))
		if s.Skipped {
			a.skips++
		}
		a.hourSum += s.Timestamp.Hour()
	}

	ids := make([]string, 0, len(byUser))
	for id := range byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &Matrix{Names: []string{"session_count", "duration_std", "skip_rate", "avg_hour"}}
	for _, id := range ids {
		a := byUser[id]
		n := float64(len(a.durations))
		m.X = append(m.X, []float64{
			n,
			sampleStd(a.durations),
			float64(a.skips) / n,
			float64(a.hourSum) / n,
		})
		m.Y = append(m.Y, floats.Sum(a.durations)/n)
	}
	return m
}

func indicator(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
