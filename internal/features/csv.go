package features

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tunestats/tunestats/internal/dataset"
)

// Columns is the stable output column order of the user feature table.
var Columns = []string{
	"user_id",
	"current_streak", "max_streak", "avg_streak", "streak_count", "active_days", "active_days_ratio",
	"genre_entropy", "genre_count", "top_genre_ratio", "genre_exploration_rate", "genre_concentration",
	"playlist_session_ratio", "playlist_track_count", "playlist_skip_rate", "playlist_completion_tendency",
	"total_listen_time_ms", "avg_listen_duration_ms", "std_listen_duration_ms", "avg_track_duration_ms",
	"skip_rate", "total_skips", "session_count", "unique_tracks", "avg_listen_ratio",
	"avg_tracks_per_session", "total_listen_hours",
	"night_ratio", "morning_ratio", "afternoon_ratio", "evening_ratio", "weekend_ratio",
	"peak_hour", "hour_entropy",
	"avg_tempo_pref", "tempo_variance", "avg_energy_pref", "energy_variance",
	"avg_danceability_pref", "danceability_variance", "avg_valence_pref", "valence_variance",
	"avg_acousticness_pref", "acousticness_variance", "high_energy_ratio", "mellow_music_ratio",
	"days_since_first_listen", "days_since_last_listen", "avg_daily_sessions", "engagement_score",
	"total_events",
	"tier", "country", "age_group",
	"tier_encoded", "age_group_encoded", "country_frequency",
}

func ff(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Row flattens a feature record following the Columns order.
func (f *UserFeatures) Row() []string {
	return []string{
		f.UserID,
		strconv.Itoa(f.CurrentStreak), strconv.Itoa(f.MaxStreak), ff(f.AvgStreak),
		strconv.Itoa(f.StreakCount), strconv.Itoa(f.ActiveDays), ff(f.ActiveDaysRatio),
		ff(f.GenreEntropy), strconv.Itoa(f.GenreCount), ff(f.TopGenreRatio),
		ff(f.GenreExplorationRate), ff(f.GenreConcentration),
		ff(f.PlaylistSessionRatio), strconv.Itoa(f.PlaylistTrackCount), ff(f.PlaylistSkipRate),
		ff(f.PlaylistCompletionTendency),
		ff(f.TotalListenTimeMs), ff(f.AvgListenDurationMs), ff(f.StdListenDurationMs),
		ff(f.AvgTrackDurationMs),
		ff(f.SkipRate), strconv.Itoa(f.TotalSkips), strconv.Itoa(f.SessionCount),
		strconv.Itoa(f.UniqueTracks), ff(f.AvgListenRatio),
		ff(f.AvgTracksPerSession), ff(f.TotalListenHours),
		ff(f.NightRatio), ff(f.MorningRatio), ff(f.AfternoonRatio), ff(f.EveningRatio),
		ff(f.WeekendRatio),
		strconv.Itoa(f.PeakHour), ff(f.HourEntropy),
		ff(f.AvgTempoPref), ff(f.TempoVariance), ff(f.AvgEnergyPref), ff(f.EnergyVariance),
		ff(f.AvgDanceabilityPref), ff(f.DanceabilityVariance), ff(f.AvgValencePref), ff(f.ValenceVariance),
		ff(f.AvgAcousticnessPref), ff(f.AcousticnessVariance), ff(f.HighEnergyRatio), ff(f.MellowMusicRatio),
		strconv.Itoa(f.DaysSinceFirstListen), strconv.Itoa(f.DaysSinceLastListen),
		ff(f.AvgDailySessions), ff(f.EngagementScore),
		strconv.Itoa(f.TotalEvents),
		f.Tier, f.Country, f.AgeGroup,
		ff(f.TierEncoded), ff(f.AgeGroupEncoded), ff(f.CountryFrequency),
	}
}

// WriteCSV writes the feature table with its header row.
func WriteCSV(w io.Writer, rows []UserFeatures) error {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, Columns)
	for i := range rows {
		out = append(out, rows[i].Row())
	}
	return dataset.WriteRows(w, out)
}

// SaveCSV writes the feature table to a file.
func SaveCSV(path string, rows []UserFeatures) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return WriteCSV(f, rows)
}
