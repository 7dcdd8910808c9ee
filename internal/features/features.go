// Package features engineers per-user behavioral features from listening
// sessions: streaks, genre diversity, playlist behavior, session stats,
// temporal patterns, audio preferences and engagement scores.
package features

import (
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/tunestats/tunestats/internal/dataset"
)

// UserFeatures is one output row: every engineered feature for a single
// user. Numeric fields default to zero for users with no supporting data,
// mirroring the fill-with-zero contract of the aggregator.
type UserFeatures struct {
	UserID string

	// Listening streaks
	CurrentStreak   int
	MaxStreak       int
	AvgStreak       float64
	StreakCount     int
	ActiveDays      int
	ActiveDaysRatio float64

	// Genre diversity
	GenreEntropy         float64
	GenreCount           int
	TopGenreRatio        float64
	GenreExplorationRate float64
	GenreConcentration   float64

	// Playlist behavior
	PlaylistSessionRatio       float64
	PlaylistTrackCount         int
	PlaylistSkipRate           float64
	PlaylistCompletionTendency float64

	// Session stats
	TotalListenTimeMs   float64
	AvgListenDurationMs float64
	StdListenDurationMs float64
	AvgTrackDurationMs  float64
	SkipRate            float64
	TotalSkips          int
	SessionCount        int
	UniqueTracks        int
	AvgListenRatio      float64
	AvgTracksPerSession float64
	TotalListenHours    float64

	// Temporal patterns
	NightRatio     float64
	MorningRatio   float64
	AfternoonRatio float64
	EveningRatio   float64
	WeekendRatio   float64
	PeakHour       int
	HourEntropy    float64

	// Audio preferences
	AvgTempoPref         float64
	TempoVariance        float64
	AvgEnergyPref        float64
	EnergyVariance       float64
	AvgDanceabilityPref  float64
	DanceabilityVariance float64
	AvgValencePref       float64
	ValenceVariance      float64
	AvgAcousticnessPref  float64
	AcousticnessVariance float64
	HighEnergyRatio      float64
	MellowMusicRatio     float64

	// Engagement
	DaysSinceFirstListen int
	DaysSinceLastListen  int
	AvgDailySessions     float64
	EngagementScore      float64
	TotalEvents          int

	// Demographics
	Tier             string
	Country          string
	AgeGroup         string
	TierEncoded      float64
	AgeGroupEncoded  float64
	CountryFrequency float64
}

var tierOrdinal = map[string]float64{
	"free":    0,
	"student": 1,
	"premium": 2,
	"family":  3,
}

var ageGroupOrdinal = map[string]float64{
	"18-24": 0,
	"25-34": 1,
	"35-44": 2,
	"45-54": 3,
	"55+":   4,
}

// Build computes one feature row per user. The output covers the union of
// users in the users table and users appearing in sessions; users without
// sessions get zero-valued behavioral features. Rows are sorted by user ID.
func Build(sessions []dataset.Session, users []dataset.User, tracks []dataset.Track) []UserFeatures {
	log.Info("engineering user features")

	trackIdx := make(map[string]*dataset.Track, len(tracks))
	for i := range tracks {
		trackIdx[tracks[i].TrackID] = &tracks[i]
	}

	byUser := make(map[string][]dataset.Session)
	for _, s := range sessions {
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	userInfo := make(map[string]*dataset.User, len(users))
	ids := make(map[string]struct{}, len(users)+len(byUser))
	for i := range users {
		userInfo[users[i].UserID] = &users[i]
		ids[users[i].UserID] = struct{}{}
	}
	for id := range byUser {
		ids[id] = struct{}{}
	}

	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	globalMax := dataset.MaxTimestamp(sessions)

	rows := make([]UserFeatures, 0, len(ordered))
	for _, id := range ordered {
		f := UserFeatures{UserID: id}
		if ss := byUser[id]; len(ss) > 0 {
			f.streakFeatures(ss)
			f.genreFeatures(ss, trackIdx)
			f.playlistFeatures(ss)
			f.sessionFeatures(ss)
			f.temporalFeatures(ss)
			f.audioFeatures(ss, trackIdx)
			f.engagementFeatures(ss, globalMax)
		}
		if u := userInfo[id]; u != nil {
			f.Tier = u.Tier
			f.Country = u.Country
			f.AgeGroup = u.AgeGroup
		}
		rows = append(rows, f)
	}

	encodeDemographics(rows)

	log.WithField("users", len(rows)).Info("feature engineering complete")
	return rows
}

// dayNumber buckets a timestamp into a calendar day so that consecutive
// days differ by exactly 1.
func dayNumber(tsec int64) int64 {
	return tsec / 86400
}

func (f *UserFeatures) streakFeatures(sessions []dataset.Session) {
	seen := make(map[int64]struct{})
	for _, s := range sessions {
		seen[dayNumber(s.Timestamp.Unix())] = struct{}{}
	}
	days := make([]int64, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	// A streak is a maximal run of consecutive calendar days.
	var streaks []int
	run := 1
	for i := 1; i < len(days); i++ {
		if days[i]-days[i-1] == 1 {
			run++
		} else {
			streaks = append(streaks, run)
			run = 1
		}
	}
	streaks = append(streaks, run)

	sum := 0
	max := 0
	for _, s := range streaks {
		sum += s
		if s > max {
			max = s
		}
	}

	span := days[len(days)-1] - days[0] + 1

	f.CurrentStreak = streaks[len(streaks)-1]
	f.MaxStreak = max
	f.AvgStreak = float64(sum) / float64(len(streaks))
	f.StreakCount = len(streaks)
	f.ActiveDays = len(days)
	if span > 0 {
		f.ActiveDaysRatio = float64(len(days)) / float64(span)
	}
}

func (f *UserFeatures) genreFeatures(sessions []dataset.Session, trackIdx map[string]*dataset.Track) {
	counts := make(map[string]int)
	total := 0
	for _, s := range sessions {
		t, ok := trackIdx[s.TrackID]
		if !ok || t.Genre == "" {
			continue
		}
		counts[t.Genre]++
		total++
	}
	if total == 0 {
		f.GenreConcentration = 1
		return
	}

	probs := make([]float64, 0, len(counts))
	maxCount := 0
	explored := 0
	for _, c := range counts {
		p := float64(c) / float64(total)
		probs = append(probs, p)
		if c > maxCount {
			maxCount = c
		}
		if p < 0.05 {
			explored++
		}
	}

	if len(probs) > 1 {
		// stat.Entropy is in nats; the feature is defined in bits.
		f.GenreEntropy = stat.Entropy(probs) / math.Ln2
		f.GenreExplorationRate = float64(explored) / float64(len(probs))
	}
	f.GenreCount = len(counts)
	f.TopGenreRatio = float64(maxCount) / float64(total)
	hhi := 0.0
	for _, p := range probs {
		hhi += p * p
	}
	f.GenreConcentration = hhi
}

func (f *UserFeatures) playlistFeatures(sessions []dataset.Session) {
	playlistCount := 0
	skips := 0
	for _, s := range sessions {
		if s.Context == "playlist" {
			playlistCount++
			if s.Skipped {
				skips++
			}
		}
	}

	f.PlaylistTrackCount = playlistCount
	f.PlaylistSessionRatio = float64(playlistCount) / float64(len(sessions))
	if playlistCount > 0 {
		f.PlaylistSkipRate = float64(skips) / float64(playlistCount)
	}
	f.PlaylistCompletionTendency = 1 - f.PlaylistSkipRate
}

// sampleStd is the unbiased standard deviation, 0 when undefined.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := stat.StdDev(xs, nil)
	if math.IsNaN(sd) {
		return 0
	}
	return sd
}

func (f *UserFeatures) sessionFeatures(sessions []dataset.Session) {
	listens := make([]float64, 0, len(sessions))
	var trackDurSum float64
	sessionIDs := make(map[string]struct{})
	trackIDs := make(map[string]struct{})
	skips := 0

	for _, s := range sessions {
		listens = append(listens, float64(s.ListenDurationMs))
		trackDurSum += float64(s.TrackDurationMs)
		sessionIDs[s.SessionID] = struct{}{}
		trackIDs[s.TrackID] = struct{}{}
		if s.Skipped {
			skips++
		}
	}

	n := float64(len(sessions))
	f.TotalListenTimeMs = floats.Sum(listens)
	f.AvgListenDurationMs = f.TotalListenTimeMs / n
	f.StdListenDurationMs = sampleStd(listens)
	f.AvgTrackDurationMs = trackDurSum / n
	f.SkipRate = float64(skips) / n
	f.TotalSkips = skips
	f.SessionCount = len(sessionIDs)
	f.UniqueTracks = len(trackIDs)
	if f.AvgTrackDurationMs > 0 {
		f.AvgListenRatio = clip(f.AvgListenDurationMs/f.AvgTrackDurationMs, 0, 1)
	}
	if f.SessionCount > 0 {
		f.AvgTracksPerSession = n / float64(f.SessionCount)
	}
	f.TotalListenHours = f.TotalListenTimeMs / (1000 * 60 * 60)
}

func clip(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

// weekday with Monday=0 so that weekend days are 5 and 6.
func weekdayMondayZero(wd int) int {
	return (wd + 6) % 7
}

func (f *UserFeatures) temporalFeatures(sessions []dataset.Session) {
	var hourCounts [24]int
	weekend := 0
	for _, s := range sessions {
		hourCounts[s.Timestamp.Hour()]++
		if weekdayMondayZero(int(s.Timestamp.Weekday())) >= 5 {
			weekend++
		}
	}

	n := float64(len(sessions))
	night, morning, afternoon, evening := 0, 0, 0, 0
	for h, c := range hourCounts {
		switch {
		case h < 6:
			night += c
		case h < 12:
			morning += c
		case h < 18:
			afternoon += c
		default:
			evening += c
		}
	}
	f.NightRatio = float64(night) / n
	f.MorningRatio = float64(morning) / n
	f.AfternoonRatio = float64(afternoon) / n
	f.EveningRatio = float64(evening) / n
	f.WeekendRatio = float64(weekend) / n

	// Statistical mode of the session hour, smallest hour on ties. 12 is the
	// documented default but every non-empty session set has a mode.
	peak, peakCount := 12, 0
	for h := 0; h < 24; h++ {
		if hourCounts[h] > peakCount {
			peak, peakCount = h, hourCounts[h]
		}
	}
	f.PeakHour = peak

	// Shannon entropy over the 24-hour distribution; zero-probability hours
	// are excluded to avoid -Inf in the log term.
	entropy := 0.0
	for _, c := range hourCounts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	f.HourEntropy = entropy
}

func (f *UserFeatures) audioFeatures(sessions []dataset.Session, trackIdx map[string]*dataset.Track) {
	attrs := [5][]float64{}
	highEnergy := 0
	mellow := 0
	for _, s := range sessions {
		t, ok := trackIdx[s.TrackID]
		if !ok {
			continue
		}
		attrs[0] = append(attrs[0], t.Tempo)
		attrs[1] = append(attrs[1], t.Energy)
		attrs[2] = append(attrs[2], t.Danceability)
		attrs[3] = append(attrs[3], t.Valence)
		attrs[4] = append(attrs[4], t.Acousticness)
		if t.Energy > 0.7 {
			highEnergy++
		}
		if t.Energy < 0.4 && t.Acousticness > 0.5 {
			mellow++
		}
	}
	if len(attrs[0]) == 0 {
		return
	}

	means := [5]float64{}
	stds := [5]float64{}
	for i := range attrs {
		means[i] = stat.Mean(attrs[i], nil)
		stds[i] = sampleStd(attrs[i])
	}

	f.AvgTempoPref, f.TempoVariance = means[0], stds[0]
	f.AvgEnergyPref, f.EnergyVariance = means[1], stds[1]
	f.AvgDanceabilityPref, f.DanceabilityVariance = means[2], stds[2]
	f.AvgValencePref, f.ValenceVariance = means[3], stds[3]
	f.AvgAcousticnessPref, f.AcousticnessVariance = means[4], stds[4]

	// Ratios are over all of the user's sessions; sessions with an unknown
	// track count against the denominator only.
	n := float64(len(sessions))
	f.HighEnergyRatio = float64(highEnergy) / n
	f.MellowMusicRatio = float64(mellow) / n
}

func (f *UserFeatures) engagementFeatures(sessions []dataset.Session, globalMax time.Time) {
	first := sessions[0].Timestamp
	last := sessions[0].Timestamp
	for _, s := range sessions[1:] {
		if s.Timestamp.Before(first) {
			first = s.Timestamp
		}
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}

	f.TotalEvents = len(sessions)
	f.DaysSinceFirstListen = int(globalMax.Sub(first).Hours() / 24)
	f.DaysSinceLastListen = int(globalMax.Sub(last).Hours() / 24)

	spanDays := int(last.Sub(first).Hours()/24) + 1
	f.AvgDailySessions = clip(float64(f.TotalEvents)/float64(spanDays), 0, 100)

	recency := 1 - clip(float64(f.DaysSinceLastListen)/365, 0, 1)
	frequency := clip(f.AvgDailySessions/10, 0, 1)
	volume := clip(math.Log1p(float64(f.TotalEvents))/10, 0, 1)
	f.EngagementScore = 0.3*recency + 0.4*frequency + 0.3*volume
}

// encodeDemographics maps tier and age group to their ordinal encodings and
// the country to its frequency share across the output rows. Defaults:
// tier 0, age group 1, country frequency 0.1.
func encodeDemographics(rows []UserFeatures) {
	countryCounts := make(map[string]int)
	known := 0
	for i := range rows {
		if rows[i].Country != "" {
			countryCounts[rows[i].Country]++
			known++
		}
	}

	for i := range rows {
		r := &rows[i]
		if v, ok := tierOrdinal[r.Tier]; ok {
			r.TierEncoded = v
		}
		if v, ok := ageGroupOrdinal[r.AgeGroup]; ok {
			r.AgeGroupEncoded = v
		} else {
			r.AgeGroupEncoded = 1
		}
		if r.Country != "" && known > 0 {
			r.CountryFrequency = float64(countryCounts[r.Country]) / float64(known)
		} else {
			r.CountryFrequency = 0.1
		}
	}
}
