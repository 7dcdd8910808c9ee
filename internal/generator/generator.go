// Package generator produces seeded synthetic streaming data: users, a
// track catalog with audio features, listening sessions with a behavioral
// skip model, playlists, and experiment assignments.
package generator

import (
	"fmt"
	"math"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/tunestats/tunestats/internal/abtest"
	"github.com/tunestats/tunestats/internal/dataset"
)

// Config sizes the generated dataset. The zero value is not usable; call
// DefaultConfig and override what you need.
type Config struct {
	NumUsers     int
	NumSessions  int
	NumTracks    int
	NumPlaylists int
	Seed         uint64
	StartDate    time.Time
	EndDate      time.Time
}

func DefaultConfig() Config {
	return Config{
		NumUsers:     1000,
		NumSessions:  50000,
		NumTracks:    5000,
		NumPlaylists: 200,
		Seed:         42,
		StartDate:    time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

var (
	genres = []string{
		"pop", "rock", "hip-hop", "electronic", "jazz",
		"classical", "r&b", "country", "indie", "metal",
	}

	tiers       = []string{"free", "premium", "family", "student"}
	tierWeights = []float64{0.5, 0.3, 0.15, 0.05}

	countries = []string{"US", "UK", "DE", "FR", "JP", "BR", "CA", "AU", "MX", "ES"}

	ageGroups  = []string{"18-24", "25-34", "35-44", "45-54", "55+"}
	ageWeights = []float64{0.25, 0.35, 0.20, 0.12, 0.08}

	genders       = []string{"M", "F", "Other"}
	genderWeights = []float64{0.48, 0.48, 0.04}

	contexts       = []string{"playlist", "album", "radio", "search", "recommendation"}
	contextWeights = []float64{0.4, 0.2, 0.15, 0.1, 0.15}

	devices       = []string{"mobile", "desktop", "tablet", "smart_speaker"}
	deviceWeights = []float64{0.55, 0.30, 0.10, 0.05}
)

// hourWeights peaks in the evening and bottoms out overnight.
var hourWeights = []float64{
	0.01, 0.005, 0.003, 0.002, 0.003, 0.01,
	0.02, 0.04, 0.06, 0.06, 0.05, 0.05,
	0.06, 0.06, 0.05, 0.06, 0.07, 0.08,
	0.10, 0.11, 0.10, 0.08, 0.05, 0.02,
}

// Generator builds all synthetic tables from one seeded random source.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) (*Generator, error) {
	if cfg.NumUsers <= 0 || cfg.NumTracks <= 0 || cfg.NumSessions <= 0 {
		return nil, fmt.Errorf("generator config: users, tracks and sessions must be positive")
	}
	if !cfg.EndDate.After(cfg.StartDate) {
		return nil, fmt.Errorf("generator config: end date %s is not after start date %s",
			cfg.EndDate.Format("2006-01-02"), cfg.StartDate.Format("2006-01-02"))
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}, nil
}

// GenerateAll produces the full dataset bundle.
func (g *Generator) GenerateAll() *dataset.Dataset {
	log.WithField("seed", g.cfg.Seed).Info("starting data generation")

	users := g.Users()
	tracks := g.Tracks()
	sessions := g.Sessions(users, tracks)
	playlists, playlistTracks := g.Playlists(users, tracks)

	log.WithFields(log.Fields{
		"users":    len(users),
		"tracks":   len(tracks),
		"sessions": len(sessions),
	}).Info("data generation complete")

	return &dataset.Dataset{
		Users:          users,
		Tracks:         tracks,
		Sessions:       sessions,
		Playlists:      playlists,
		PlaylistTracks: playlistTracks,
	}
}

// Users generates user profiles. Signup dates are exponentially weighted
// towards the recent end of the date range.
func (g *Generator) Users() []dataset.User {
	days := int(g.cfg.EndDate.Sub(g.cfg.StartDate).Hours() / 24)
	signupWeights := make([]float64, days)
	for i := range signupWeights {
		signupWeights[i] = math.Exp(-2 + 2*float64(i)/float64(days-1))
	}

	sessionPref := distuv.LogNormal{Mu: 3.5, Sigma: 0.5, Src: g.rng}
	skipTendency := distuv.Beta{Alpha: 2, Beta: 5, Src: g.rng}

	users := make([]dataset.User, g.cfg.NumUsers)
	for i := range users {
		users[i] = dataset.User{
			UserID:               fmt.Sprintf("user_%07d", i),
			SignupDate:           g.cfg.StartDate.AddDate(0, 0, g.weightedIndex(signupWeights)),
			Tier:                 g.weightedChoice(tiers, tierWeights),
			Country:              countries[g.rng.Intn(len(countries))],
			AgeGroup:             g.weightedChoice(ageGroups, ageWeights),
			Gender:               g.weightedChoice(genders, genderWeights),
			PreferredGenre:       genres[g.rng.Intn(len(genres))],
			AvgSessionLengthPref: sessionPref.Rand(),
			SkipTendency:         skipTendency.Rand(),
		}
	}
	log.WithField("users", len(users)).Info("generated users")
	return users
}

// Tracks generates the catalog with audio features shaped like streaming
// catalog distributions.
func (g *Generator) Tracks() []dataset.Track {
	tempo := distuv.Normal{Mu: 120, Sigma: 25, Src: g.rng}
	energy := distuv.Beta{Alpha: 2, Beta: 2, Src: g.rng}
	danceability := distuv.Beta{Alpha: 2.5, Beta: 2, Src: g.rng}
	valence := distuv.Beta{Alpha: 2, Beta: 2, Src: g.rng}
	acousticness := distuv.Beta{Alpha: 1.5, Beta: 3, Src: g.rng}
	instrumentalness := distuv.Beta{Alpha: 1, Beta: 5, Src: g.rng}
	liveness := distuv.Beta{Alpha: 1.5, Beta: 5, Src: g.rng}
	speechiness := distuv.Beta{Alpha: 1.5, Beta: 8, Src: g.rng}
	loudness := distuv.Normal{Mu: -8, Sigma: 4, Src: g.rng}
	duration := distuv.LogNormal{Mu: 12.2, Sigma: 0.3, Src: g.rng}
	popularity := distuv.Beta{Alpha: 1.5, Beta: 3, Src: g.rng}

	yearWeights := make([]float64, 35)
	for i := range yearWeights {
		yearWeights[i] = math.Exp(-2 + 2*float64(i)/34)
	}

	tracks := make([]dataset.Track, g.cfg.NumTracks)
	for i := range tracks {
		tracks[i] = dataset.Track{
			TrackID:          fmt.Sprintf("track_%07d", i),
			Tempo:            clamp(tempo.Rand(), 60, 200),
			Energy:           energy.Rand(),
			Danceability:     danceability.Rand(),
			Valence:          valence.Rand(),
			Acousticness:     acousticness.Rand(),
			Instrumentalness: instrumentalness.Rand(),
			Liveness:         liveness.Rand(),
			Speechiness:      speechiness.Rand(),
			Loudness:         clamp(loudness.Rand(), -20, 0),
			DurationMs:       int64(clamp(duration.Rand(), 120000, 480000)),
			Genre:            genres[g.rng.Intn(len(genres))],
			ArtistID:         fmt.Sprintf("artist_%05d", i%5000),
			ReleaseYear:      1990 + g.weightedIndex(yearWeights),
			Popularity:       popularity.Rand() * 100,
		}
	}
	log.WithField("tracks", len(tracks)).Info("generated tracks")
	return tracks
}

// Sessions generates listening events. The skip decision follows the user's
// skip tendency, reduced when the track matches their preferred genre and
// amplified for extreme-energy tracks; listen duration is a beta fraction of
// the track length, short when skipped and long otherwise.
func (g *Generator) Sessions(users []dataset.User, tracks []dataset.Track) []dataset.Session {
	days := int(g.cfg.EndDate.Sub(g.cfg.StartDate).Hours() / 24)
	skippedFrac := distuv.Beta{Alpha: 2, Beta: 5, Src: g.rng}
	playedFrac := distuv.Beta{Alpha: 8, Beta: 2, Src: g.rng}

	sessions := make([]dataset.Session, g.cfg.NumSessions)
	for i := range sessions {
		user := users[g.rng.Intn(len(users))]
		track := tracks[g.rng.Intn(len(tracks))]

		ts := g.cfg.StartDate.Add(
			time.Duration(g.rng.Intn(days))*24*time.Hour +
				time.Duration(g.weightedIndex(hourWeights))*time.Hour +
				time.Duration(g.rng.Intn(60))*time.Minute)

		genreMatch := 0.7
		if track.Genre == user.PreferredGenre {
			genreMatch = 1.0
		}
		skipProb := user.SkipTendency / genreMatch
		if track.Energy > 0.8 || track.Energy < 0.2 {
			skipProb *= 1.2
		}
		skipped := g.rng.Float64() < skipProb

		var listenMs int64
		if skipped {
			listenMs = int64(float64(track.DurationMs) * skippedFrac.Rand())
		} else {
			listenMs = int64(float64(track.DurationMs) * playedFrac.Rand())
		}

		s := dataset.Session{
			SessionID:        fmt.Sprintf("sess_%010d", i),
			UserID:           user.UserID,
			TrackID:          track.TrackID,
			Timestamp:        ts,
			ListenDurationMs: listenMs,
			TrackDurationMs:  track.DurationMs,
			Skipped:          skipped,
			Context:          g.weightedChoice(contexts, contextWeights),
			Device:           g.weightedChoice(devices, deviceWeights),
		}
		if skipped {
			s.SkipTimeMs = listenMs
		}
		sessions[i] = s

		if (i+1)%100000 == 0 {
			log.WithField("sessions", i+1).Info("session generation progress")
		}
	}
	log.WithField("sessions", len(sessions)).Info("generated sessions")
	return sessions
}

// Playlists generates playlists of 10-99 distinct tracks each.
func (g *Generator) Playlists(users []dataset.User, tracks []dataset.Track) ([]dataset.Playlist, []dataset.PlaylistTrack) {
	days := int(g.cfg.EndDate.Sub(g.cfg.StartDate).Hours() / 24)

	playlists := make([]dataset.Playlist, g.cfg.NumPlaylists)
	var playlistTracks []dataset.PlaylistTrack
	for i := range playlists {
		id := fmt.Sprintf("playlist_%06d", i)
		numTracks := 10 + g.rng.Intn(90)
		if numTracks > len(tracks) {
			numTracks = len(tracks)
		}

		playlists[i] = dataset.Playlist{
			PlaylistID:  id,
			UserID:      users[g.rng.Intn(len(users))].UserID,
			Name:        fmt.Sprintf("Playlist %d", i+1),
			CreatedDate: g.cfg.StartDate.AddDate(0, 0, g.rng.Intn(days)),
			NumTracks:   numTracks,
			IsPublic:    g.rng.Float64() > 0.3,
		}

		for pos, ti := range g.rng.Perm(len(tracks))[:numTracks] {
			playlistTracks = append(playlistTracks, dataset.PlaylistTrack{
				PlaylistID: id,
				TrackID:    tracks[ti].TrackID,
				Position:   pos,
			})
		}
	}
	log.WithFields(log.Fields{
		"playlists": len(playlists),
		"entries":   len(playlistTracks),
	}).Info("generated playlists")
	return playlists, playlistTracks
}

// Experiment assigns every user to a variant with a fair coin and returns
// per-user skip rates with a relative uplift applied to the treatment side
// (a 5% skip-rate reduction by default when effect is 0.05).
func (g *Generator) Experiment(users []dataset.User, sessions []dataset.Session, name string, effect float64) ([]abtest.Assignment, map[string]float64) {
	skipRates := make(map[string]float64, len(users))
	counts := make(map[string]int, len(users))
	for _, s := range sessions {
		counts[s.UserID]++
		if s.Skipped {
			skipRates[s.UserID]++
		}
	}
	for id, c := range counts {
		skipRates[id] /= float64(c)
	}

	assignments := make([]abtest.Assignment, 0, len(users))
	for _, u := range users {
		variant := "control"
		if g.rng.Float64() < 0.5 {
			variant = "treatment"
			// Only users with observed sessions carry a metric; writing
			// through the map would invent 0.0 observations for the rest.
			if rate, ok := skipRates[u.UserID]; ok {
				skipRates[u.UserID] = rate * (1 - effect)
			}
		}
		assignments = append(assignments, abtest.Assignment{
			UserID:     u.UserID,
			Experiment: name,
			Variant:    variant,
		})
	}
	log.WithFields(log.Fields{
		"experiment": name,
		"users":      len(assignments),
	}).Info("generated experiment assignments")
	return assignments, skipRates
}

// weightedIndex draws an index proportionally to the given weights.
func (g *Generator) weightedIndex(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	u := g.rng.Float64() * total
	for i, w := range weights {
		u -= w
		if u < 0 {
			return i
		}
	}
	return len(weights) - 1
}

func (g *Generator) weightedChoice(values []string, weights []float64) string {
	return values[g.weightedIndex(weights)]
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
