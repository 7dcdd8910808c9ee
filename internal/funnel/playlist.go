package funnel

import (
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"

	"github.com/tunestats/tunestats/internal/dataset"
)

// PlaylistProgress is one playlist listening attempt: how far through the
// playlist the user got.
type PlaylistProgress struct {
	UserID          string
	TracksCompleted int
	PlaylistLength  int
	CompletionRatio float64
}

// ProgressSource supplies per-attempt playlist progress. The production
// integration would derive this from playlist-position events; the
// simulated implementation below stands in while that data is unavailable.
type ProgressSource interface {
	Progress(sessions []dataset.Session, playlistLengths []int) []PlaylistProgress
}

// SimulatedProgress draws tracks-completed counts from a seeded geometric
// distribution. This is a documented approximation, not a contract: swap in
// a real ProgressSource once playlist-position data exists.
type SimulatedProgress struct {
	Seed uint64
	P    float64 // geometric success probability, default 0.15
}

func (g SimulatedProgress) Progress(sessions []dataset.Session, playlistLengths []int) []PlaylistProgress {
	p := g.P
	if p <= 0 || p >= 1 {
		p = 0.15
	}
	rng := rand.New(rand.NewSource(g.Seed))

	avgLen := 20.0
	if len(playlistLengths) > 0 {
		sum := 0
		for _, l := range playlistLengths {
			sum += l
		}
		avgLen = float64(sum) / float64(len(playlistLengths))
	}
	maxCompleted := int(avgLen)
	if maxCompleted < 1 {
		maxCompleted = 1
	}

	out := make([]PlaylistProgress, 0, len(sessions))
	for _, s := range sessions {
		completed := geometric(rng, p)
		if completed > maxCompleted {
			completed = maxCompleted
		}

		length := 20
		if len(playlistLengths) > 0 {
			length = playlistLengths[rng.Intn(len(playlistLengths))]
		}
		ratio := float64(completed) / float64(length)
		out = append(out, PlaylistProgress{
			UserID:          s.UserID,
			TracksCompleted: completed,
			PlaylistLength:  length,
			CompletionRatio: math.Min(math.Max(ratio, 0), 1),
		})
	}
	return out
}

// geometric samples the number of trials to first success, minimum 1.
func geometric(rng *rand.Rand, p float64) int {
	u := rng.Float64()
	k := int(math.Ceil(math.Log(1-u) / math.Log(1-p)))
	if k < 1 {
		k = 1
	}
	return k
}

// Analyzer runs the funnel instantiations over event tables.
type Analyzer struct {
	progress ProgressSource
}

// NewAnalyzer builds an analyzer; a nil source falls back to the seeded
// simulation.
func NewAnalyzer(progress ProgressSource) *Analyzer {
	if progress == nil {
		progress = SimulatedProgress{Seed: 42}
	}
	return &Analyzer{progress: progress}
}

// PlaylistCompletion computes the playlist completion funnel over all
// playlist-context sessions: started, >=1/3/5 tracks, >=50/75/100 percent
// of the playlist length.
func (a *Analyzer) PlaylistCompletion(sessions []dataset.Session, playlistTracks []dataset.PlaylistTrack) *Report {
	log.Info("analyzing playlist completion funnel")

	var playlistSessions []dataset.Session
	for _, s := range sessions {
		if s.Context == "playlist" {
			playlistSessions = append(playlistSessions, s)
		}
	}
	if len(playlistSessions) == 0 {
		log.Warn("no playlist sessions found")
		return &Report{Metrics: map[string]float64{}}
	}

	lengthByPlaylist := make(map[string]int)
	for _, pt := range playlistTracks {
		lengthByPlaylist[pt.PlaylistID]++
	}
	lengths := make([]int, 0, len(lengthByPlaylist))
	for _, l := range lengthByPlaylist {
		lengths = append(lengths, l)
	}

	progress := a.progress.Progress(playlistSessions, lengths)

	countTracks := func(min int) int {
		n := 0
		for _, p := range progress {
			if p.TracksCompleted >= min {
				n++
			}
		}
		return n
	}
	countRatio := func(min float64) int {
		n := 0
		for _, p := range progress {
			if p.CompletionRatio >= min {
				n++
			}
		}
		return n
	}

	counts := []StageCount{
		{"started", len(progress)},
		{"track_1_complete", countTracks(1)},
		{"track_3_complete", countTracks(3)},
		{"track_5_complete", countTracks(5)},
		{"50_percent_complete", countRatio(0.5)},
		{"75_percent_complete", countRatio(0.75)},
		{"100_percent_complete", countRatio(1.0)},
	}

	stages := Build(counts)
	logStages("playlist_completion", stages)

	total := float64(len(progress))
	metrics := map[string]float64{
		"total_playlist_starts":   total,
		"overall_completion_rate": float64(counts[6].Users) / total,
		"track_1_completion":      float64(counts[1].Users) / total,
		"track_3_completion":      float64(counts[2].Users) / total,
		"track_5_completion":      float64(counts[3].Users) / total,
	}
	if counts[1].Users > 0 {
		metrics["drop_off_track_1_3"] = float64(counts[1].Users-counts[2].Users) / float64(counts[1].Users)
	}
	if counts[2].Users > 0 {
		metrics["drop_off_track_3_5"] = float64(counts[2].Users-counts[3].Users) / float64(counts[2].Users)
	}

	return &Report{Stages: stages, Metrics: metrics}
}
