package dataset

import "time"

// Session is one listening event: a user playing (or skipping) a track.
type Session struct {
	SessionID        string
	UserID           string
	TrackID          string
	Timestamp        time.Time
	ListenDurationMs int64
	TrackDurationMs  int64
	Skipped          bool
	SkipTimeMs       int64 // meaningful only when Skipped
	Context          string
	Device           string
}

// User is a subscriber profile. SignupDate is expected to precede the
// user's sessions but is not validated here.
type User struct {
	UserID               string
	SignupDate           time.Time
	Tier                 string
	Country              string
	AgeGroup             string
	Gender               string
	PreferredGenre       string
	AvgSessionLengthPref float64
	SkipTendency         float64
}

// Track is a catalog entry with its audio features.
type Track struct {
	TrackID          string
	Tempo            float64
	Energy           float64
	Danceability     float64
	Valence          float64
	Acousticness     float64
	Instrumentalness float64
	Liveness         float64
	Speechiness      float64
	Loudness         float64
	DurationMs       int64
	Genre            string
	ArtistID         string
	ReleaseYear      int
	Popularity       float64
}

type Playlist struct {
	PlaylistID  string
	UserID      string
	Name        string
	CreatedDate time.Time
	NumTracks   int
	IsPublic    bool
}

type PlaylistTrack struct {
	PlaylistID string
	TrackID    string
	Position   int
}

// Dataset bundles the five input tables for one analysis run. Tables are
// treated as immutable once loaded.
type Dataset struct {
	Users          []User
	Tracks         []Track
	Sessions       []Session
	Playlists      []Playlist
	PlaylistTracks []PlaylistTrack
}

// TrackIndex returns a lookup from track_id to track, used by the joins in
// the feature and dashboard computations.
func (d *Dataset) TrackIndex() map[string]*Track {
	idx := make(map[string]*Track, len(d.Tracks))
	for i := range d.Tracks {
		idx[d.Tracks[i].TrackID] = &d.Tracks[i]
	}
	return idx
}

// MaxTimestamp returns the latest session timestamp, the reference point for
// recency computations. Zero time when there are no sessions.
func MaxTimestamp(sessions []Session) time.Time {
	var max time.Time
	for _, s := range sessions {
		if s.Timestamp.After(max) {
			max = s.Timestamp
		}
	}
	return max
}
