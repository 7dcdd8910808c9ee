package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ValidationError reports the columns a table is missing. Loading fails fast
// on the first table that does not match its schema.
type ValidationError struct {
	Table   string
	Missing []string
}

func (e *ValidationError) Error() string {
	sort.Strings(e.Missing)
	return fmt.Sprintf("table %s: missing required columns: %s", e.Table, strings.Join(e.Missing, ", "))
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes":
		return true
	}
	return false
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	// Generated CSVs may carry floats in integer columns.
	if strings.ContainsAny(s, ".eE") {
		return int64(parseFloat(s))
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// header maps column names to their position and validates required columns.
type header struct {
	table string
	index map[string]int
}

func newHeader(table string, row []string, required []string) (*header, error) {
	idx := make(map[string]int, len(row))
	for i, name := range row {
		idx[strings.TrimSpace(name)] = i
	}
	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Table: table, Missing: missing}
	}
	return &header{table: table, index: idx}, nil
}

// get returns the named column's value, or "" if the optional column is
// absent from this file.
func (h *header) get(row []string, col string) string {
	i, ok := h.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func readAll(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

// ReadSessions loads the sessions table from a CSV file.
func ReadSessions(path string) ([]Session, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	h, err := newHeader("sessions", rows[0], []string{
		"session_id", "user_id", "track_id", "timestamp",
		"listen_duration_ms", "track_duration_ms", "skipped",
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(rows)-1)
	for _, row := range rows[1:] {
		ts, err := parseTime(h.get(row, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("sessions: %w", err)
		}
		sessions = append(sessions, Session{
			SessionID:        h.get(row, "session_id"),
			UserID:           h.get(row, "user_id"),
			TrackID:          h.get(row, "track_id"),
			Timestamp:        ts,
			ListenDurationMs: parseInt(h.get(row, "listen_duration_ms")),
			TrackDurationMs:  parseInt(h.get(row, "track_duration_ms")),
			Skipped:          parseBool(h.get(row, "skipped")),
			SkipTimeMs:       parseInt(h.get(row, "skip_time_ms")),
			Context:          h.get(row, "context"),
			Device:           h.get(row, "device"),
		})
	}
	return sessions, nil
}

// ReadUsers loads the users table from a CSV file.
func ReadUsers(path string) ([]User, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	h, err := newHeader("users", rows[0], []string{"user_id", "signup_date", "tier", "country", "age_group"})
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(rows)-1)
	for _, row := range rows[1:] {
		signup, err := parseTime(h.get(row, "signup_date"))
		if err != nil {
			return nil, fmt.Errorf("users: %w", err)
		}
		users = append(users, User{
			UserID:               h.get(row, "user_id"),
			SignupDate:           signup,
			Tier:                 h.get(row, "tier"),
			Country:              h.get(row, "country"),
			AgeGroup:             h.get(row, "age_group"),
			Gender:               h.get(row, "gender"),
			PreferredGenre:       h.get(row, "preferred_genre"),
			AvgSessionLengthPref: parseFloat(h.get(row, "avg_session_length_pref")),
			SkipTendency:         parseFloat(h.get(row, "skip_tendency")),
		})
	}
	return users, nil
}

// ReadTracks loads the track catalog from a CSV file.
func ReadTracks(path string) ([]Track, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	h, err := newHeader("tracks", rows[0], []string{"track_id", "genre", "duration_ms"})
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(rows)-1)
	for _, row := range rows[1:] {
		tracks = append(tracks, Track{
			TrackID:          h.get(row, "track_id"),
			Tempo:            parseFloat(h.get(row, "tempo")),
			Energy:           parseFloat(h.get(row, "energy")),
			Danceability:     parseFloat(h.get(row, "danceability")),
			Valence:          parseFloat(h.get(row, "valence")),
			Acousticness:     parseFloat(h.get(row, "acousticness")),
			Instrumentalness: parseFloat(h.get(row, "instrumentalness")),
			Liveness:         parseFloat(h.get(row, "liveness")),
			Speechiness:      parseFloat(h.get(row, "speechiness")),
			Loudness:         parseFloat(h.get(row, "loudness")),
			DurationMs:       parseInt(h.get(row, "duration_ms")),
			Genre:            h.get(row, "genre"),
			ArtistID:         h.get(row, "artist_id"),
			ReleaseYear:      int(parseInt(h.get(row, "release_year"))),
			Popularity:       parseFloat(h.get(row, "popularity")),
		})
	}
	return tracks, nil
}

// ReadPlaylists loads the playlists table from a CSV file.
func ReadPlaylists(path string) ([]Playlist, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	h, err := newHeader("playlists", rows[0], []string{"playlist_id", "user_id", "num_tracks"})
	if err != nil {
		return nil, err
	}

	playlists := make([]Playlist, 0, len(rows)-1)
	for _, row := range rows[1:] {
		created, _ := parseTime(h.get(row, "created_date"))
		playlists = append(playlists, Playlist{
			PlaylistID:  h.get(row, "playlist_id"),
			UserID:      h.get(row, "user_id"),
			Name:        h.get(row, "name"),
			CreatedDate: created,
			NumTracks:   int(parseInt(h.get(row, "num_tracks"))),
			IsPublic:    parseBool(h.get(row, "is_public")),
		})
	}
	return playlists, nil
}

// ReadPlaylistTracks loads the playlist membership table from a CSV file.
func ReadPlaylistTracks(path string) ([]PlaylistTrack, error) {
	rows, err := readAll(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	h, err := newHeader("playlist_tracks", rows[0], []string{"playlist_id", "track_id", "position"})
	if err != nil {
		return nil, err
	}

	tracks := make([]PlaylistTrack, 0, len(rows)-1)
	for _, row := range rows[1:] {
		tracks = append(tracks, PlaylistTrack{
			PlaylistID: h.get(row, "playlist_id"),
			TrackID:    h.get(row, "track_id"),
			Position:   int(parseInt(h.get(row, "position"))),
		})
	}
	return tracks, nil
}

// Load reads all five tables from a directory of CSV files. Playlist tables
// are optional; the other three are required.
func Load(dir string) (*Dataset, error) {
	ds := &Dataset{}
	var err error

	if ds.Users, err = ReadUsers(filepath.Join(dir, "users.csv")); err != nil {
		return nil, err
	}
	if ds.Tracks, err = ReadTracks(filepath.Join(dir, "tracks.csv")); err != nil {
		return nil, err
	}
	if ds.Sessions, err = ReadSessions(filepath.Join(dir, "sessions.csv")); err != nil {
		return nil, err
	}

	playlistPath := filepath.Join(dir, "playlists.csv")
	if _, statErr := os.Stat(playlistPath); statErr == nil {
		if ds.Playlists, err = ReadPlaylists(playlistPath); err != nil {
			return nil, err
		}
	}
	memberPath := filepath.Join(dir, "playlist_tracks.csv")
	if _, statErr := os.Stat(memberPath); statErr == nil {
		if ds.PlaylistTracks, err = ReadPlaylistTracks(memberPath); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"users":    len(ds.Users),
		"tracks":   len(ds.Tracks),
		"sessions": len(ds.Sessions),
	}).Info("loaded dataset")
	return ds, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	return WriteRows(f, rows)
}

// WriteRows writes CSV rows, header first.
func WriteRows(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Save writes all tables in the dataset to CSV files under dir.
func Save(ds *Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	userRows := [][]string{{"user_id", "signup_date", "tier", "country", "age_group", "gender",
		"preferred_genre", "avg_session_length_pref", "skip_tendency"}}
	for _, u := range ds.Users {
		userRows = append(userRows, []string{
			u.UserID, u.SignupDate.Format("2006-01-02"), u.Tier, u.Country, u.AgeGroup, u.Gender,
			u.PreferredGenre, formatFloat(u.AvgSessionLengthPref), formatFloat(u.SkipTendency),
		})
	}
	if err := writeCSV(filepath.Join(dir, "users.csv"), userRows); err != nil {
		return err
	}

	trackRows := [][]string{{"track_id", "tempo", "energy", "danceability", "valence", "acousticness",
		"instrumentalness", "liveness", "speechiness", "loudness", "duration_ms", "genre",
		"artist_id", "release_year", "popularity"}}
	for _, t := range ds.Tracks {
		trackRows = append(trackRows, []string{
			t.TrackID, formatFloat(t.Tempo), formatFloat(t.Energy), formatFloat(t.Danceability),
			formatFloat(t.Valence), formatFloat(t.Acousticness), formatFloat(t.Instrumentalness),
			formatFloat(t.Liveness), formatFloat(t.Speechiness), formatFloat(t.Loudness),
			strconv.FormatInt(t.DurationMs, 10), t.Genre, t.ArtistID,
			strconv.Itoa(t.ReleaseYear), formatFloat(t.Popularity),
		})
	}
	if err := writeCSV(filepath.Join(dir, "tracks.csv"), trackRows); err != nil {
		return err
	}

	sessionRows := [][]string{{"session_id", "user_id", "track_id", "timestamp", "listen_duration_ms",
		"track_duration_ms", "skipped", "skip_time_ms", "context", "device"}}
	for _, s := range ds.Sessions {
		skipTime := ""
		if s.Skipped {
			skipTime = strconv.FormatInt(s.SkipTimeMs, 10)
		}
		sessionRows = append(sessionRows, []string{
			s.SessionID, s.UserID, s.TrackID, s.Timestamp.Format("2006-01-02 15:04:05"),
			strconv.FormatInt(s.ListenDurationMs, 10), strconv.FormatInt(s.TrackDurationMs, 10),
			formatBool(s.Skipped), skipTime, s.Context, s.Device,
		})
	}
	if err := writeCSV(filepath.Join(dir, "sessions.csv"), sessionRows); err != nil {
		return err
	}

	playlistRows := [][]string{{"playlist_id", "user_id", "name", "created_date", "num_tracks", "is_public"}}
	for _, p := range ds.Playlists {
		playlistRows = append(playlistRows, []string{
			p.PlaylistID, p.UserID, p.Name, p.CreatedDate.Format("2006-01-02"),
			strconv.Itoa(p.NumTracks), formatBool(p.IsPublic),
		})
	}
	if err := writeCSV(filepath.Join(dir, "playlists.csv"), playlistRows); err != nil {
		return err
	}

	memberRows := [][]string{{"playlist_id", "track_id", "position"}}
	for _, pt := range ds.PlaylistTracks {
		memberRows = append(memberRows, []string{pt.PlaylistID, pt.TrackID, strconv.Itoa(pt.Position)})
	}
	return writeCSV(filepath.Join(dir, "playlist_tracks.csv"), memberRows)
}
