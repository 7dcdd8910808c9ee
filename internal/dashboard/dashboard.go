// Package dashboard computes the operational health metrics exported to BI
// tooling: DAU/MAU, skip rates by dimension, and the day-over-day retention
// curve.
package dashboard

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/tunestats/tunestats/internal/dataset"
)

// ActiveUsers is one calendar day's activity: distinct daily users, the
// distinct users of the enclosing month, and their ratio.
type ActiveUsers struct {
	Date     string // 2006-01-02
	Month    string // 2006-01
	DAU      int
	MAU      int
	DAUMAU   float64
}

// SkipRate is the mean skip rate of one dimension value.
type SkipRate struct {
	Key      string
	SkipRate float64
	Sessions int
}

// RetentionPoint is the share of all users active exactly N days after
// their signup.
type RetentionPoint struct {
	Day       int
	Users     int
	Retention float64
}

// DAUMAU computes per-day active users joined with the enclosing month's
// active users, sorted by date.
func DAUMAU(sessions []dataset.Session) []ActiveUsers {
	daily := make(map[string]map[string]struct{})
	monthly := make(map[string]map[string]struct{})
	for _, s := range sessions {
		day := s.Timestamp.Format("2006-01-02")
		month := s.Timestamp.Format("2006-01")
		if daily[day] == nil {
			daily[day] = make(map[string]struct{})
		}
		daily[day][s.UserID] = struct{}{}
		if monthly[month] == nil {
			monthly[month] = make(map[string]struct{})
		}
		monthly[month][s.UserID] = struct{}{}
	}

	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]ActiveUsers, 0, len(days))
	for _, day := range days {
		month := day[:7]
		a := ActiveUsers{
			Date:  day,
			Month: month,
			DAU:   len(daily[day]),
			MAU:   len(monthly[month]),
		}
		if a.MAU > 0 {
			a.DAUMAU = float64(a.DAU) / float64(a.MAU)
		}
		out = append(out, a)
	}
	log.WithField("days", len(out)).Info("calculated DAU/MAU")
	return out
}

// SkipRates computes mean skip rates by track genre, hour of day, and
// session context. Sessions whose track is unknown fall under genre
// "unknown".
func SkipRates(sessions []dataset.Session, tracks []dataset.Track) map[string][]SkipRate {
	genreByTrack := make(map[string]string, len(tracks))
	for _, t := range tracks {
		genreByTrack[t.TrackID] = t.Genre
	}

	type agg struct {
		skips, total int
	}
	byGenre := make(map[string]*agg)
	byHour := make(map[string]*agg)
	byContext := make(map[string]*agg)

	bump := func(m map[string]*agg, key string, skipped bool) {
		a := m[key]
		if a == nil {
			a = &agg{}
			m[key] = a
		}
		a.total++
		if skipped {
			a.skips++
		}
	}

	for _, s := range sessions {
		genre := genreByTrack[s.TrackID]
		if genre == "" {
			genre = "unknown"
		}
		bump(byGenre, genre, s.Skipped)
		bump(byHour, fmt.Sprintf("%02d", s.Timestamp.Hour()), s.Skipped)
		bump(byContext, s.Context, s.Skipped)
	}

	collect := func(m map[string]*agg) []SkipRate {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]SkipRate, 0, len(keys))
		for _, k := range keys {
			a := m[k]
			out = append(out, SkipRate{
				Key:      k,
				SkipRate: float64(a.skips) / float64(a.total),
				Sessions: a.total,
			})
		}
		return out
	}

	return map[string][]SkipRate{
		"by_genre":   collect(byGenre),
		"by_hour":    collect(byHour),
		"by_context": collect(byContext),
	}
}

// RetentionCurve computes, for each day offset 0..days, the share of all
// users with at least one session exactly that many days after signup.
func RetentionCurve(users []dataset.User, sessions []dataset.Session, days int) []RetentionPoint {
	signup := make(map[string]int64, len(users))
	for _, u := range users {
		signup[u.UserID] = u.SignupDate.Unix() / 86400
	}

	activeByDay := make([]map[string]struct{}, days+1)
	for _, s := range sessions {
		base, ok := signup[s.UserID]
		if !ok {
			continue
		}
		offset := int(s.Timestamp.Unix()/86400 - base)
		if offset < 0 || offset > days {
			continue
		}
		if activeByDay[offset] == nil {
			activeByDay[offset] = make(map[string]struct{})
		}
		activeByDay[offset][s.UserID] = struct{}{}
	}

	total := len(users)
	out := make([]RetentionPoint, days+1)
	for day := 0; day <= days; day++ {
		p := RetentionPoint{Day: day, Users: len(activeByDay[day])}
		if total > 0 {
			p.Retention = float64(p.Users) / float64(total)
		}
		out[day] = p
	}
	return out
}

// Export writes the BI-facing CSV files under dir: dau_mau_metrics.csv,
// skip_rates_<dimension>.csv, and retention_curve.csv.
func Export(dir string, dauMau []ActiveUsers, skipRates map[string][]SkipRate, retention []RetentionPoint) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating dashboard directory: %w", err)
	}

	rows := [][]string{{"date", "month", "dau", "mau", "dau_mau_ratio"}}
	for _, a := range dauMau {
		rows = append(rows, []string{
			a.Date, a.Month,
			strconv.Itoa(a.DAU), strconv.Itoa(a.MAU),
			strconv.FormatFloat(a.DAUMAU, 'f', 6, 64),
		})
	}
	if err := writeCSVFile(filepath.Join(dir, "dau_mau_metrics.csv"), rows); err != nil {
		return err
	}

	for name, rates := range skipRates {
		key := "key"
		switch name {
		case "by_genre":
			key = "genre"
		case "by_hour":
			key = "hour"
		case "by_context":
			key = "context"
		}
		rows := [][]string{{key, "skip_rate", "sessions"}}
		for _, r := range rates {
			rows = append(rows, []string{
				r.Key,
				strconv.FormatFloat(r.SkipRate, 'f', 6, 64),
				strconv.Itoa(r.Sessions),
			})
		}
		if err := writeCSVFile(filepath.Join(dir, "skip_rates_"+name+".csv"), rows); err != nil {
			return err
		}
	}

	rows = [][]string{{"day", "users", "retention_rate"}}
	for _, p := range retention {
		rows = append(rows, []string{
			strconv.Itoa(p.Day),
			strconv.Itoa(p.Users),
			strconv.FormatFloat(p.Retention, 'f', 6, 64),
		})
	}
	if err := writeCSVFile(filepath.Join(dir, "retention_curve.csv"), rows); err != nil {
		return err
	}

	log.WithField("dir", dir).Info("exported dashboard data")
	return nil
}

func writeCSVFile(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := dataset.WriteRows(f, rows); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RenderSummary prints the headline metrics as terminal tables.
func RenderSummary(w io.Writer, dauMau []ActiveUsers, skipRates map[string][]SkipRate) error {
	if len(dauMau) > 0 {
		latest := dauMau[len(dauMau)-1]
		table := tablewriter.NewWriter(w)
		table.Header("Date", "DAU", "MAU", "DAU/MAU")
		err := table.Append([]string{
			latest.Date,
			strconv.Itoa(latest.DAU),
			strconv.Itoa(latest.MAU),
			fmt.Sprintf("%.3f", latest.DAUMAU),
		})
		if err != nil {
			return fmt.Errorf("rendering active users: %w", err)
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering active users: %w", err)
		}
	}

	genres := skipRates["by_genre"]
	if len(genres) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Genre", "Skip Rate", "Sessions")
		for _, r := range genres {
			err := table.Append([]string{
				r.Key,
				fmt.Sprintf("%.1f%%", r.SkipRate*100),
				strconv.Itoa(r.Sessions),
			})
			if err != nil {
				return fmt.Errorf("rendering skip rates: %w", err)
			}
		}
		if err := table.Render(); err != nil {
			return fmt.Errorf("rendering skip rates: %w", err)
		}
	}
	return nil
}
