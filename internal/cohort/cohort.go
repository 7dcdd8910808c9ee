// Package cohort buckets users by signup period and measures how each
// cohort's activity holds up over the periods that follow.
package cohort

import (
	"errors"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tunestats/tunestats/internal/dataset"
)

// RetentionMatrix is the cohort-by-period-offset table of active-user
// percentages. Cells with no activity (or a zero-size cohort) are NaN.
// It is a plain value: callers thread it into Summarize and the exporters
// rather than relying on analyzer state.
type RetentionMatrix struct {
	Period      Period
	Cohorts     []string
	CohortSizes []int
	Horizon     int
	Values      [][]float64
}

// RetentionSummary aggregates the matrix into headline numbers.
type RetentionSummary struct {
	AvgInitialRetention float64
	AvgPeriod1Retention float64
	AvgPeriod3Retention float64
	AvgPeriod6Retention float64
	BestCohort          string
	WorstCohort         string
	NumCohorts          int
}

// CohortEngagement holds per-cohort engagement aggregates.
type CohortEngagement struct {
	Cohort              string
	UniqueUsers         int
	TotalSessions       int
	TotalListenTimeMs   float64
	AvgListenDurationMs float64
	SkipRate            float64
	SessionsPerUser     float64
	ListenHoursPerUser  float64
}

// ChurnRisk flags a user as at risk based on inactivity. Users with no
// sessions at all default to 999 days inactive.
type ChurnRisk struct {
	UserID       string
	LastActivity time.Time
	DaysInactive int
	AtRisk       bool
}

const noActivityDays = 999

// Analyzer computes cohort analyses at a fixed period granularity.
type Analyzer struct {
	period Period
}

func NewAnalyzer(period Period) *Analyzer {
	return &Analyzer{period: period}
}

// Retention builds the retention matrix: rows are signup cohorts, columns
// are periods since signup (0..horizon-1), values are the percentage of the
// cohort active in that period. Sessions landing before the cohort period
// or past the horizon are dropped.
func (a *Analyzer) Retention(users []dataset.User, sessions []dataset.Session, horizon int) (*RetentionMatrix, error) {
	if horizon <= 0 {
		return nil, errors.New("retention horizon must be positive")
	}
	log.WithFields(log.Fields{"period": a.period, "horizon": horizon}).Info("calculating retention matrix")

	cohortOf := make(map[string]time.Time, len(users))
	sizes := make(map[time.Time]int)
	for _, u := range users {
		start := a.period.Truncate(u.SignupDate)
		cohortOf[u.UserID] = start
		sizes[start]++
	}

	// Distinct active users per (cohort, period offset).
	type cell struct {
		cohort time.Time
		offset int
	}
	active := make(map[cell]map[string]struct{})
	for _, s := range sessions {
		cohortStart, ok := cohortOf[s.UserID]
		if !ok {
			continue
		}
		offset := a.period.Between(cohortStart, a.period.Truncate(s.Timestamp))
		if offset < 0 || offset >= horizon {
			continue
		}
		key := cell{cohortStart, offset}
		if active[key] == nil {
			active[key] = make(map[string]struct{})
		}
		active[key][s.UserID] = struct{}{}
	}

	cohortSet := make(map[time.Time]struct{})
	for key := range active {
		cohortSet[key.cohort] = struct{}{}
	}
	starts := make([]time.Time, 0, len(cohortSet))
	for start := range cohortSet {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	m := &RetentionMatrix{Period: a.period, Horizon: horizon}
	for _, start := range starts {
		row := make([]float64, horizon)
		size := sizes[start]
		for offset := 0; offset < horizon; offset++ {
			users, ok := active[cell{start, offset}]
			if !ok || size == 0 {
				// NaN propagation is accepted here, not corrected.
				row[offset] = math.NaN()
				continue
			}
			row[offset] = 100 * float64(len(users)) / float64(size)
		}
		m.Cohorts = append(m.Cohorts, a.period.Label(start))
		m.CohortSizes = append(m.CohortSizes, size)
		m.Values = append(m.Values, row)
	}

	log.WithField("cohorts", len(m.Cohorts)).Info("retention matrix complete")
	return m, nil
}

// Summarize reduces a retention matrix to its headline stats. Calling it
// without a computed matrix is a usage error.
func Summarize(m *RetentionMatrix) (*RetentionSummary, error) {
	if m == nil || len(m.Cohorts) == 0 {
		return nil, errors.New("no retention matrix available: run the retention calculation first")
	}

	s := &RetentionSummary{NumCohorts: len(m.Cohorts)}
	s.AvgInitialRetention = m.columnMean(0)
	s.AvgPeriod1Retention = m.columnMean(1)
	s.AvgPeriod3Retention = m.columnMean(3)
	s.AvgPeriod6Retention = m.columnMean(6)

	best, worst := math.Inf(-1), math.Inf(1)
	for i, row := range m.Values {
		if m.Horizon < 2 || math.IsNaN(row[1]) {
			continue
		}
		if row[1] > best {
			best = row[1]
			s.BestCohort = m.Cohorts[i]
		}
		if row[1] < worst {
			worst = row[1]
			s.WorstCohort = m.Cohorts[i]
		}
	}
	return s, nil
}

// columnMean averages a period column over cohorts, skipping NaN cells.
func (m *RetentionMatrix) columnMean(offset int) float64 {
	if offset >= m.Horizon {
		return 0
	}
	sum, n := 0.0, 0
	for _, row := range m.Values {
		if math.IsNaN(row[offset]) {
			continue
		}
		sum += row[offset]
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Engagement computes per-cohort engagement aggregates, ordered by cohort.
func (a *Analyzer) Engagement(users []dataset.User, sessions []dataset.Session) []CohortEngagement {
	cohortOf := make(map[string]time.Time, len(users))
	for _, u := range users {
		cohortOf[u.UserID] = a.period.Truncate(u.SignupDate)
	}

	type acc struct {
		users    map[string]struct{}
		sessions int
		listenMs float64
		skips    int
	}
	byCohort := make(map[time.Time]*acc)
	for _, s := range sessions {
		start, ok := cohortOf[s.UserID]
		if !ok {
			continue
		}
		c := byCohort[start]
		if c == nil {
			c = &acc{users: make(map[string]struct{})}
			byCohort[start] = c
		}
		c.users[s.UserID] = struct{}{}
		c.sessions++
		c.listenMs += float64(s.ListenDurationMs)
		if s.Skipped {
			c.skips++
		}
	}

	starts := make([]time.Time, 0, len(byCohort))
	for start := range byCohort {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]CohortEngagement, 0, len(starts))
	for _, start := range starts {
		c := byCohort[start]
		nUsers := float64(len(c.users))
		nSessions := float64(c.sessions)
		out = append(out, CohortEngagement{
			Cohort:              a.period.Label(start),
			UniqueUsers:         len(c.users),
			TotalSessions:       c.sessions,
			TotalListenTimeMs:   c.listenMs,
			AvgListenDurationMs: c.listenMs / nSessions,
			SkipRate:            float64(c.skips) / nSessions,
			SessionsPerUser:     nSessions / nUsers,
			ListenHoursPerUser:  c.listenMs / nUsers / (1000 * 60 * 60),
		})
	}
	return out
}

// IdentifyChurnRisk flags users whose last session is at least daysInactive
// days before the dataset's latest timestamp, ordered by user ID.
func IdentifyChurnRisk(users []dataset.User, sessions []dataset.Session, daysInactive int) []ChurnRisk {
	lastActivity := make(map[string]time.Time)
	for _, s := range sessions {
		if s.Timestamp.After(lastActivity[s.UserID]) {
			lastActivity[s.UserID] = s.Timestamp
		}
	}
	current := dataset.MaxTimestamp(sessions)

	out := make([]ChurnRisk, 0, len(users))
	for _, u := range users {
		r := ChurnRisk{UserID: u.UserID}
		if last, ok := lastActivity[u.UserID]; ok {
			r.LastActivity = last
			r.DaysInactive = int(current.Sub(last).Hours() / 24)
		} else {
			r.DaysInactive = noActivityDays
		}
		r.AtRisk = r.DaysInactive >= daysInactive
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })

	atRisk := 0
	for _, r := range out {
		if r.AtRisk {
			atRisk++
		}
	}
	log.WithFields(log.Fields{"at_risk": atRisk, "threshold_days": daysInactive}).Info("churn risk computed")
	return out
}
