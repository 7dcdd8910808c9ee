package funnel

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tunestats/tunestats/internal/dataset"
)

// UserActivation computes the activation funnel: signed up, first session,
// first session within a day of signup, 2+ sessions in the first week,
// 3+ sessions in the first fortnight, active in 4+ distinct weeks.
func (a *Analyzer) UserActivation(users []dataset.User, sessions []dataset.Session) *Report {
	log.Info("analyzing user activation funnel")

	signup := make(map[string]time.Time, len(users))
	for _, u := range users {
		signup[u.UserID] = u.SignupDate
	}

	type userActivity struct {
		first      time.Time
		timestamps []time.Time
		weeks      map[[2]int]struct{}
	}
	byUser := make(map[string]*userActivity)
	for _, s := range sessions {
		u := byUser[s.UserID]
		if u == nil {
			u = &userActivity{first: s.Timestamp, weeks: make(map[[2]int]struct{})}
			byUser[s.UserID] = u
		}
		if s.Timestamp.Before(u.first) {
			u.first = s.Timestamp
		}
		u.timestamps = append(u.timestamps, s.Timestamp)
		year, week := s.Timestamp.ISOWeek()
		u.weeks[[2]int{year, week}] = struct{}{}
	}

	totalUsers := len(users)
	withSessions := len(byUser)

	activatedDay1 := 0
	activeWeek1 := 0
	retainedWeek2 := 0
	weeklyActive := 0
	for id, u := range byUser {
		if signupDate, ok := signup[id]; ok {
			if int(u.first.Sub(signupDate).Hours()/24) <= 1 {
				activatedDay1++
			}
		}

		within7, within14 := 0, 0
		for _, ts := range u.timestamps {
			if !ts.After(u.first.AddDate(0, 0, 7)) {
				within7++
			}
			if !ts.After(u.first.AddDate(0, 0, 14)) {
				within14++
			}
		}
		if within7 >= 2 {
			activeWeek1++
		}
		if within14 >= 3 {
			retainedWeek2++
		}
		if len(u.weeks) >= 4 {
			weeklyActive++
		}
	}

	counts := []StageCount{
		{"signed_up", totalUsers},
		{"first_session", withSessions},
		{"activated_day_1", activatedDay1},
		{"active_week_1", activeWeek1},
		{"retained_week_2", retainedWeek2},
		{"weekly_active", weeklyActive},
	}
	stages := Build(counts)
	logStages("user_activation", stages)

	metrics := map[string]float64{"total_signups": float64(totalUsers)}
	if totalUsers > 0 {
		t := float64(totalUsers)
		metrics["first_session_rate"] = float64(withSessions) / t
		metrics["day_1_activation_rate"] = float64(activatedDay1) / t
		metrics["week_1_retention_rate"] = float64(activeWeek1) / t
		metrics["week_2_retention_rate"] = float64(retainedWeek2) / t
		metrics["weekly_active_rate"] = float64(weeklyActive) / t
		metrics["signup_to_active_conversion"] = float64(weeklyActive) / t
	}

	return &Report{Stages: stages, Metrics: metrics}
}
