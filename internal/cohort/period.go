package cohort

import (
	"fmt"
	"time"

	"github.com/jinzhu/now"
)

// Period is the cohort bucketing granularity.
type Period string

const (
	Weekly    Period = "weekly"
	Monthly   Period = "monthly"
	Quarterly Period = "quarterly"
)

// ParsePeriod validates a period name from configuration.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case Weekly, Monthly, Quarterly:
		return Period(s), nil
	}
	return "", fmt.Errorf("invalid cohort period %q (want weekly, monthly or quarterly)", s)
}

// weeks start on Monday, matching ISO convention
var weekConfig = &now.Config{WeekStartDay: time.Monday}

// Truncate returns the start of the period containing t.
func (p Period) Truncate(t time.Time) time.Time {
	switch p {
	case Weekly:
		return weekConfig.With(t).BeginningOfWeek()
	case Quarterly:
		return now.With(t).BeginningOfQuarter()
	default:
		return now.With(t).BeginningOfMonth()
	}
}

// Between returns the integer number of whole periods elapsed from one
// period start to another. Both arguments must already be truncated.
func (p Period) Between(from, to time.Time) int {
	switch p {
	case Weekly:
		return int(to.Sub(from).Hours() / (24 * 7))
	case Quarterly:
		return monthsBetween(from, to) / 3
	default:
		return monthsBetween(from, to)
	}
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}

// Label renders a period start as a cohort label: 2024-03 for monthly,
// 2024-W12 for weekly, 2024Q1 for quarterly.
func (p Period) Label(start time.Time) string {
	switch p {
	case Weekly:
		year, week := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case Quarterly:
		return fmt.Sprintf("%dQ%d", start.Year(), (int(start.Month())-1)/3+1)
	default:
		return start.Format("2006-01")
	}
}
