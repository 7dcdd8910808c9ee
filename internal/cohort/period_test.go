package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestParsePeriod(t *testing.T) {
	for _, valid := range []string{"weekly", "monthly", "quarterly"} {
		p, err := ParsePeriod(valid)
		require.NoError(t, err)
		assert.Equal(t, Period(valid), p)
	}

	_, err := ParsePeriod("daily")
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	// 2024-03-15 is a Friday; its week starts Monday 2024-03-11.
	assert.Equal(t, ts(2024, 3, 11, 0), Weekly.Truncate(ts(2024, 3, 15, 13)))
	// A Monday truncates to itself.
	assert.Equal(t, ts(2024, 3, 11, 0), Weekly.Truncate(ts(2024, 3, 11, 5)))
	// A Sunday belongs to the preceding Monday's week.
	assert.Equal(t, ts(2024, 3, 11, 0), Weekly.Truncate(ts(2024, 3, 17, 23)))

	assert.Equal(t, ts(2024, 3, 1, 0), Monthly.Truncate(ts(2024, 3, 15, 13)))
	assert.Equal(t, ts(2024, 1, 1, 0), Quarterly.Truncate(ts(2024, 3, 31, 23)))
	assert.Equal(t, ts(2024, 10, 1, 0), Quarterly.Truncate(ts(2024, 12, 1, 0)))
}

func TestBetween(t *testing.T) {
	assert.Equal(t, 0, Weekly.Between(ts(2024, 3, 11, 0), ts(2024, 3, 11, 0)))
	assert.Equal(t, 1, Weekly.Between(ts(2024, 3, 11, 0), ts(2024, 3, 18, 0)))
	assert.Equal(t, 52, Weekly.Between(ts(2024, 1, 1, 0), ts(2024, 12, 30, 0)))

	assert.Equal(t, 1, Monthly.Between(ts(2024, 1, 1, 0), ts(2024, 2, 1, 0)))
	// Month arithmetic is exact across year boundaries, not day-count based.
	assert.Equal(t, 12, Monthly.Between(ts(2023, 2, 1, 0), ts(2024, 2, 1, 0)))
	assert.Equal(t, 11, Monthly.Between(ts(2023, 2, 1, 0), ts(2024, 1, 1, 0)))
	assert.Equal(t, -1, Monthly.Between(ts(2024, 2, 1, 0), ts(2024, 1, 1, 0)))

	assert.Equal(t, 1, Quarterly.Between(ts(2024, 1, 1, 0), ts(2024, 4, 1, 0)))
	assert.Equal(t, 4, Quarterly.Between(ts(2023, 1, 1, 0), ts(2024, 1, 1, 0)))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "2024-03", Monthly.Label(ts(2024, 3, 1, 0)))
	assert.Equal(t, "2024Q1", Quarterly.Label(ts(2024, 1, 1, 0)))
	assert.Equal(t, "2024Q4", Quarterly.Label(ts(2024, 10, 1, 0)))
	assert.Equal(t, "2024-W11", Weekly.Label(ts(2024, 3, 11, 0)))
}
