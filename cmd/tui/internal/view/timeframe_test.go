package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeframeToDateRange(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		tf        Timeframe
		wantStart string
		wantEnd   string
	}{
		{name: "ThisMonth", tf: TimeframeThisMonth, wantStart: "2026-01-01", wantEnd: "2026-01-31"},
		{name: "LastMonthCrossesYear", tf: TimeframeLastMonth, wantStart: "2025-12-01", wantEnd: "2025-12-31"},
		{name: "ThisYear", tf: TimeframeThisYear, wantStart: "2026-01-01", wantEnd: "2026-12-31"},
		{name: "LastYear", tf: TimeframeLastYear, wantStart: "2025-01-01", wantEnd: "2025-12-31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := timeframeToDateRange(tt.tf, now)
			assert.Equal(t, tt.wantStart, FormatDate(start))
			assert.Equal(t, tt.wantEnd, FormatDate(end))
		})
	}
}

func TestTimeframeToDateRange_February(t *testing.T) {
	start, end := timeframeToDateRange(TimeframeLastMonth, time.Date(2028, 3, 31, 0, 0, 0, 0, time.UTC))

	assert.Equal(t, "2028-02-01", FormatDate(start))
	assert.Equal(t, "2028-02-29", FormatDate(end))
}

func TestNormalizeDateRange(t *testing.T) {
	start, end := normalizeDateRange(
		time.Date(2026, 2, 3, 14, 30, 0, 0, time.UTC),
		time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC),
	)

	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 2, 10, 23, 59, 59, 0, time.UTC), end)
}
