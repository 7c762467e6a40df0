package anomaly

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// weeklyRows builds n observations for one cell at the same weekday and
// hour across consecutive weeks, one value per week.
func weeklyRows(cellID string, start time.Time, values []float64) []telemetry.TrafficObservation {
	rows := make([]telemetry.TrafficObservation, 0, len(values))
	for i, v := range values {
		rows = append(rows, telemetry.TrafficObservation{
			CellID:      cellID,
			Timestamp:   start.Add(time.Duration(i) * 7 * 24 * time.Hour),
			TrafficCS:   v,
			TrafficData: v,
		})
	}
	return rows
}

func TestLabelValueThresholds(t *testing.T) {
	const mean, stddev, k = 100.0, 10.0, 2.0

	tests := []struct {
		name  string
		value float64
		want  telemetry.Label
	}{
		{"well above band", 130, telemetry.LabelIncrease},
		{"just above band", 120.01, telemetry.LabelIncrease},
		{"exactly at upper edge", 120, telemetry.LabelStable},
		{"inside band", 105, telemetry.LabelStable},
		{"exactly at lower edge", 80, telemetry.LabelStable},
		{"just below band", 79.99, telemetry.LabelDegradation},
		{"well below band", 50, telemetry.LabelDegradation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, labelValue(tt.value, mean, stddev, k))
		})
	}
}

func TestLabelValueZeroVariance(t *testing.T) {
	// With stddev 0 the band collapses to the mean but labels stay STABLE
	// only when the value equals the mean; a single divergent sample with a
	// zero-width band still breaches it.
	assert.Equal(t, telemetry.LabelStable, labelValue(100, 100, 0, 2))
	assert.Equal(t, telemetry.LabelIncrease, labelValue(101, 100, 0, 2))
	assert.Equal(t, telemetry.LabelDegradation, labelValue(99, 100, 0, 2))
}

func TestClassifyConstantSignalIsStable(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // a Monday
	rows := weeklyRows("CELL1", start, []float64{100, 100, 100, 100, 100, 100})

	c := NewClassifier(2.0, 2.0, 4)
	classified, err := c.Classify(rows)
	require.NoError(t, err)
	require.Len(t, classified, len(rows))

	for _, row := range classified {
		assert.Equal(t, telemetry.LabelStable, row.CSLabel, "row at %v", row.Timestamp)
		assert.Equal(t, telemetry.LabelStable, row.DataLabel, "row at %v", row.Timestamp)
		assert.Equal(t, 100.0, row.CSRollingMean)
		assert.Equal(t, 0.0, row.CSRollingStddev)
	}
}

func TestClassifySpikeFlaggedAgainstWeeklyBaseline(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	values := []float64{100, 110, 90, 105, 95, 100, 108, 92, 400}
	rows := weeklyRows("CELL1", start, values)

	c := NewClassifier(2.0, 3.0, 8)
	classified, err := c.Classify(rows)
	require.NoError(t, err)

	last := classified[len(classified)-1]
	assert.Equal(t, 400.0, last.TrafficCS)
	assert.Equal(t, telemetry.LabelIncrease, last.CSLabel)
	// The looser data multiplier tolerates the same spike.
	assert.Equal(t, telemetry.LabelStable, last.DataLabel)
}

func TestClassifyDegradationDetected(t *testing.T) {
	start := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	values := []float64{200, 210, 195, 205, 198, 202, 5}
	rows := weeklyRows("CELL1", start, values)

	c := NewClassifier(1.5, 1.5, 6)
	classified, err := c.Classify(rows)
	require.NoError(t, err)

	last := classified[len(classified)-1]
	assert.Equal(t, telemetry.LabelDegradation, last.CSLabel)
}

func TestClassifyPartitionsByTimeOfWeek(t *testing.T) {
	// A cell with a strong diurnal cycle: 09:00 always 1000, 03:00 always
	// 10. A chronological window would flag every transition; the time-of-
	// week partitioning must keep both slots STABLE.
	var rows []telemetry.TrafficObservation
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	for week := 0; week < 6; week++ {
		day := base.Add(time.Duration(week) * 7 * 24 * time.Hour)
		rows = append(rows,
			telemetry.TrafficObservation{CellID: "CELL1", Timestamp: day.Add(3 * time.Hour), TrafficCS: 10, TrafficData: 10},
			telemetry.TrafficObservation{CellID: "CELL1", Timestamp: day.Add(9 * time.Hour), TrafficCS: 1000, TrafficData: 1000},
		)
	}

	c := NewClassifier(2.0, 2.0, 4)
	classified, err := c.Classify(rows)
	require.NoError(t, err)

	for _, row := range classified {
		assert.Equal(t, telemetry.LabelStable, row.CSLabel, "row at %v", row.Timestamp)
	}
}

func TestClassifySeparateCellsSeparateBaselines(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := append(
		weeklyRows("QUIET", start, []float64{10, 10, 10, 10}),
		weeklyRows("BUSY", start, []float64{1000, 1000, 1000, 1000})...,
	)

	c := NewClassifier(2.0, 2.0, 4)
	classified, err := c.Classify(rows)
	require.NoError(t, err)

	for _, row := range classified {
		assert.Equal(t, telemetry.LabelStable, row.CSLabel,
			"cell %s at %v should be stable against its own baseline", row.CellID, row.Timestamp)
	}
}

func TestClassifyWindowEviction(t *testing.T) {
	// With window 2 the baseline only ever sees the previous row and the
	// current one, so a slow ramp stays inside the band while the same ramp
	// against a long window would not.
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := weeklyRows("CELL1", start, []float64{100, 100, 100, 100, 101})

	c := NewClassifier(2.0, 2.0, 2)
	classified, err := c.Classify(rows)
	require.NoError(t, err)

	last := classified[len(classified)-1]
	// Window holds {100, 101}: mean 100.5, sample stddev ~0.707, band
	// 100.5 ± 1.414, so 101 is STABLE.
	assert.Equal(t, telemetry.LabelStable, last.CSLabel)
	assert.InDelta(t, 100.5, last.CSRollingMean, 1e-9)
}

func TestClassifyOutputSortedAndComplete(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Insertion order across cells is deliberately interleaved.
	rows := []telemetry.TrafficObservation{
		{CellID: "B", Timestamp: start.Add(7 * 24 * time.Hour), TrafficCS: 1, TrafficData: 1},
		{CellID: "A", Timestamp: start, TrafficCS: 1, TrafficData: 1},
		{CellID: "B", Timestamp: start, TrafficCS: 1, TrafficData: 1},
		{CellID: "A", Timestamp: start.Add(7 * 24 * time.Hour), TrafficCS: 1, TrafficData: 1},
	}

	c := NewClassifier(2.0, 2.0, 4)
	classified, err := c.Classify(rows)
	require.NoError(t, err)
	require.Len(t, classified, 4)

	assert.Equal(t, "A", classified[0].CellID)
	assert.Equal(t, "A", classified[1].CellID)
	assert.Equal(t, "B", classified[2].CellID)
	assert.Equal(t, "B", classified[3].CellID)
	assert.True(t, classified[0].Timestamp.Before(classified[1].Timestamp))
	assert.True(t, classified[2].Timestamp.Before(classified[3].Timestamp))
}

func TestClassifyRejectsBadWindow(t *testing.T) {
	c := NewClassifier(2.0, 2.0, 0)
	_, err := c.Classify(nil)
	require.Error(t, err)
}
