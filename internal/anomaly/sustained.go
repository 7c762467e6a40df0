package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// SustainedResult is the outcome of the sustained-anomaly filter: the cells
// whose anomalous-slot count crossed the threshold inside the trailing
// horizon, and the complete classified history of those cells. Downstream
// consumers want the full history for context, not just the flagged slots.
type SustainedResult struct {
	Cells     []string
	Anomalies []telemetry.SustainedAnomaly
	Traffic   []telemetry.ClassifiedObservation
}

// SustainedFilter counts anomalous slots per cell over a trailing horizon
// and selects the cells that reach a minimum count on either signal.
type SustainedFilter struct {
	// WindowHours is the trailing evaluation horizon, anchored at the
	// maximum timestamp in the data (a global horizon, not per cell). One
	// row per hour is assumed, so the horizon also bounds the row count of
	// the trailing sum.
	WindowHours int
	// MinAnomalies is the slot count at which a cell qualifies.
	MinAnomalies int
}

// NewSustainedFilter returns a filter with the given horizon and threshold.
func NewSustainedFilter(windowHours, minAnomalies int) *SustainedFilter {
	return &SustainedFilter{WindowHours: windowHours, MinAnomalies: minAnomalies}
}

// Select applies the filter to a classified table. An empty input yields an
// empty, non-nil result.
func (f *SustainedFilter) Select(classified []telemetry.ClassifiedObservation) (*SustainedResult, error) {
	if f.WindowHours < 1 {
		return nil, fmt.Errorf("anomaly window must be >= 1 hour, got %d", f.WindowHours)
	}
	if f.MinAnomalies < 1 {
		return nil, fmt.Errorf("min anomalies must be >= 1, got %d", f.MinAnomalies)
	}

	result := &SustainedResult{
		Cells:     []string{},
		Anomalies: []telemetry.SustainedAnomaly{},
		Traffic:   []telemetry.ClassifiedObservation{},
	}
	if len(classified) == 0 {
		return result, nil
	}

	var maxTS time.Time
	for _, row := range classified {
		if row.Timestamp.After(maxTS) {
			maxTS = row.Timestamp
		}
	}
	horizonStart := maxTS.Add(-time.Duration(f.WindowHours) * time.Hour)

	// Restrict to the trailing horizon, then bucket by cell.
	byCell := make(map[string][]telemetry.ClassifiedObservation)
	for _, row := range classified {
		if row.Timestamp.Before(horizonStart) {
			continue
		}
		byCell[row.CellID] = append(byCell[row.CellID], row)
	}

	qualifying := make(map[string]bool)
	for cellID, rows := range byCell {
		sort.Slice(rows, func(i, j int) bool {
			return rows[i].Timestamp.Before(rows[j].Timestamp)
		})
		if f.cellQualifies(rows) {
			qualifying[cellID] = true
			result.Anomalies = append(result.Anomalies, telemetry.SustainedAnomaly{
				CellID:      cellID,
				WindowStart: horizonStart,
				WindowEnd:   maxTS,
			})
		}
	}

	for cellID := range qualifying {
		result.Cells = append(result.Cells, cellID)
	}
	sort.Strings(result.Cells)
	sort.Slice(result.Anomalies, func(i, j int) bool {
		return result.Anomalies[i].CellID < result.Anomalies[j].CellID
	})

	// Complete, unfiltered history for the qualifying cells.
	for _, row := range classified {
		if qualifying[row.CellID] {
			result.Traffic = append(result.Traffic, row)
		}
	}

	return result, nil
}

// cellQualifies computes the trailing indicator sum per signal over the
// most recent WindowHours rows and reports whether either signal reaches
// the threshold at any row.
func (f *SustainedFilter) cellQualifies(rows []telemetry.ClassifiedObservation) bool {
	csSum, dataSum := 0, 0
	for i, row := range rows {
		csSum += row.CSLabel.Indicator()
		dataSum += row.DataLabel.Indicator()
		if i >= f.WindowHours {
			csSum -= rows[i-f.WindowHours].CSLabel.Indicator()
			dataSum -= rows[i-f.WindowHours].DataLabel.Indicator()
		}
		if csSum >= f.MinAnomalies || dataSum >= f.MinAnomalies {
			return true
		}
	}
	return false
}
