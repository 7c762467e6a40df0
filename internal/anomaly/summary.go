package anomaly

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// SignalSummary holds descriptive statistics for one traffic signal of one
// cell over its full history.
type SignalSummary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Stddev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P85    float64 `json:"p85"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
}

// CellSummary pairs the two signal summaries for a cell.
type CellSummary struct {
	CellID string        `json:"cell_id"`
	CS     SignalSummary `json:"traffic_cs"`
	Data   SignalSummary `json:"traffic_data"`
}

func summarize(values []float64) SignalSummary {
	s := SignalSummary{Count: len(values)}
	if len(values) == 0 {
		return s
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s.Mean = stat.Mean(sorted, nil)
	if len(sorted) > 1 {
		s.Stddev = stat.StdDev(sorted, nil)
	}
	s.P50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P85 = stat.Quantile(0.85, stat.Empirical, sorted, nil)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.Max = sorted[len(sorted)-1]
	return s
}

// Summarize computes per-signal descriptive statistics for one cell's
// observations. Used by the stats API endpoint; empty input yields zeroed
// summaries with Count 0.
func Summarize(cellID string, observations []telemetry.TrafficObservation) CellSummary {
	cs := make([]float64, 0, len(observations))
	data := make([]float64, 0, len(observations))
	for _, obs := range observations {
		if obs.CellID != cellID {
			continue
		}
		cs = append(cs, obs.TrafficCS)
		data = append(data, obs.TrafficData)
	}

	return CellSummary{
		CellID: cellID,
		CS:     summarize(cs),
		Data:   summarize(data),
	}
}
