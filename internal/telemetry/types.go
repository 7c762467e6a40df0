// Package telemetry defines the row types shared across the analysis
// pipeline: raw traffic observations, classified observations, cell
// geometry, and the anomaly/neighbor relations derived from them.
package telemetry

import (
	"fmt"
	"time"
)

// Label is the three-state classification of a traffic signal against its
// rolling baseline.
type Label string

const (
	// LabelStable indicates the signal is within its expected band.
	LabelStable Label = "STABLE"
	// LabelIncrease indicates the signal is above mean + k·stddev.
	LabelIncrease Label = "INCREASE"
	// LabelDegradation indicates the signal is below mean - k·stddev.
	LabelDegradation Label = "DEGRADATION"
)

// Indicator maps a label to its anomaly indicator: STABLE counts 0, the two
// non-stable states count 1 each toward the sustained-anomaly sum.
func (l Label) Indicator() int {
	if l == LabelIncrease || l == LabelDegradation {
		return 1
	}
	return 0
}

// ParseLabel converts a stored or wire string back into a Label.
func ParseLabel(s string) (Label, error) {
	switch Label(s) {
	case LabelStable, LabelIncrease, LabelDegradation:
		return Label(s), nil
	}
	return "", fmt.Errorf("unknown classification label %q", s)
}

// TrafficObservation is one hourly telemetry row for one cell: the
// circuit-switched and data traffic volumes at a timestamp. Rows are
// immutable once classified; ordering by timestamp within a cell drives the
// rolling windows.
type TrafficObservation struct {
	CellID      string    `json:"cell_id"`
	Timestamp   time.Time `json:"datetime"`
	TrafficCS   float64   `json:"traffic_cs"`
	TrafficData float64   `json:"traffic_data"`
}

// ClassifiedObservation extends a TrafficObservation with the rolling
// statistics of its (cell, weekday, hour) partition and the per-signal
// labels derived from them.
type ClassifiedObservation struct {
	TrafficObservation

	CSRollingMean     float64 `json:"cs_rolling_mean"`
	CSRollingStddev   float64 `json:"cs_rolling_stddev"`
	DataRollingMean   float64 `json:"data_rolling_mean"`
	DataRollingStddev float64 `json:"data_rolling_stddev"`

	CSLabel   Label `json:"cs_label"`
	DataLabel Label `json:"data_label"`
}

// CellGeometry is the static antenna record for one cell: position, the
// azimuth its main lobe points toward, and how far its coverage plausibly
// reaches (varies by province).
type CellGeometry struct {
	CellID        string  `json:"cell_id"`
	SiteID        string  `json:"site_id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Azimuth       float64 `json:"azimuth"`
	MaxDistanceKm float64 `json:"max_distance_km"`
}

// Validate checks a geometry row for degenerate values. Loaders call this
// on every row and fail fast rather than let a bad azimuth or coordinate
// produce a nonsense bearing downstream.
func (g CellGeometry) Validate() error {
	if g.CellID == "" {
		return fmt.Errorf("geometry row has empty cell_id")
	}
	if g.SiteID == "" {
		return fmt.Errorf("geometry row for cell %s has empty site_id", g.CellID)
	}
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("cell %s: latitude %v outside [-90,90]", g.CellID, g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("cell %s: longitude %v outside [-180,180]", g.CellID, g.Longitude)
	}
	if g.Azimuth < 0 || g.Azimuth >= 360 {
		return fmt.Errorf("cell %s: azimuth %v outside [0,360)", g.CellID, g.Azimuth)
	}
	if g.MaxDistanceKm <= 0 {
		return fmt.Errorf("cell %s: max_distance_km %v must be positive", g.CellID, g.MaxDistanceKm)
	}
	return nil
}

// FacingRelation is one directed (anomaly cell -> neighbor cell) pair in
// the anomaly-to-neighbor mapping. Built fresh per analysis run.
type FacingRelation struct {
	AnomalyCell  string `json:"anomaly_cell"`
	NeighborCell string `json:"neighbor_cell"`
}

// SustainedAnomaly records that a cell crossed the minimum anomalous-slot
// count within the trailing evaluation horizon.
type SustainedAnomaly struct {
	CellID      string    `json:"cell_id"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}
