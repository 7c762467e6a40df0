// Package neighbors resolves which cells physically face each other from
// antenna geometry, and aggregates neighbor traffic for anomalous cells.
package neighbors

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gridline-data/cellwatch/internal/geo"
	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// ErrCellUnknown is returned when a target cell is absent from the
// geometry table. Callers that don't need to distinguish an unknown cell
// from one with no facing cells can treat it as an empty neighbor set;
// the aggregator does exactly that.
var ErrCellUnknown = errors.New("cell not present in geometry table")

// Resolver computes the facing-cell relation over a geometry table.
//
// Resolution is a naive all-pairs scan: each FacingCells call is O(n) over
// the table, so resolving a batch of m anomalous cells costs O(m·n)
// distance/bearing evaluations. Geometry tables are static per run and in
// the thousands of rows, which keeps this well inside budget; a spatial
// index would change none of the results.
type Resolver struct {
	// HalfBeamwidth is half the coverage-cone width in degrees applied to
	// both ends of the mutual-facing test.
	HalfBeamwidth float64

	cells []telemetry.CellGeometry
	byID  map[string]telemetry.CellGeometry
}

// NewResolver validates every geometry row and builds a resolver over the
// table. A malformed row fails the whole construction rather than leak a
// degenerate bearing into resolution.
func NewResolver(cells []telemetry.CellGeometry, halfBeamwidth float64) (*Resolver, error) {
	if halfBeamwidth <= 0 || halfBeamwidth > 180 {
		return nil, fmt.Errorf("half beamwidth %v outside (0,180]", halfBeamwidth)
	}

	byID := make(map[string]telemetry.CellGeometry, len(cells))
	for _, cell := range cells {
		if err := cell.Validate(); err != nil {
			return nil, fmt.Errorf("invalid geometry table: %w", err)
		}
		if _, dup := byID[cell.CellID]; dup {
			return nil, fmt.Errorf("invalid geometry table: duplicate cell_id %s", cell.CellID)
		}
		byID[cell.CellID] = cell
	}

	return &Resolver{
		HalfBeamwidth: halfBeamwidth,
		cells:         cells,
		byID:          byID,
	}, nil
}

// Lookup returns the geometry row for a cell, if present.
func (r *Resolver) Lookup(cellID string) (telemetry.CellGeometry, bool) {
	cell, ok := r.byID[cellID]
	return cell, ok
}

// FacingCells returns the neighbors of target: every cell within the
// target's max distance whose antenna points back at the target while the
// target's antenna points at it, plus co-located cells that share the
// target's site and azimuth (the same sector split across hardware, where
// the distance/bearing test is degenerate). The target itself is never a
// neighbor. Returns ErrCellUnknown when target is not in the table.
func (r *Resolver) FacingCells(target string) ([]telemetry.CellGeometry, error) {
	t, ok := r.byID[target]
	if !ok {
		return nil, fmt.Errorf("resolve %s: %w", target, ErrCellUnknown)
	}

	neighbors := []telemetry.CellGeometry{}
	for _, candidate := range r.cells {
		if candidate.CellID == t.CellID {
			continue
		}

		// Same physical sector on separate hardware: always a neighbor.
		if candidate.SiteID == t.SiteID && candidate.Azimuth == t.Azimuth {
			neighbors = append(neighbors, candidate)
			continue
		}
		// Otherwise co-located cells never pass the mutual-facing test.
		if candidate.SiteID == t.SiteID {
			continue
		}

		distance := geo.GreatCircleDistance(t.Latitude, t.Longitude, candidate.Latitude, candidate.Longitude)
		if distance > t.MaxDistanceKm {
			continue
		}

		// The two bearings are computed separately: except on short hops
		// they are not 180° opposites.
		outbound := geo.Bearing(t.Latitude, t.Longitude, candidate.Latitude, candidate.Longitude)
		inbound := geo.Bearing(candidate.Latitude, candidate.Longitude, t.Latitude, t.Longitude)

		if geo.WithinCoverage(outbound, t.Azimuth, r.HalfBeamwidth) &&
			geo.WithinCoverage(inbound, candidate.Azimuth, r.HalfBeamwidth) {
			neighbors = append(neighbors, candidate)
		}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].CellID < neighbors[j].CellID
	})
	return neighbors, nil
}
