package neighbors

import (
	"errors"
	"log"
	"sort"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// Aggregation is the neighbor context for a batch of anomalous cells: the
// directed anomaly→neighbor mapping, the geometry of every involved cell,
// and the classified traffic of the neighbor cells.
type Aggregation struct {
	Mapping         []telemetry.FacingRelation
	Geometry        []telemetry.CellGeometry
	NeighborTraffic []telemetry.ClassifiedObservation
}

// Aggregate resolves the facing neighbors of every anomalous cell and
// collects their traffic from the classified table. Anomalous cells absent
// from the geometry table contribute nothing, matching a lookup miss in
// the source data; they are logged so operators can reconcile the tables.
// An empty anomalous set yields empty, non-nil tables.
func (r *Resolver) Aggregate(anomalousCells []string, classified []telemetry.ClassifiedObservation) (*Aggregation, error) {
	agg := &Aggregation{
		Mapping:         []telemetry.FacingRelation{},
		Geometry:        []telemetry.CellGeometry{},
		NeighborTraffic: []telemetry.ClassifiedObservation{},
	}

	neighborSet := make(map[string]bool)
	involved := make(map[string]bool)

	for _, cellID := range anomalousCells {
		facing, err := r.FacingCells(cellID)
		if err != nil {
			if errors.Is(err, ErrCellUnknown) {
				log.Printf("anomalous cell %s has no geometry record, skipping neighbor resolution", cellID)
				continue
			}
			return nil, err
		}

		involved[cellID] = true
		for _, neighbor := range facing {
			agg.Mapping = append(agg.Mapping, telemetry.FacingRelation{
				AnomalyCell:  cellID,
				NeighborCell: neighbor.CellID,
			})
			neighborSet[neighbor.CellID] = true
			involved[neighbor.CellID] = true
		}
	}

	for cellID := range involved {
		if cell, ok := r.Lookup(cellID); ok {
			agg.Geometry = append(agg.Geometry, cell)
		}
	}
	sort.Slice(agg.Geometry, func(i, j int) bool {
		return agg.Geometry[i].CellID < agg.Geometry[j].CellID
	})

	sort.Slice(agg.Mapping, func(i, j int) bool {
		if agg.Mapping[i].AnomalyCell != agg.Mapping[j].AnomalyCell {
			return agg.Mapping[i].AnomalyCell < agg.Mapping[j].AnomalyCell
		}
		return agg.Mapping[i].NeighborCell < agg.Mapping[j].NeighborCell
	})

	for _, row := range classified {
		if neighborSet[row.CellID] {
			agg.NeighborTraffic = append(agg.NeighborTraffic, row)
		}
	}

	return agg, nil
}
