// Package pipeline wires the analysis stages into a single batch run:
// classification, sustained-anomaly selection, neighbor resolution, and
// the combined report handed to downstream consumers.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-data/cellwatch/internal/anomaly"
	"github.com/gridline-data/cellwatch/internal/config"
	"github.com/gridline-data/cellwatch/internal/neighbors"
	"github.com/gridline-data/cellwatch/internal/telemetry"
	"github.com/gridline-data/cellwatch/internal/timeutil"
)

// Source supplies the two input tables of a run. Implementations load from
// sqlite or Postgres; the pipeline itself performs no I/O beyond these two
// calls.
type Source interface {
	LoadTraffic(ctx context.Context) ([]telemetry.TrafficObservation, error)
	LoadGeometry(ctx context.Context) ([]telemetry.CellGeometry, error)
}

// Params records the effective tuning values of a run, echoed on the
// report for reproducibility.
type Params struct {
	CSMultiplier         float64 `json:"cs_multiplier"`
	DataMultiplier       float64 `json:"data_multiplier"`
	ClassificationWindow int     `json:"classification_window"`
	AnomalyWindowHours   int     `json:"anomaly_window"`
	MinAnomalies         int     `json:"min_anomalies"`
	HalfBeamwidthDeg     float64 `json:"half_beamwidth"`
}

// ParamsFromTuning resolves a TuningConfig into the concrete values a run
// will use.
func ParamsFromTuning(cfg *config.TuningConfig) Params {
	return Params{
		CSMultiplier:         cfg.GetCSMultiplier(),
		DataMultiplier:       cfg.GetDataMultiplier(),
		ClassificationWindow: cfg.GetClassificationWindow(),
		AnomalyWindowHours:   cfg.GetAnomalyWindowHours(),
		MinAnomalies:         cfg.GetMinAnomalies(),
		HalfBeamwidthDeg:     cfg.GetHalfBeamwidthDeg(),
	}
}

// Report is the in-memory result of one analysis run. Nothing here is
// persisted; each run recomputes everything from the source tables.
type Report struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Params      Params    `json:"params"`

	// AnomalousCells is the set of cells with a sustained anomaly.
	AnomalousCells []string                     `json:"anomalous_cells"`
	Anomalies      []telemetry.SustainedAnomaly `json:"anomalies"`

	// Combined is the deduplicated union of the anomalous cells' own
	// classified traffic and their neighbors' traffic, the table the
	// plotting collaborator consumes.
	Combined []telemetry.ClassifiedObservation `json:"combined_traffic"`

	// Mapping is the directed anomaly→neighbor relation.
	Mapping []telemetry.FacingRelation `json:"neighbor_mapping"`

	// Geometry covers every involved cell, anomalous and neighbor alike.
	Geometry []telemetry.CellGeometry `json:"geometry"`
}

// Pipeline runs the full detection batch against a telemetry source.
type Pipeline struct {
	Source Source
	Clock  timeutil.Clock
}

// New returns a Pipeline over the given source using the real clock.
func New(source Source) *Pipeline {
	return &Pipeline{Source: source, Clock: timeutil.RealClock{}}
}

// Run executes one batch: load, classify, select sustained anomalies,
// resolve neighbors, combine. The batch either completes or returns the
// first error; there is no partial result.
func (p *Pipeline) Run(ctx context.Context, cfg *config.TuningConfig) (*Report, error) {
	params := ParamsFromTuning(cfg)

	traffic, err := p.Source.LoadTraffic(ctx)
	if err != nil {
		return nil, fmt.Errorf("load traffic: %w", err)
	}
	geometry, err := p.Source.LoadGeometry(ctx)
	if err != nil {
		return nil, fmt.Errorf("load geometry: %w", err)
	}

	classifier := anomaly.NewClassifier(params.CSMultiplier, params.DataMultiplier, params.ClassificationWindow)
	classified, err := classifier.Classify(traffic)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	filter := anomaly.NewSustainedFilter(params.AnomalyWindowHours, params.MinAnomalies)
	sustained, err := filter.Select(classified)
	if err != nil {
		return nil, fmt.Errorf("select sustained anomalies: %w", err)
	}

	resolver, err := neighbors.NewResolver(geometry, params.HalfBeamwidthDeg)
	if err != nil {
		return nil, fmt.Errorf("build neighbor resolver: %w", err)
	}
	agg, err := resolver.Aggregate(sustained.Cells, classified)
	if err != nil {
		return nil, fmt.Errorf("aggregate neighbor traffic: %w", err)
	}

	report := &Report{
		RunID:          uuid.New().String(),
		GeneratedAt:    p.Clock.Now(),
		Params:         params,
		AnomalousCells: sustained.Cells,
		Anomalies:      sustained.Anomalies,
		Combined:       combineTraffic(sustained.Traffic, agg.NeighborTraffic),
		Mapping:        agg.Mapping,
		Geometry:       agg.Geometry,
	}

	log.Printf("analysis run %s: %d observations, %d cells anomalous, %d neighbor relations",
		report.RunID, len(traffic), len(report.AnomalousCells), len(report.Mapping))

	return report, nil
}

// combineTraffic unions the anomalous and neighbor traffic tables,
// deduplicating on (cell, timestamp). A neighbor that is itself anomalous
// appears once.
func combineTraffic(anomalous, neighbor []telemetry.ClassifiedObservation) []telemetry.ClassifiedObservation {
	type rowKey struct {
		cellID string
		ts     time.Time
	}

	seen := make(map[rowKey]bool, len(anomalous)+len(neighbor))
	combined := []telemetry.ClassifiedObservation{}
	for _, row := range append(append([]telemetry.ClassifiedObservation{}, anomalous...), neighbor...) {
		key := rowKey{row.CellID, row.Timestamp}
		if seen[key] {
			continue
		}
		seen[key] = true
		combined = append(combined, row)
	}

	sort.Slice(combined, func(i, j int) bool {
		if combined[i].CellID != combined[j].CellID {
			return combined[i].CellID < combined[j].CellID
		}
		return combined[i].Timestamp.Before(combined[j].Timestamp)
	})
	return combined
}
