package api

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/gridline-data/cellwatch/internal/anomaly"
	"github.com/gridline-data/cellwatch/internal/config"
	"github.com/gridline-data/cellwatch/internal/geo"
	"github.com/gridline-data/cellwatch/internal/neighbors"
	"github.com/gridline-data/cellwatch/internal/pipeline"
	"github.com/gridline-data/cellwatch/internal/units"
)

// runAnalysis executes one full pipeline run. The request body may carry a
// partial tuning config that overrides the server's base configuration for
// this run only.
func (s *Server) runAnalysis(w http.ResponseWriter, r *http.Request) {
	override, err := decodeOverride(r.Body)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg := s.cfg.Merge(override)
	if err := cfg.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := s.clock.Now()
	p := &pipeline.Pipeline{Source: s.source, Clock: s.clock}
	report, err := p.Run(r.Context(), cfg)
	if err != nil {
		analysisRunsTotal.WithLabelValues("error").Inc()
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	analysisRunsTotal.WithLabelValues("ok").Inc()
	analysisRunDuration.Observe(s.clock.Since(start).Seconds())
	anomalousCells.Set(float64(len(report.AnomalousCells)))
	neighborRelations.Set(float64(len(report.Mapping)))

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, report)
}

func decodeOverride(body io.Reader) (*config.TuningConfig, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	override := config.EmptyTuningConfig()
	if err := json.Unmarshal(data, override); err != nil {
		return nil, fmt.Errorf("parse tuning overrides: %w", err)
	}
	return override, nil
}

// lastAnalysis returns the most recent report, if any run has completed.
func (s *Server) lastAnalysis(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	report := s.lastReport
	s.mu.RUnlock()

	if report == nil {
		s.writeJSONError(w, http.StatusNotFound, "no analysis run yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// downloadCombinedCSV streams the combined classified traffic table of the
// most recent run as a CSV attachment for the plotting collaborator.
func (s *Server) downloadCombinedCSV(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	report := s.lastReport
	s.mu.RUnlock()

	if report == nil {
		s.writeJSONError(w, http.StatusNotFound, "no analysis run yet")
		return
	}

	filename := fmt.Sprintf("cellwatch-%s.csv", report.GeneratedAt.UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"cell_id", "datetime", "traffic_cs", "traffic_data",
		"cs_rolling_mean", "cs_rolling_stddev",
		"data_rolling_mean", "data_rolling_stddev",
		"cs_label", "data_label",
	}
	if err := cw.Write(header); err != nil {
		return
	}
	for _, row := range report.Combined {
		record := []string{
			row.CellID,
			row.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(row.TrafficCS, 'f', -1, 64),
			strconv.FormatFloat(row.TrafficData, 'f', -1, 64),
			strconv.FormatFloat(row.CSRollingMean, 'f', -1, 64),
			strconv.FormatFloat(row.CSRollingStddev, 'f', -1, 64),
			strconv.FormatFloat(row.DataRollingMean, 'f', -1, 64),
			strconv.FormatFloat(row.DataRollingStddev, 'f', -1, 64),
			string(row.CSLabel),
			string(row.DataLabel),
		}
		if err := cw.Write(record); err != nil {
			return
		}
	}
}

// neighborEntry is one row of the neighbor lookup response. Distance is
// converted to the requested units.
type neighborEntry struct {
	CellID   string  `json:"cell_id"`
	SiteID   string  `json:"site_id"`
	Azimuth  float64 `json:"azimuth"`
	Distance float64 `json:"distance"`
}

type neighborResponse struct {
	CellID    string          `json:"cell_id"`
	Units     string          `json:"units"`
	Neighbors []neighborEntry `json:"neighbors"`
}

// showNeighbors resolves the facing cells of one target cell on demand.
func (s *Server) showNeighbors(w http.ResponseWriter, r *http.Request) {
	targetUnits := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		targetUnits = u
	}
	if !units.IsValid(targetUnits) {
		s.writeJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid units %q, valid units are: %s", targetUnits, units.GetValidUnitsString()))
		return
	}

	geometry, err := s.source.LoadGeometry(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load geometry: %v", err))
		return
	}

	resolver, err := neighbors.NewResolver(geometry, s.cfg.GetHalfBeamwidthDeg())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("build resolver: %v", err))
		return
	}

	cellID := mux.Vars(r)["cell"]
	facing, err := resolver.FacingCells(cellID)
	if err != nil {
		if errors.Is(err, neighbors.ErrCellUnknown) {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("cell %s not found in geometry table", cellID))
			return
		}
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	target, _ := resolver.Lookup(cellID)
	resp := neighborResponse{CellID: cellID, Units: targetUnits, Neighbors: []neighborEntry{}}
	for _, n := range facing {
		distanceKm := geo.GreatCircleDistance(target.Latitude, target.Longitude, n.Latitude, n.Longitude)
		resp.Neighbors = append(resp.Neighbors, neighborEntry{
			CellID:   n.CellID,
			SiteID:   n.SiteID,
			Azimuth:  n.Azimuth,
			Distance: units.ConvertDistance(distanceKm, targetUnits),
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// showCellStats returns descriptive statistics for one cell's traffic.
func (s *Server) showCellStats(w http.ResponseWriter, r *http.Request) {
	cellID := mux.Vars(r)["cell"]

	traffic, err := s.source.LoadTraffic(r.Context())
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load traffic: %v", err))
		return
	}

	summary := anomaly.Summarize(cellID, traffic)
	if summary.CS.Count == 0 {
		s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no traffic recorded for cell %s", cellID))
		return
	}

	s.writeJSON(w, http.StatusOK, summary)
}
