package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gridline-data/cellwatch/internal/config"
	"github.com/gridline-data/cellwatch/internal/pipeline"
	"github.com/gridline-data/cellwatch/internal/telemetry"
	"github.com/gridline-data/cellwatch/internal/testutil"
)

type fakeSource struct {
	traffic  []telemetry.TrafficObservation
	geometry []telemetry.CellGeometry
}

func (s *fakeSource) LoadTraffic(ctx context.Context) ([]telemetry.TrafficObservation, error) {
	return s.traffic, nil
}

func (s *fakeSource) LoadGeometry(ctx context.Context) ([]telemetry.CellGeometry, error) {
	return s.geometry, nil
}

// anomalySource builds a source whose A1 cell spikes in its latest slot
// and faces A2 across ~2 km.
func anomalySource() *fakeSource {
	start := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	values := make([]float64, 0, 24)
	for i := 0; i < 23; i++ {
		if i%2 == 0 {
			values = append(values, 90)
		} else {
			values = append(values, 110)
		}
	}
	values = append(values, 400)

	traffic := testutil.WeeklyTraffic("A1", start, values)
	traffic = append(traffic, testutil.WeeklyTraffic("A2", start, []float64{50, 50, 50})...)

	return &fakeSource{
		traffic: traffic,
		geometry: []telemetry.CellGeometry{
			testutil.Cell("A1", "S-1", 40.0, -3.7, 90),
			testutil.Cell("A2", "S-2", 40.0, -3.6765, 270),
		},
	}
}

func newTestServer() *Server {
	return NewServer(anomalySource(), config.EmptyTuningConfig(), "km")
}

func doRequest(s *Server, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestShowConfig(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodGet, "/api/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var params pipeline.Params
	if err := json.Unmarshal(rec.Body.Bytes(), &params); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if params.CSMultiplier != config.DefaultCSMultiplier {
		t.Errorf("cs_multiplier = %v, want default %v", params.CSMultiplier, config.DefaultCSMultiplier)
	}
}

func TestRunAnalysisAndFetch(t *testing.T) {
	s := newTestServer()

	// No report before the first run.
	if rec := doRequest(s, http.MethodGet, "/api/analysis", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("GET before run: status = %d, want 404", rec.Code)
	}

	rec := doRequest(s, http.MethodPost, "/api/analysis",
		`{"cs_multiplier": 1.5, "anomaly_window": 12, "min_anomalies": 1, "classification_window": 24}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST status = %d, body %s", rec.Code, rec.Body.String())
	}

	var report pipeline.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("bad report JSON: %v", err)
	}
	if len(report.AnomalousCells) != 1 || report.AnomalousCells[0] != "A1" {
		t.Errorf("anomalous cells = %v, want [A1]", report.AnomalousCells)
	}
	if len(report.Mapping) != 1 || report.Mapping[0].NeighborCell != "A2" {
		t.Errorf("mapping = %v, want A1->A2", report.Mapping)
	}
	// The override applies per run without mutating the server config.
	if report.Params.CSMultiplier != 1.5 {
		t.Errorf("run cs_multiplier = %v, want 1.5", report.Params.CSMultiplier)
	}

	// The report is now fetchable.
	rec = doRequest(s, http.MethodGet, "/api/analysis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET after run: status = %d, want 200", rec.Code)
	}

	// And the server's own config is unchanged.
	rec = doRequest(s, http.MethodGet, "/api/config", "")
	var params pipeline.Params
	if err := json.Unmarshal(rec.Body.Bytes(), &params); err != nil {
		t.Fatalf("bad config JSON: %v", err)
	}
	if params.CSMultiplier != config.DefaultCSMultiplier {
		t.Errorf("server cs_multiplier mutated to %v", params.CSMultiplier)
	}
}

func TestRunAnalysisRejectsBadOverride(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodPost, "/api/analysis", `{"cs_multiplier": -2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = doRequest(s, http.MethodPost, "/api/analysis", `{"cs_multiplier": `)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed JSON: status = %d, want 400", rec.Code)
	}
}

func TestDownloadCSV(t *testing.T) {
	s := newTestServer()

	if rec := doRequest(s, http.MethodGet, "/api/analysis/csv", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("CSV before run: status = %d, want 404", rec.Code)
	}

	doRequest(s, http.MethodPost, "/api/analysis",
		`{"cs_multiplier": 1.5, "min_anomalies": 1, "classification_window": 24}`)

	rec := doRequest(s, http.MethodGet, "/api/analysis/csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("CSV status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if !strings.HasPrefix(lines[0], "cell_id,datetime,traffic_cs") {
		t.Errorf("unexpected CSV header: %s", lines[0])
	}
	if len(lines) < 2 {
		t.Error("CSV has no data rows")
	}
}

func TestShowNeighbors(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodGet, "/api/neighbours/A1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp neighborResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if len(resp.Neighbors) != 1 || resp.Neighbors[0].CellID != "A2" {
		t.Fatalf("neighbors = %+v, want [A2]", resp.Neighbors)
	}
	if resp.Neighbors[0].Distance < 1.5 || resp.Neighbors[0].Distance > 2.5 {
		t.Errorf("distance = %v km, want ~2", resp.Neighbors[0].Distance)
	}
}

func TestShowNeighborsUnits(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodGet, "/api/neighbours/A1?units=m", "")
	var resp neighborResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if resp.Neighbors[0].Distance < 1500 || resp.Neighbors[0].Distance > 2500 {
		t.Errorf("distance = %v m, want ~2000", resp.Neighbors[0].Distance)
	}

	rec = doRequest(s, http.MethodGet, "/api/neighbours/A1?units=leagues", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid units: status = %d, want 400", rec.Code)
	}
}

func TestShowNeighborsUnknownCell(t *testing.T) {
	rec := doRequest(newTestServer(), http.MethodGet, "/api/neighbours/GHOST", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestShowCellStats(t *testing.T) {
	s := newTestServer()

	rec := doRequest(s, http.MethodGet, "/api/cells/A1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response JSON: %v", err)
	}
	if body["cell_id"] != "A1" {
		t.Errorf("cell_id = %v, want A1", body["cell_id"])
	}

	rec = doRequest(s, http.MethodGet, "/api/cells/GHOST/stats", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing cell: status = %d, want 404", rec.Code)
	}
}
