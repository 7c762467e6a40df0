package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridline-data/cellwatch/internal/telemetry"
	"github.com/gridline-data/cellwatch/internal/testutil"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "cellwatch_test.db"), 5.0)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestTrafficRoundTrip(t *testing.T) {
	db := setupTestDB(t)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	want := testutil.HourlyTraffic("MAD001A", start, 3, 120.5, 80.25)
	for _, obs := range want {
		testutil.AssertNoError(t, db.RecordTrafficObservation(obs))
	}

	got, err := db.LoadTraffic(context.Background())
	testutil.AssertNoError(t, err)

	if len(got) != len(want) {
		t.Fatalf("loaded %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].CellID != want[i].CellID ||
			!got[i].Timestamp.Equal(want[i].Timestamp) ||
			got[i].TrafficCS != want[i].TrafficCS ||
			got[i].TrafficData != want[i].TrafficData {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTrafficOrderedByCellAndTime(t *testing.T) {
	db := setupTestDB(t)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Insert out of order across two cells.
	rows := []telemetry.TrafficObservation{
		{CellID: "B1", Timestamp: start.Add(time.Hour), TrafficCS: 1, TrafficData: 1},
		{CellID: "A1", Timestamp: start.Add(time.Hour), TrafficCS: 1, TrafficData: 1},
		{CellID: "B1", Timestamp: start, TrafficCS: 1, TrafficData: 1},
		{CellID: "A1", Timestamp: start, TrafficCS: 1, TrafficData: 1},
	}
	for _, obs := range rows {
		testutil.AssertNoError(t, db.RecordTrafficObservation(obs))
	}

	got, err := db.LoadTraffic(context.Background())
	testutil.AssertNoError(t, err)

	wantOrder := []string{"A1", "A1", "B1", "B1"}
	for i, cellID := range wantOrder {
		if got[i].CellID != cellID {
			t.Fatalf("row %d cell = %s, want %s", i, got[i].CellID, cellID)
		}
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("rows within a cell not ordered by timestamp")
	}
}

func TestRecordTrafficRejectsNegativeVolumes(t *testing.T) {
	db := setupTestDB(t)
	err := db.RecordTrafficObservation(telemetry.TrafficObservation{
		CellID:    "A1",
		Timestamp: time.Now(),
		TrafficCS: -1,
	})
	testutil.AssertError(t, err)
}

func TestGeometryRoundTripAndUpsert(t *testing.T) {
	db := setupTestDB(t)

	cell := testutil.Cell("MAD001A", "MAD001", 40.4168, -3.7038, 120)
	cell.MaxDistanceKm = 3.5
	testutil.AssertNoError(t, db.RecordCellGeometry(cell))

	// Upsert with a new azimuth replaces the row.
	cell.Azimuth = 240
	testutil.AssertNoError(t, db.RecordCellGeometry(cell))

	got, err := db.LoadGeometry(context.Background())
	testutil.AssertNoError(t, err)

	if len(got) != 1 {
		t.Fatalf("loaded %d geometry rows, want 1", len(got))
	}
	if got[0].Azimuth != 240 {
		t.Errorf("azimuth = %v, want upserted 240", got[0].Azimuth)
	}
	if got[0].MaxDistanceKm != 3.5 {
		t.Errorf("max distance = %v, want 3.5", got[0].MaxDistanceKm)
	}
}

func TestGeometryDefaultMaxDistance(t *testing.T) {
	db := setupTestDB(t)

	cell := testutil.Cell("MAD001A", "MAD001", 40.4168, -3.7038, 120)
	cell.MaxDistanceKm = 0 // stored as NULL
	testutil.AssertNoError(t, db.RecordCellGeometry(cell))

	got, err := db.LoadGeometry(context.Background())
	testutil.AssertNoError(t, err)

	if got[0].MaxDistanceKm != 5.0 {
		t.Errorf("max distance = %v, want configured default 5.0", got[0].MaxDistanceKm)
	}
}

func TestRecordGeometryRejectsMalformedRow(t *testing.T) {
	db := setupTestDB(t)

	bad := testutil.Cell("MAD001A", "MAD001", 40.4168, -3.7038, 360)
	testutil.AssertError(t, db.RecordCellGeometry(bad))
}

func TestLoadGeometryFailsFastOnBadStoredRow(t *testing.T) {
	db := setupTestDB(t)

	// Bypass RecordCellGeometry and plant a degenerate row directly.
	_, err := db.Exec(
		"INSERT INTO cell_geometry (cell_id, site_id, latitude, longitude, azimuth, max_distance_km) VALUES (?, ?, ?, ?, ?, ?)",
		"BAD1", "S1", 95.0, -3.7, 120.0, 5.0)
	testutil.AssertNoError(t, err)

	_, err = db.LoadGeometry(context.Background())
	testutil.AssertError(t, err)
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateUp("../../migrations"); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion("../../migrations")
	testutil.AssertNoError(t, err)
	if dirty {
		t.Error("migration state is dirty")
	}
	if version != 2 {
		t.Errorf("migration version = %d, want 2", version)
	}
}
