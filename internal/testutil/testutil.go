// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"testing"
	"time"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// HourlyTraffic builds count consecutive hourly observations for a cell
// starting at start, all at the given baseline volumes.
func HourlyTraffic(cellID string, start time.Time, count int, cs, data float64) []telemetry.TrafficObservation {
	rows := make([]telemetry.TrafficObservation, 0, count)
	for i := 0; i < count; i++ {
		rows = append(rows, telemetry.TrafficObservation{
			CellID:      cellID,
			Timestamp:   start.Add(time.Duration(i) * time.Hour),
			TrafficCS:   cs,
			TrafficData: data,
		})
	}
	return rows
}

// WeeklyTraffic builds one observation per week for a cell at the same
// weekday and hour, taking values in order. This shape feeds exactly one
// classifier partition.
func WeeklyTraffic(cellID string, start time.Time, values []float64) []telemetry.TrafficObservation {
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

// Cell builds a geometry row with sensible defaults for tests.
func Cell(cellID, siteID string, lat, lon, azimuth float64) telemetry.CellGeometry {
	return telemetry.CellGeometry{
		CellID:        cellID,
		SiteID:        siteID,
		Latitude:      lat,
		Longitude:     lon,
		Azimuth:       azimuth,
		MaxDistanceKm: 5,
	}
}
