// Package db provides the sqlite-backed telemetry source: the cell traffic
// and geometry tables the analysis pipeline loads its inputs from, plus
// the admin debug routes for live SQL inspection and backups.
package db

import (
	"compress/gzip"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

type DB struct {
	*sql.DB

	// defaultMaxDistanceKm fills in geometry rows stored without a
	// province-specific max distance.
	defaultMaxDistanceKm float64
}

func NewDB(path string, defaultMaxDistanceKm float64) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cell_traffic (
			cell_id           TEXT NOT NULL,
			datetime          TIMESTAMP NOT NULL,
			traffic_cs        DOUBLE NOT NULL,
			traffic_data      DOUBLE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_cell_traffic_cell_datetime
			ON cell_traffic(cell_id, datetime);
		CREATE TABLE IF NOT EXISTS cell_geometry (
			cell_id           TEXT PRIMARY KEY,
			site_id           TEXT NOT NULL,
			latitude          DOUBLE NOT NULL,
			longitude         DOUBLE NOT NULL,
			azimuth           DOUBLE NOT NULL,
			max_distance_km   DOUBLE
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{DB: db, defaultMaxDistanceKm: defaultMaxDistanceKm}, nil
}

// RecordTrafficObservation inserts one hourly traffic row.
func (db *DB) RecordTrafficObservation(obs telemetry.TrafficObservation) error {
	if obs.TrafficCS < 0 || obs.TrafficData < 0 {
		return fmt.Errorf("cell %s at %v: traffic volumes must be non-negative", obs.CellID, obs.Timestamp)
	}
	_, err := db.Exec(
		"INSERT INTO cell_traffic (cell_id, datetime, traffic_cs, traffic_data) VALUES (?, ?, ?, ?)",
		obs.CellID, obs.Timestamp.UTC().Format(time.RFC3339), obs.TrafficCS, obs.TrafficData,
	)
	if err != nil {
		return fmt.Errorf("failed to record traffic observation: %w", err)
	}
	return nil
}

// RecordCellGeometry upserts one geometry row. The row is validated before
// it can reach the resolver; a zero MaxDistanceKm is stored as NULL and
// resolved to the configured default on load.
func (db *DB) RecordCellGeometry(g telemetry.CellGeometry) error {
	var maxDistance interface{}
	if g.MaxDistanceKm > 0 {
		maxDistance = g.MaxDistanceKm
	} else {
		g.MaxDistanceKm = db.defaultMaxDistanceKm
	}
	if err := g.Validate(); err != nil {
		return fmt.Errorf("refusing to record geometry: %w", err)
	}

	_, err := db.Exec(`
		INSERT INTO cell_geometry (cell_id, site_id, latitude, longitude, azimuth, max_distance_km)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_id) DO UPDATE SET
			site_id = excluded.site_id,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			azimuth = excluded.azimuth,
			max_distance_km = excluded.max_distance_km`,
		g.CellID, g.SiteID, g.Latitude, g.Longitude, g.Azimuth, maxDistance,
	)
	if err != nil {
		return fmt.Errorf("failed to record cell geometry: %w", err)
	}
	return nil
}

// LoadTraffic returns every traffic row ordered by cell and timestamp.
func (db *DB) LoadTraffic(ctx context.Context) ([]telemetry.TrafficObservation, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT cell_id, datetime, traffic_cs, traffic_data FROM cell_traffic ORDER BY cell_id, datetime")
	if err != nil {
		return nil, fmt.Errorf("query cell_traffic: %w", err)
	}
	defer rows.Close()

	var observations []telemetry.TrafficObservation
	for rows.Next() {
		var obs telemetry.TrafficObservation
		var ts string
		if err := rows.Scan(&obs.CellID, &ts, &obs.TrafficCS, &obs.TrafficData); err != nil {
			return nil, fmt.Errorf("scan cell_traffic row: %w", err)
		}
		obs.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("cell %s: bad datetime %q: %w", obs.CellID, ts, err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return observations, nil
}

// LoadGeometry returns the full geometry table. Every row is validated on
// the way out so a bad azimuth or coordinate aborts the load instead of
// surfacing later as a degenerate bearing.
func (db *DB) LoadGeometry(ctx context.Context) ([]telemetry.CellGeometry, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT cell_id, site_id, latitude, longitude, azimuth, max_distance_km FROM cell_geometry ORDER BY cell_id")
	if err != nil {
		return nil, fmt.Errorf("query cell_geometry: %w", err)
	}
	defer rows.Close()

	var cells []telemetry.CellGeometry
	for rows.Next() {
		var g telemetry.CellGeometry
		var maxDistance sql.NullFloat64
		if err := rows.Scan(&g.CellID, &g.SiteID, &g.Latitude, &g.Longitude, &g.Azimuth, &maxDistance); err != nil {
			return nil, fmt.Errorf("scan cell_geometry row: %w", err)
		}
		if maxDistance.Valid {
			g.MaxDistanceKm = maxDistance.Float64
		} else {
			g.MaxDistanceKm = db.defaultMaxDistanceKm
		}
		if err := g.Validate(); err != nil {
			return nil, fmt.Errorf("load geometry: %w", err)
		}
		cells = append(cells, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cells, nil
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://cellwatch.db", db.DB, &tailsql.DBOptions{
		Label: "Cellwatch DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
