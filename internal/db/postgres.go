package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/gridline-data/cellwatch/internal/telemetry"
)

// PostgresSource loads the traffic and geometry tables from a Postgres
// warehouse. It implements the same source contract as the sqlite DB and
// is selected when the DSN starts with postgres://.
type PostgresSource struct {
	db                   *sql.DB
	defaultMaxDistanceKm float64
}

// NewPostgresSource opens and pings a Postgres connection.
func NewPostgresSource(dsn string, defaultMaxDistanceKm float64) (*PostgresSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresSource{db: db, defaultMaxDistanceKm: defaultMaxDistanceKm}, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() error {
	return s.db.Close()
}

// LoadTraffic returns every traffic row ordered by cell and timestamp.
func (s *PostgresSource) LoadTraffic(ctx context.Context) ([]telemetry.TrafficObservation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, datetime, traffic_cs, traffic_data
		 FROM cell_traffic ORDER BY cell_id, datetime`)
	if err != nil {
		return nil, fmt.Errorf("query cell_traffic: %w", err)
	}
	defer rows.Close()

	var observations []telemetry.TrafficObservation
	for rows.Next() {
		var obs telemetry.TrafficObservation
		if err := rows.Scan(&obs.CellID, &obs.Timestamp, &obs.TrafficCS, &obs.TrafficData); err != nil {
			return nil, fmt.Errorf("scan cell_traffic row: %w", err)
		}
		observations = append(observations, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return observations, nil
}

// LoadGeometry returns the validated geometry table, applying the default
// max distance to rows stored without one.
func (s *PostgresSource) LoadGeometry(ctx context.Context) ([]telemetry.CellGeometry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cell_id, site_id, latitude, longitude, azimuth, max_distance_km
		 FROM cell_geometry ORDER BY cell_id`)
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
			g.MaxDistanceKm = s.defaultMaxDistanceKm
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
