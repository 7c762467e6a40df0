// Command cellwatch-analyse runs one analysis batch against a telemetry
// database and writes the result tables as CSV files for the plotting
// pipeline.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridline-data/cellwatch/internal/config"
	"github.com/gridline-data/cellwatch/internal/db"
	"github.com/gridline-data/cellwatch/internal/pipeline"
)

var (
	dsn        = flag.String("db", "cellwatch.db", "Telemetry database: sqlite file path or postgres:// DSN")
	configPath = flag.String("config", "", "Path to tuning config JSON (optional)")
	outDir     = flag.String("out", ".", "Directory to write result CSVs into")
)

func main() {
	flag.Parse()

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	var source pipeline.Source
	if strings.HasPrefix(*dsn, "postgres://") || strings.HasPrefix(*dsn, "postgresql://") {
		pg, err := db.NewPostgresSource(*dsn, cfg.GetDefaultMaxDistanceKm())
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pg.Close()
		source = pg
	} else {
		sqlite, err := db.NewDB(*dsn, cfg.GetDefaultMaxDistanceKm())
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer sqlite.Close()
		source = sqlite
	}

	report, err := pipeline.New(source).Run(context.Background(), cfg)
	if err != nil {
		log.Fatalf("analysis failed: %v", err)
	}

	if err := writeCombined(filepath.Join(*outDir, "combined_traffic.csv"), report); err != nil {
		log.Fatalf("failed to write combined traffic: %v", err)
	}
	if err := writeMapping(filepath.Join(*outDir, "neighbor_mapping.csv"), report); err != nil {
		log.Fatalf("failed to write neighbor mapping: %v", err)
	}
	if err := writeGeometry(filepath.Join(*outDir, "geometry.csv"), report); err != nil {
		log.Fatalf("failed to write geometry: %v", err)
	}

	fmt.Printf("run %s: %d anomalous cells, %d neighbor relations, %d combined rows\n",
		report.RunID, len(report.AnomalousCells), len(report.Mapping), len(report.Combined))
	for _, cell := range report.AnomalousCells {
		fmt.Printf("  %s\n", cell)
	}
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(header); err != nil {
		return err
	}
	return w.WriteAll(rows)
}

func writeCombined(path string, report *pipeline.Report) error {
	rows := make([][]string, 0, len(report.Combined))
	for _, row := range report.Combined {
		rows = append(rows, []string{
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
		})
	}
	header := []string{
		"cell_id", "datetime", "traffic_cs", "traffic_data",
		"cs_rolling_mean", "cs_rolling_stddev",
		"data_rolling_mean", "data_rolling_stddev",
		"cs_label", "data_label",
	}
	return writeCSV(path, header, rows)
}

func writeMapping(path string, report *pipeline.Report) error {
	rows := make([][]string, 0, len(report.Mapping))
	for _, rel := range report.Mapping {
		rows = append(rows, []string{rel.AnomalyCell, rel.NeighborCell})
	}
	return writeCSV(path, []string{"anomaly_cell", "neighbor_cell"}, rows)
}

func writeGeometry(path string, report *pipeline.Report) error {
	rows := make([][]string, 0, len(report.Geometry))
	for _, g := range report.Geometry {
		rows = append(rows, []string{
			g.CellID,
			g.SiteID,
			strconv.FormatFloat(g.Latitude, 'f', -1, 64),
			strconv.FormatFloat(g.Longitude, 'f', -1, 64),
			strconv.FormatFloat(g.Azimuth, 'f', -1, 64),
			strconv.FormatFloat(g.MaxDistanceKm, 'f', -1, 64),
		})
	}
	header := []string{"cell_id", "site_id", "latitude", "longitude", "azimuth", "max_distance_km"}
	return writeCSV(path, header, rows)
}
