// Command cellwatch-seed fills a sqlite telemetry database with synthetic
// traffic and geometry for local development: a grid of sites with three
// sectors each, several weeks of hourly traffic with diurnal shape, and
// one cell driven into a sustained anomaly at the end of the range.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/gridline-data/cellwatch/internal/db"
	"github.com/gridline-data/cellwatch/internal/telemetry"
)

var (
	dsn   = flag.String("db", "cellwatch.db", "sqlite database file to seed")
	sites = flag.Int("sites", 4, "number of sites to generate (3 sectors each)")
	weeks = flag.Int("weeks", 6, "weeks of hourly traffic to generate")
	seed  = flag.Int64("seed", 1, "random seed")
)

func main() {
	flag.Parse()

	database, err := db.NewDB(*dsn, 5.0)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	rng := rand.New(rand.NewSource(*seed))

	// Sites on a rough north-south line ~1.5 km apart, three sectors per
	// site at azimuths 0/120/240.
	var cells []telemetry.CellGeometry
	for s := 0; s < *sites; s++ {
		siteID := fmt.Sprintf("SITE%02d", s+1)
		lat := 40.0 + float64(s)*0.0135
		for sector := 0; sector < 3; sector++ {
			cells = append(cells, telemetry.CellGeometry{
				CellID:        fmt.Sprintf("%s%c", siteID, 'A'+sector),
				SiteID:        siteID,
				Latitude:      lat,
				Longitude:     -3.7,
				Azimuth:       float64(sector) * 120,
				MaxDistanceKm: 5,
			})
		}
	}
	for _, cell := range cells {
		if err := database.RecordCellGeometry(cell); err != nil {
			log.Fatalf("failed to seed geometry: %v", err)
		}
	}

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	hours := *weeks * 7 * 24
	degradedCell := cells[0].CellID

	for _, cell := range cells {
		base := 80 + rng.Float64()*60
		for h := 0; h < hours; h++ {
			ts := start.Add(time.Duration(h) * time.Hour)

			// Diurnal shape peaking in the evening, plus noise.
			hour := float64(ts.Hour())
			shape := 0.6 + 0.4*math.Sin((hour-6)/24*2*math.Pi)
			cs := base * shape * (1 + rng.NormFloat64()*0.05)
			data := base * 1.8 * shape * (1 + rng.NormFloat64()*0.05)

			// Drive one cell into degradation over its final day.
			if cell.CellID == degradedCell && h >= hours-24 {
				cs *= 0.1
				data *= 0.1
			}

			obs := telemetry.TrafficObservation{
				CellID:      cell.CellID,
				Timestamp:   ts,
				TrafficCS:   math.Max(cs, 0),
				TrafficData: math.Max(data, 0),
			}
			if err := database.RecordTrafficObservation(obs); err != nil {
				log.Fatalf("failed to seed traffic: %v", err)
			}
		}
	}

	fmt.Printf("seeded %d cells with %d hours of traffic each (%s degraded over its final day)\n",
		len(cells), hours, degradedCell)
}
