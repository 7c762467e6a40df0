package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gridline-data/cellwatch/internal/api"
	"github.com/gridline-data/cellwatch/internal/config"
	"github.com/gridline-data/cellwatch/internal/db"
	"github.com/gridline-data/cellwatch/internal/pipeline"
	"github.com/gridline-data/cellwatch/internal/units"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dsn           = flag.String("db", "cellwatch.db", "Telemetry database: sqlite file path or postgres:// DSN")
	configPath    = flag.String("config", "", "Path to tuning config JSON (optional)")
	unitsFlag     = flag.String("units", units.KM, "Distance units for API responses (km, mi, m)")
	migrationsDir = flag.String("migrations", "", "Run sqlite migrations from this directory on startup")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*unitsFlag) {
		log.Fatalf("invalid units %q, valid units are: %s", *unitsFlag, units.GetValidUnitsString())
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	var source pipeline.Source
	adminMux := http.NewServeMux()

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

		if *migrationsDir != "" {
			if err := sqlite.MigrateUp(*migrationsDir); err != nil {
				log.Fatalf("failed to run migrations: %v", err)
			}
		}

		// admin debugging routes (live SQL console, backups)
		sqlite.AttachAdminRoutes(adminMux)
		source = sqlite
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		mux.Handle("/debug/", adminMux)
		mux.Handle("/", api.NewServer(source, cfg, *unitsFlag).Router())

		server := &http.Server{
			Addr:    *listen,
			Handler: mux,
		}

		go func() {
			log.Printf("cellwatch listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	wg.Wait()
}
