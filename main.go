package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	av "github.com/johnwashburne/Sector-Metrics-Dashboard/api/alpha_vantage"
	"github.com/johnwashburne/Sector-Metrics-Dashboard/api/polygon"
	"github.com/johnwashburne/Sector-Metrics-Dashboard/api/sheets"
	"github.com/johnwashburne/Sector-Metrics-Dashboard/config"
	c "github.com/johnwashburne/Sector-Metrics-Dashboard/core"
	r "github.com/johnwashburne/Sector-Metrics-Dashboard/data/repos"
)

var (
	_ c.PriceSource    = (*polygon.PolygonClient)(nil)
	_ c.PriceSource    = (*av.AlphaVantageClient)(nil)
	_ c.PriceSource    = (*c.CachedPriceSource)(nil)
	_ c.HoldingsSource = (*sheets.SheetsClient)(nil)
	_ c.PriceStore     = (*r.Postgres)(nil)
	_ c.PriceStore     = (*r.SQLite)(nil)
)

func main() {
	// initialize context and signal handler, listen for interrupt and term signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// load in environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	indices, err := config.LoadSectorIndexMap(settings.SectorsConfig)
	if err != nil {
		log.Fatalf("Failed to load sector index map: %v", err)
	}

	universe, err := config.LoadUniverse(settings.UniversePath)
	if err != nil {
		log.Fatalf("Failed to load instrument universe: %v", err)
	}

	// get the remote price source
	var prices c.PriceSource
	switch settings.PriceProvider {
	case config.ProviderAlphaVantage:
		prices = av.GetClient(settings.AlphaVantageApiKey)
	default:
		prices = polygon.GetClient(settings.PolygonApiKey, polygon.WithRateLimit(polygon.NewRateLimiter(settings.PolygonRateLimit)))
	}
	log.Printf("Using %s for prices", settings.PriceProvider)

	// optional local cache in front of the remote source
	switch {
	case settings.DatabaseUrl != "":
		postgresConnection, err := r.GetPostgresConnection(ctx, settings.DatabaseUrl)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer postgresConnection.Close()

		if err := postgresConnection.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		prices = &c.CachedPriceSource{Remote: prices, Store: postgresConnection}
		log.Println("Caching prices in postgres")

	case settings.SQLitePath != "":
		sqliteConnection, err := r.GetSQLiteConnection(ctx, settings.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to open sqlite cache: %v", err)
		}
		defer sqliteConnection.Close()

		prices = &c.CachedPriceSource{Remote: prices, Store: sqliteConnection}
		log.Printf("Caching prices in sqlite at %s", settings.SQLitePath)
	}

	holdingsClient, err := sheets.GetClient(settings.HoldingsCsvUrl)
	if err != nil {
		log.Fatalf("Invalid holdings export url: %v", err)
	}

	sc := &c.ServiceContext{
		Context: ctx,
		Prices:  prices,
		Holdings: &c.HoldingsResolver{
			Source:     holdingsClient,
			Indices:    indices,
			SeedSector: c.SeedSector,
		},
		Indices:        indices,
		Universe:       universe,
		Alignment:      settings.Alignment,
		RequestTimeout: settings.RequestTimeout,
	}

	// get http server, makes all of the endpoints and routes
	s := c.GetHttpServer(sc, settings.HttpAddr)

	// start http server in goroutine
	go func() {
		log.Printf("Starting sector metrics server on %s", s.Addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// golang channel, will wait here until the context is closed (ie, ctrl+C)
	<-ctx.Done()
	log.Println("Received shutdown signal, shutting down gracefully...")

	// this gives the server 10 seconds to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped successfully")
}
