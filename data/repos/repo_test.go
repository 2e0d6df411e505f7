package repos

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/joho/godotenv"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	m "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

// priceCache is the surface both stores share
type priceCache interface {
	GetSeriesMetadata(ctx context.Context, symbol string) (*m.PriceSeriesMetadata, error)
	GetPriceObservations(ctx context.Context, symbol string, start, end time.Time) ([]m.PriceObservation, error)
	SavePriceObservations(ctx context.Context, symbol string, start, end time.Time, observations []m.PriceObservation) (int64, error)
}

func day(month time.Month, d int) time.Time {
	return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC)
}

func testObservations(symbol string) []m.PriceObservation {
	return []m.PriceObservation{
		{Symbol: symbol, Date: day(time.March, 1), Close: 100, Volume: null.FloatFrom(1000)},
		{Symbol: symbol, Date: day(time.March, 4), Close: 101.25, Volume: null.FloatFrom(1100)},
		{Symbol: symbol, Date: day(time.March, 5), Close: 99.5},
	}
}

func exercisePriceCache(t *testing.T, ctx context.Context, cache priceCache, symbol string) {
	t.Helper()

	md, err := cache.GetSeriesMetadata(ctx, symbol)
	if err != nil {
		t.Fatalf("error getting metadata for %s (should be nil): %s", symbol, err)
	}
	if md != nil {
		t.Fatalf("symbol %s has not been inserted yet, so metadata should be nil", symbol)
	}

	inserted, err := cache.SavePriceObservations(ctx, symbol, day(time.March, 1), day(time.March, 5), testObservations(symbol))
	if err != nil {
		t.Fatalf("error saving price observations: %s", err)
	}
	ex.AssertAreEqual(t, "inserted", int64(3), inserted)

	// saving the same rows twice must not duplicate them
	inserted, err = cache.SavePriceObservations(ctx, symbol, day(time.March, 4), day(time.March, 8), testObservations(symbol)[1:])
	if err != nil {
		t.Fatalf("error saving price observations a second time: %s", err)
	}
	ex.AssertAreEqual(t, "re-inserted", int64(0), inserted)

	md, err = cache.GetSeriesMetadata(ctx, symbol)
	if err != nil || md == nil {
		t.Fatalf("error getting metadata after save: %v", err)
	}
	ex.AssertAreEqual(t, "covered from", day(time.March, 1), md.CoveredFrom.UTC())
	ex.AssertAreEqual(t, "last refreshed", day(time.March, 8), md.LastRefreshed.UTC())

	res, err := cache.GetPriceObservations(ctx, symbol, day(time.March, 2), day(time.March, 5))
	if err != nil {
		t.Fatalf("error getting price observations: %s", err)
	}
	ex.AssertAreEqual(t, "rows in range", 2, len(res))
	ex.AssertAreEqual(t, "first date", day(time.March, 4), res[0].Date.UTC())
	ex.AssertAreEqual(t, "first close", 101.25, res[0].Close)
	ex.AssertAreEqual(t, "first volume", 1100.0, res[0].Volume.Float64)
	ex.AssertAreEqual(t, "second volume valid", false, res[1].Volume.Valid)
}

func Test_SQLite_CanSaveAndGetPriceObservations(t *testing.T) {
	ctx := context.Background()
	cache, err := GetSQLiteConnection(ctx, filepath.Join(t.TempDir(), "prices.db"))
	if err != nil {
		t.Fatalf("error opening sqlite cache: %s", err)
	}
	defer cache.Close()

	exercisePriceCache(t, ctx, cache, "_TEST")
}

func Test_Postgres_CanSaveAndGetPriceObservations(t *testing.T) {
	ctx := context.Background()
	pg := getConnection(t, ctx)
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		t.Fatalf("error ensuring schema: %s", err)
	}

	symbol := "_TEST"
	defer pg.deleteTestSeries(t, ctx, symbol)
	pg.deleteTestSeries(t, ctx, symbol)

	exercisePriceCache(t, ctx, pg, symbol)
}

func getConnection(t *testing.T, ctx context.Context) *Postgres {
	t.Helper()
	_ = godotenv.Load("../../.env")

	connectionString := os.Getenv("DATABASE_URL")
	if connectionString == "" {
		t.Skip("DATABASE_URL not set, skipping postgres repo tests")
	}

	pg, err := GetPostgresConnection(ctx, connectionString)
	if err != nil {
		t.Fatalf("error connecting to postgres: %s", err)
	}
	if err := pg.Ping(ctx); err != nil {
		t.Fatalf("error pinging postgres database: %s", err)
	}
	return pg
}

func (pg *Postgres) deleteTestSeries(t *testing.T, ctx context.Context, symbol string) {
	t.Helper()
	if _, err := pg.db.Exec(ctx, "DELETE FROM price_series_metadata WHERE symbol = $1", symbol); err != nil {
		t.Errorf("error cleaning up test series %s: %s", symbol, err)
	}
}
