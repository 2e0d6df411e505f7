package core

import (
	"context"
	"io"
	"time"

	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

// PriceSource hands back the daily closes of one instrument for the trading days in
// [start, end], ascending by date. An instrument without data in range yields an empty slice.
type PriceSource interface {
	FetchDailyCloses(ctx context.Context, instrument string, start, end time.Time) ([]dm.PriceObservation, error)
}

// HoldingsSource hands back the raw sector holdings export (comma separated), the caller closes it
type HoldingsSource interface {
	FetchHoldingsExport(ctx context.Context) (io.ReadCloser, error)
}

// PriceStore is a local cache of daily closes
type PriceStore interface {
	GetSeriesMetadata(ctx context.Context, symbol string) (*dm.PriceSeriesMetadata, error)
	GetPriceObservations(ctx context.Context, symbol string, start, end time.Time) ([]dm.PriceObservation, error)
	SavePriceObservations(ctx context.Context, symbol string, start, end time.Time, observations []dm.PriceObservation) (int64, error)
}
