package core

import (
	"context"
	"log"
	"time"
	_ "time/tzdata"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

// MarketZone is where a trading day starts and ends
const MarketZone = "America/New_York"

var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	location, err := time.LoadLocation(MarketZone)
	if err != nil {
		log.Printf("unable to load %s, falling back to UTC: %v", MarketZone, err)
		return time.UTC
	}
	return location
}

// CachedPriceSource serves closes from a local store when it already covers the request and
// falls back to the remote source otherwise, saving what it fetched.
type CachedPriceSource struct {
	Remote PriceSource
	Store  PriceStore
	Now    func() time.Time
}

func (cps *CachedPriceSource) FetchDailyCloses(ctx context.Context, symbol string, start, end time.Time) ([]dm.PriceObservation, error) {
	from := ex.DateOnly(start)
	to := ex.DateOnly(end)
	today := cps.today()
	if to.After(today) {
		to = today
	}

	if cached, ok := cps.fromStore(ctx, symbol, from, to); ok {
		return cached, nil
	}

	observations, err := cps.Remote.FetchDailyCloses(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if err := validateSeries(observations); err != nil {
		// the builder rejects it, nothing worth caching
		return observations, nil
	}

	// today's bar can still move, coverage stops at yesterday
	coveredTo := ex.EarlierOf(to, today.AddDate(0, 0, -1))
	if coveredTo.Before(from) {
		return observations, nil
	}
	cacheable := ex.FilterMultiple(observations, func(o dm.PriceObservation) bool { return !o.Date.After(coveredTo) })

	if ra, err := cps.Store.SavePriceObservations(ctx, symbol, from, coveredTo, cacheable); err != nil {
		log.Printf("error caching %s (%s to %s): %v", symbol, ex.FmtShort(from), ex.FmtShort(coveredTo), err)
	} else {
		log.Printf("symbol %s got %v closes from remote, inserted %v values", symbol, len(observations), ra)
	}

	return observations, nil
}

func (cps *CachedPriceSource) fromStore(ctx context.Context, symbol string, from, to time.Time) ([]dm.PriceObservation, bool) {
	md, err := cps.Store.GetSeriesMetadata(ctx, symbol)
	if err != nil {
		log.Printf("error reading cache metadata for %s, going remote: %v", symbol, err)
		return nil, false
	}
	if md == nil || !md.Covers(from, to) {
		return nil, false
	}

	cached, err := cps.Store.GetPriceObservations(ctx, symbol, from, to)
	if err != nil {
		log.Printf("error reading cached closes for %s, going remote: %v", symbol, err)
		return nil, false
	}
	if len(cached) == 0 {
		return nil, false
	}

	log.Printf("serving %d cached closes for %s (%s to %s)", len(cached), symbol, ex.FmtShort(from), ex.FmtShort(to))
	return cached, true
}

// today is the current trading date in the market's zone, whatever the server's zone is
func (cps *CachedPriceSource) today() time.Time {
	return ex.DateOnly(cps.now().In(marketLocation))
}

func (cps *CachedPriceSource) now() time.Time {
	if cps.Now == nil {
		return time.Now()
	}
	return cps.Now()
}
