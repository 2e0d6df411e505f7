package models

import (
	"time"

	"github.com/guregu/null/v6"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

// PriceObservation is one daily close for one instrument, as handed back by a price source.
// Date is the calendar date at midnight UTC.
type PriceObservation struct {
	Symbol string
	Date   time.Time
	Close  float64
	Volume null.Float
}

// PriceSeriesMetadata tracks which window of a symbol's history is held in the cache
type PriceSeriesMetadata struct {
	Id            int32     `db:"id"`
	Symbol        string    `db:"symbol"`
	CoveredFrom   time.Time `db:"covered_from"`
	LastRefreshed time.Time `db:"last_refreshed"`
}

type PriceSeriesData struct {
	SourceId int32      `db:"source_id"`
	Date     time.Time  `db:"date"`
	Close    null.Float `db:"close"`
	Volume   null.Float `db:"volume"`
}

// Covers reports whether the cached window spans [start, end]
func (md *PriceSeriesMetadata) Covers(start, end time.Time) bool {
	return !md.CoveredFrom.After(start) && !md.LastRefreshed.Before(end)
}

func MapPriceSeriesDataToObservations(symbol string, rows []*PriceSeriesData) []PriceObservation {
	res := make([]PriceObservation, 0, len(rows))
	for _, row := range rows {
		if !row.Close.Valid {
			continue
		}
		res = append(res, PriceObservation{
			Symbol: symbol,
			Date:   row.Date,
			Close:  row.Close.Float64,
			Volume: row.Volume,
		})
	}
	return res
}

// MergeCoverage returns the cached window after storing [start, end].
// Overlapping or adjacent windows are joined, a disjoint window replaces the old one.
func (md *PriceSeriesMetadata) MergeCoverage(start, end time.Time) (time.Time, time.Time) {
	if md == nil || md.Id == 0 {
		return start, end
	}

	adjacentAfter := !start.After(md.LastRefreshed.AddDate(0, 0, 1))
	adjacentBefore := !end.Before(md.CoveredFrom.AddDate(0, 0, -1))
	if !adjacentAfter || !adjacentBefore {
		return start, end
	}

	return ex.EarlierOf(md.CoveredFrom, start), ex.LaterOf(md.LastRefreshed, end)
}
