package core

import (
	"context"
	"fmt"
	"log"
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

// AlignmentPolicy decides how series with different histories are lined up
type AlignmentPolicy uint8

const (
	// JoinByDate keeps only the calendar dates every instrument traded on
	JoinByDate AlignmentPolicy = iota
	// TrimByLength right aligns every series to the shortest one and reuses the
	// dates of the last requested instrument for all of them
	TrimByLength
)

const defaultFetchConcurrency = 4

func (p AlignmentPolicy) String() string {
	switch p {
	case JoinByDate:
		return "join-by-date"
	case TrimByLength:
		return "trim-by-length"
	default:
		return ""
	}
}

func ParseAlignmentPolicy(s string) (AlignmentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "join-by-date", "join-by-calendar-date":
		return JoinByDate, nil
	case "trim-by-length":
		return TrimByLength, nil
	default:
		return JoinByDate, &ConfigurationError{Reason: fmt.Sprintf("unknown alignment policy %q", s)}
	}
}

// table is a date indexed, column per instrument snapshot. It is never mutated after construction.
type table struct {
	instruments []string
	dates       []time.Time
	columns     [][]float64
	lookup      map[string]int
}

func newTable(instruments []string, dates []time.Time, columns [][]float64) (table, error) {
	if len(instruments) != len(columns) {
		return table{}, fmt.Errorf("%d instruments for %d columns", len(instruments), len(columns))
	}

	lookup := make(map[string]int, len(instruments))
	for i, instrument := range instruments {
		if _, ok := lookup[instrument]; ok {
			return table{}, fmt.Errorf("duplicate instrument %s", instrument)
		}
		lookup[instrument] = i
		if len(columns[i]) != len(dates) {
			return table{}, fmt.Errorf("column %s has %d values for %d dates", instrument, len(columns[i]), len(dates))
		}
	}

	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return table{}, fmt.Errorf("dates are not strictly increasing at %s", ex.FmtShort(dates[i]))
		}
	}

	cols := make([][]float64, len(columns))
	for i, c := range columns {
		cols[i] = slices.Clone(c)
	}

	return table{
		instruments: slices.Clone(instruments),
		dates:       slices.Clone(dates),
		columns:     cols,
		lookup:      lookup,
	}, nil
}

func (t *table) Instruments() []string { return slices.Clone(t.instruments) }

func (t *table) Dates() []time.Time { return slices.Clone(t.dates) }

// Len is the number of rows
func (t *table) Len() int { return len(t.dates) }

func (t *table) Has(instrument string) bool {
	_, ok := t.lookup[instrument]
	return ok
}

// Column returns a copy of one instrument's values
func (t *table) Column(instrument string) ([]float64, bool) {
	i, ok := t.lookup[instrument]
	if !ok {
		return nil, false
	}
	return slices.Clone(t.columns[i]), true
}

// ReturnTable holds day over day fractional price changes, one column per instrument
type ReturnTable struct {
	table
}

func NewReturnTable(instruments []string, dates []time.Time, columns [][]float64) (*ReturnTable, error) {
	t, err := newTable(instruments, dates, columns)
	if err != nil {
		return nil, fmt.Errorf("error building return table: %w", err)
	}
	return &ReturnTable{t}, nil
}

// NormalizedPriceTable holds each instrument's close divided by its first close in the aligned window.
// It keeps every aligned price date, so it has one more row than the matching ReturnTable.
type NormalizedPriceTable struct {
	table
}

type ReturnSeriesBuilder struct {
	Source      PriceSource
	Policy      AlignmentPolicy
	Concurrency int // instruments fetched at once, 4 when unset
}

// BuildReturnSeries fetches, aligns and converts closes into a ReturnTable
func (b *ReturnSeriesBuilder) BuildReturnSeries(ctx context.Context, instruments []string, start, end time.Time) (*ReturnTable, error) {
	returns, _, err := b.build(ctx, instruments, start, end)
	return returns, err
}

// BuildReturnSeriesWithPrices is BuildReturnSeries plus the normalized price table used for charting
func (b *ReturnSeriesBuilder) BuildReturnSeriesWithPrices(ctx context.Context, instruments []string, start, end time.Time) (*ReturnTable, *NormalizedPriceTable, error) {
	return b.build(ctx, instruments, start, end)
}

func (b *ReturnSeriesBuilder) build(ctx context.Context, instruments []string, start, end time.Time) (*ReturnTable, *NormalizedPriceTable, error) {
	instruments = ex.Unique(instruments)
	if len(instruments) == 0 {
		return nil, nil, &ConfigurationError{Reason: "no instruments requested"}
	}

	series, err := b.fetchAll(ctx, instruments, start, end)
	if err != nil {
		return nil, nil, err
	}

	return AssembleTables(b.Policy, instruments, series, start, end)
}

func (b *ReturnSeriesBuilder) fetchAll(ctx context.Context, instruments []string, start, end time.Time) ([][]dm.PriceObservation, error) {
	limit := b.Concurrency
	if limit <= 0 {
		limit = defaultFetchConcurrency
	}

	series := make([][]dm.PriceObservation, len(instruments))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, instrument := range instruments {
		g.Go(func() error {
			fetchStart := time.Now()
			observations, err := b.Source.FetchDailyCloses(gctx, instrument, start, end)
			if err != nil {
				return &RetrievalError{Instrument: instrument, Start: start, End: end, Err: err}
			}
			if err := validateSeries(observations); err != nil {
				return &RetrievalError{Instrument: instrument, Start: start, End: end, Err: err}
			}
			log.Printf("fetched %d closes for %s (time: %v)", len(observations), instrument, time.Since(fetchStart))
			series[i] = observations
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// a sibling cancelled by the first failure reports context.Canceled, the first error wins
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &RetrievalError{Start: start, End: end, Err: err}
	}

	return series, nil
}

// validateSeries rejects data the arithmetic below cannot use
func validateSeries(observations []dm.PriceObservation) error {
	for i, o := range observations {
		if math.IsNaN(o.Close) || math.IsInf(o.Close, 0) || o.Close <= 0 {
			return fmt.Errorf("malformed close %v on %s", o.Close, ex.FmtShort(o.Date))
		}
		if i > 0 && !ex.DateOnly(o.Date).After(ex.DateOnly(observations[i-1].Date)) {
			return fmt.Errorf("dates out of order or duplicated at %s", ex.FmtShort(o.Date))
		}
	}
	return nil
}

// AssembleTables aligns per instrument closes (ordered as instruments) and derives the return and
// normalized price tables. Fewer than two aligned closes is an EmptyDataError.
func AssembleTables(policy AlignmentPolicy, instruments []string, series [][]dm.PriceObservation, start, end time.Time) (*ReturnTable, *NormalizedPriceTable, error) {
	if len(instruments) != len(series) {
		return nil, nil, fmt.Errorf("%d instruments for %d series", len(instruments), len(series))
	}

	empty := make([]string, 0)
	for i, s := range series {
		if len(s) == 0 {
			empty = append(empty, instruments[i])
		}
	}
	if len(empty) > 0 {
		return nil, nil, &EmptyDataError{Instruments: empty, Start: start, End: end, Reason: "no observations"}
	}

	var dates []time.Time
	var prices [][]float64
	switch policy {
	case TrimByLength:
		dates, prices = trimByLength(series)
	case JoinByDate:
		dates, prices = joinByDate(series)
	default:
		return nil, nil, &ConfigurationError{Reason: fmt.Sprintf("unknown alignment policy %d", policy)}
	}

	if len(dates) < 2 {
		return nil, nil, &EmptyDataError{
			Instruments: instruments,
			Start:       start,
			End:         end,
			Reason:      fmt.Sprintf("%d aligned closes, at least 2 are needed for a return", len(dates)),
		}
	}

	normalized, err := newTable(instruments, dates, normalize(prices))
	if err != nil {
		return nil, nil, err
	}
	returns, err := newTable(instruments, dates[1:], percentChange(prices))
	if err != nil {
		return nil, nil, err
	}

	return &ReturnTable{returns}, &NormalizedPriceTable{normalized}, nil
}

func trimByLength(series [][]dm.PriceObservation) ([]time.Time, [][]float64) {
	minLength := len(series[0])
	for _, s := range series {
		minLength = ex.Min(minLength, len(s))
	}

	prices := make([][]float64, len(series))
	for i, s := range series {
		kept := s[len(s)-minLength:]
		prices[i] = make([]float64, minLength)
		for j, o := range kept {
			prices[i][j] = o.Close
		}
	}

	last := series[len(series)-1]
	dates := make([]time.Time, minLength)
	for j, o := range last[len(last)-minLength:] {
		dates[j] = o.Date
	}

	return dates, prices
}

func joinByDate(series [][]dm.PriceObservation) ([]time.Time, [][]float64) {
	counts := make(map[time.Time]int)
	closes := make([]map[time.Time]float64, len(series))
	for i, s := range series {
		closes[i] = make(map[time.Time]float64, len(s))
		for _, o := range s {
			d := ex.DateOnly(o.Date)
			if _, seen := closes[i][d]; !seen {
				counts[d]++
			}
			closes[i][d] = o.Close
		}
	}

	dates := make([]time.Time, 0, len(series[0]))
	for d, n := range counts {
		if n == len(series) {
			dates = append(dates, d)
		}
	}
	slices.SortFunc(dates, func(a, b time.Time) int { return a.Compare(b) })

	prices := make([][]float64, len(series))
	for i := range series {
		prices[i] = make([]float64, len(dates))
		for j, d := range dates {
			prices[i][j] = closes[i][d]
		}
	}

	return dates, prices
}

func percentChange(prices [][]float64) [][]float64 {
	res := make([][]float64, len(prices))
	for i, p := range prices {
		res[i] = make([]float64, len(p)-1)
		for j := 1; j < len(p); j++ {
			res[i][j-1] = p[j]/p[j-1] - 1
		}
	}
	return res
}

func normalize(prices [][]float64) [][]float64 {
	res := make([][]float64, len(prices))
	for i, p := range prices {
		res[i] = make([]float64, len(p))
		for j, v := range p {
			res[i][j] = v / p[0]
		}
	}
	return res
}
