package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

var firstDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return firstDay.AddDate(0, 0, n)
}

// closes builds one close per consecutive calendar day starting at from
func closes(symbol string, from int, values ...float64) []dm.PriceObservation {
	res := make([]dm.PriceObservation, len(values))
	for i, v := range values {
		res[i] = dm.PriceObservation{Symbol: symbol, Date: day(from + i), Close: v}
	}
	return res
}

// closesOn builds one close per given day offset
func closesOn(symbol string, days []int, values ...float64) []dm.PriceObservation {
	res := make([]dm.PriceObservation, len(values))
	for i, v := range values {
		res[i] = dm.PriceObservation{Symbol: symbol, Date: day(days[i]), Close: v}
	}
	return res
}

type fakePriceSource struct {
	mu     sync.Mutex
	series map[string][]dm.PriceObservation
	errs   map[string]error
	calls  map[string]int
	delay  time.Duration
}

func newFakePriceSource(series ...[]dm.PriceObservation) *fakePriceSource {
	f := &fakePriceSource{
		series: make(map[string][]dm.PriceObservation),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
	for _, s := range series {
		if len(s) > 0 {
			f.series[s[0].Symbol] = s
		}
	}
	return f
}

func (f *fakePriceSource) FetchDailyCloses(ctx context.Context, instrument string, start, end time.Time) ([]dm.PriceObservation, error) {
	f.mu.Lock()
	f.calls[instrument]++
	err := f.errs[instrument]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err != nil {
		return nil, err
	}

	from, to := ex.DateOnly(start), ex.DateOnly(end)
	return ex.FilterMultiple(f.series[instrument], func(o dm.PriceObservation) bool {
		return !o.Date.Before(from) && !o.Date.After(to)
	}), nil
}

func (f *fakePriceSource) callsFor(instrument string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[instrument]
}

type fakeHoldingsSource struct {
	body string
	err  error
}

func (f *fakeHoldingsSource) FetchHoldingsExport(ctx context.Context) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

// fakePriceStore keeps one window and its rows per symbol in memory
type fakePriceStore struct {
	mu       sync.Mutex
	metadata map[string]*dm.PriceSeriesMetadata
	rows     map[string][]dm.PriceObservation
	failRead bool
	saves    int
}

func newFakePriceStore() *fakePriceStore {
	return &fakePriceStore{
		metadata: make(map[string]*dm.PriceSeriesMetadata),
		rows:     make(map[string][]dm.PriceObservation),
	}
}

func (s *fakePriceStore) GetSeriesMetadata(ctx context.Context, symbol string) (*dm.PriceSeriesMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRead {
		return nil, errors.New("store offline")
	}
	md, ok := s.metadata[symbol]
	if !ok {
		return nil, nil
	}
	cp := *md
	return &cp, nil
}

func (s *fakePriceStore) GetPriceObservations(ctx context.Context, symbol string, start, end time.Time) ([]dm.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ex.FilterMultiple(s.rows[symbol], func(o dm.PriceObservation) bool {
		return !o.Date.Before(start) && !o.Date.After(end)
	}), nil
}

func (s *fakePriceStore) SavePriceObservations(ctx context.Context, symbol string, start, end time.Time, observations []dm.PriceObservation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++

	md := s.metadata[symbol]
	from, to := md.MergeCoverage(start, end)
	if md == nil {
		md = &dm.PriceSeriesMetadata{Id: int32(len(s.metadata) + 1), Symbol: symbol}
		s.metadata[symbol] = md
	}
	md.CoveredFrom, md.LastRefreshed = from, to

	var inserted int64
	for _, o := range observations {
		exists := ex.CountWhere(s.rows[symbol], func(r dm.PriceObservation) bool { return r.Date.Equal(o.Date) }) > 0
		if !exists {
			s.rows[symbol] = append(s.rows[symbol], o)
			inserted++
		}
	}
	return inserted, nil
}

func mustReturnTable(t *testing.T, instruments []string, columns ...[]float64) *ReturnTable {
	t.Helper()
	dates := make([]time.Time, len(columns[0]))
	for i := range dates {
		dates[i] = day(i + 1)
	}
	rt, err := NewReturnTable(instruments, dates, columns)
	if err != nil {
		t.Fatalf("error building return table: %v", err)
	}
	return rt
}
