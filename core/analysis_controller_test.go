package core

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	sm "github.com/johnwashburne/Sector-Metrics-Dashboard/models"
)

const holdingsExport = "Sector,Ticker\nTechnology,AAPL\n,MSFT\n,Cash\nSector Total,\nEnergy,XOM\n"

func testServiceContext(t *testing.T) (*ServiceContext, *fakePriceSource) {
	t.Helper()
	prices := newFakePriceSource(
		closes("AAPL", 0, 180, 184, 181, 190, 188, 192),
		closes("MSFT", 0, 370, 372, 369, 380, 379, 385),
		closes("XLK", 0, 190, 192, 190, 195, 194, 197),
		closes("SPY", 0, 470, 473, 471, 476, 474, 478),
		closes("FLAT", 0, 10, 10, 10, 10, 10, 10),
	)
	indices := testIndices(t)

	return &ServiceContext{
		Context: context.Background(),
		Prices:  prices,
		Holdings: &HoldingsResolver{
			Source:     &fakeHoldingsSource{body: holdingsExport},
			Indices:    indices,
			SeedSector: SeedSector,
		},
		Indices:        indices,
		RequestTimeout: 5 * time.Second,
	}, prices
}

func Test_RunAnalysis_SandboxAppendsDefaultBenchmark(t *testing.T) {
	sc, _ := testServiceContext(t)

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Mode:        sm.ModeSandbox,
		Instruments: []string{"aapl", " MSFT ", "AAPL"},
		Start:       "2024-01-01",
		End:         "2024-01-06",
	})
	require.NoError(t, err)

	ex.AssertAreEqual(t, "benchmark", "SPY", res.Benchmark)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, res.Returns.Instruments())
	ex.AssertAreEqual(t, "rows", 3, len(res.Metrics.Rows))
	ex.AssertAreEqual(t, "benchmark beta", 1.0, res.Metrics.Rows[2].Beta.Value.Float64)
	assert.Nil(t, res.Prices)
}

func Test_RunAnalysis_Sector(t *testing.T) {
	sc, _ := testServiceContext(t)

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Mode:          sm.ModeSector,
		Sector:        "Technology",
		Start:         "2024-01-01",
		End:           "2024-01-06",
		IncludePrices: true,
	})
	require.NoError(t, err)

	ex.AssertAreEqual(t, "benchmark", "XLK", res.Benchmark)
	assert.Equal(t, []string{"AAPL", "MSFT", "XLK"}, res.Returns.Instruments())
	require.NotNil(t, res.Prices)
	ex.AssertAreEqual(t, "price rows", 6, res.Prices.Len())
}

func Test_RunAnalysis_SectorSubset(t *testing.T) {
	sc, prices := testServiceContext(t)
	sc.Holdings = nil

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Mode:        sm.ModeSector,
		Sector:      "Technology",
		Instruments: []string{"AAPL"},
		Start:       "2024-01-01",
		End:         "2024-01-06",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "XLK"}, res.Returns.Instruments())
	ex.AssertAreEqual(t, "msft not fetched", 0, prices.callsFor("MSFT"))
}

func Test_RunAnalysis_InvalidRequests(t *testing.T) {
	sc, _ := testServiceContext(t)

	requests := map[string]sm.AnalysisRequest{
		"unknown sector": {Mode: sm.ModeSector, Sector: "Crypto", Start: "2024-01-01", End: "2024-01-06"},
		"sector missing": {Mode: sm.ModeSector, Sector: "Consumer Discretionary", Start: "2024-01-01", End: "2024-01-06"},
		"reversed range": {Instruments: []string{"AAPL"}, Start: "2024-01-06", End: "2024-01-01"},
		"bad date":       {Instruments: []string{"AAPL"}, Start: "01/01/2024", End: "2024-01-06"},
		"no instruments": {Mode: sm.ModeSandbox, Start: "2024-01-01", End: "2024-01-06"},
		"unknown mode":   {Mode: "portfolio", Instruments: []string{"AAPL"}, Start: "2024-01-01", End: "2024-01-06"},
		"bad alignment":  {Instruments: []string{"AAPL"}, Start: "2024-01-01", End: "2024-01-06", Alignment: "nearest"},
	}

	for name, req := range requests {
		_, err := sc.RunAnalysis(context.Background(), req)
		assert.ErrorIs(t, err, ErrConfiguration, name)
	}
}

func Test_RunAnalysis_EmptyRange(t *testing.T) {
	sc, _ := testServiceContext(t)

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Instruments: []string{"AAPL"},
		Start:       "2024-03-01",
		End:         "2024-03-05",
	})
	assert.ErrorIs(t, err, ErrNoData)
}

func Test_RunAnalysis_HoldingsFailure(t *testing.T) {
	sc, _ := testServiceContext(t)
	sc.Holdings.Source = &fakeHoldingsSource{err: errors.New("timeout")}

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Mode:   sm.ModeSector,
		Sector: "Technology",
		Start:  "2024-01-01",
		End:    "2024-01-06",
	})
	assert.ErrorIs(t, err, ErrRetrieval)
}

func Test_RunAnalysis_RequestTimeout(t *testing.T) {
	sc, prices := testServiceContext(t)
	prices.delay = time.Second
	sc.RequestTimeout = 20 * time.Millisecond

	_, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Instruments: []string{"AAPL"},
		Start:       "2024-01-01",
		End:         "2024-01-06",
	})
	assert.ErrorIs(t, err, ErrRetrieval)
}

func Test_MapAnalysisResultToResponse(t *testing.T) {
	sc, _ := testServiceContext(t)

	res, err := sc.RunAnalysis(context.Background(), sm.AnalysisRequest{
		Instruments:   []string{"FLAT", "AAPL"},
		Benchmark:     "spy",
		Start:         "2024-01-01",
		End:           "2024-01-06",
		Alignment:     "trim-by-length",
		IncludePrices: true,
	})
	require.NoError(t, err)

	response := MapAnalysisResultToResponse(res)
	ex.AssertAreEqual(t, "alignment", "trim-by-length", response.Alignment)
	ex.AssertAreEqual(t, "observations", 5, response.Observations)
	ex.AssertAreEqual(t, "start", "2024-01-01", response.Start)
	assert.Equal(t, []string{"FLAT", "AAPL", "SPY"}, response.Correlation.Instruments)
	require.NotNil(t, response.NormalizedPrices)
	ex.AssertAreEqual(t, "price dates", 6, len(response.NormalizedPrices.Dates))

	flat := response.Metrics[0]
	ex.AssertAreEqual(t, "flat beta", 0.0, flat.Beta.Value.Float64)
	assert.False(t, flat.Treynor.Value.Valid)
	assert.NotEmpty(t, flat.Treynor.Reason)

	raw, err := json.Marshal(flat)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"treynor":{"value":null,"reason":"zero beta"}`)
}
