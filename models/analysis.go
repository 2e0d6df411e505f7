package models

import (
	"github.com/guregu/null/v6"
)

const (
	ModeSandbox = "sandbox"
	ModeSector  = "sector"

	// DefaultBenchmark is appended to sandbox selections that do not name one
	DefaultBenchmark = "SPY"
)

// AnalysisRequest is what the front end sends to run the metrics for one selection.
// Dates are YYYY-MM-DD, both ends inclusive.
type AnalysisRequest struct {
	Mode          string   `json:"mode"`        // sandbox, sector
	Sector        string   `json:"sector"`      // sector mode only
	Instruments   []string `json:"instruments"` // sandbox mode, or a subset of the sector in sector mode
	Benchmark     string   `json:"benchmark"`   // sandbox mode only, SPY when empty
	Start         string   `json:"start"`
	End           string   `json:"end"`
	Alignment     string   `json:"alignment"` // join-by-date, trim-by-length, server default when empty
	IncludePrices bool     `json:"includePrices"`
}

// MetricCell is a nullable number, reason is set when the value is undefined
type MetricCell struct {
	Value  null.Float `json:"value"`
	Reason string     `json:"reason,omitempty"`
}

type MetricsRowResponse struct {
	Instrument  string     `json:"instrument"`
	Beta        MetricCell `json:"beta"`
	Treynor     MetricCell `json:"treynor"`
	UpCapture   MetricCell `json:"upCapture"`
	DownCapture MetricCell `json:"downCapture"`
}

type CorrelationResponse struct {
	Instruments []string       `json:"instruments"`
	Values      [][]MetricCell `json:"values"`
}

type PriceSeriesResponse struct {
	Instrument string    `json:"instrument"`
	Values     []float64 `json:"values"`
}

type PriceTableResponse struct {
	Dates  []string              `json:"dates"`
	Series []PriceSeriesResponse `json:"series"`
}

type AnalysisResponse struct {
	Mode             string               `json:"mode"`
	Sector           string               `json:"sector,omitempty"`
	Benchmark        string               `json:"benchmark"`
	Start            string               `json:"start"`
	End              string               `json:"end"`
	Alignment        string               `json:"alignment"`
	Observations     int                  `json:"observations"`
	Metrics          []MetricsRowResponse `json:"metrics"`
	Correlation      CorrelationResponse  `json:"correlation"`
	NormalizedPrices *PriceTableResponse  `json:"normalizedPrices,omitempty"`
}

type SectorIndexResponse struct {
	Sector    string `json:"sector"`
	Benchmark string `json:"benchmark"`
}

type InstrumentResponse struct {
	Ticker string `json:"ticker"`
	Sector string `json:"sector"`
}
