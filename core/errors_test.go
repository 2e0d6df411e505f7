package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

func Test_Errors_MatchTheirKind(t *testing.T) {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	retrieval := &RetrievalError{Instrument: "XLK", Start: start, End: end, Err: context.DeadlineExceeded}
	if !errors.Is(retrieval, ErrRetrieval) || !errors.Is(retrieval, context.DeadlineExceeded) {
		t.Fatalf("retrieval error should match its kind and its cause")
	}
	ex.AssertAreEqual(t, "retrieval message",
		"retrieval failure for XLK (2024-01-02 to 2024-02-02): context deadline exceeded", retrieval.Error())

	empty := fmt.Errorf("building: %w", &EmptyDataError{Instruments: []string{"A", "B"}, Start: start, End: end, Reason: "no observations"})
	if !errors.Is(empty, ErrNoData) || errors.Is(empty, ErrRetrieval) {
		t.Fatalf("empty data error matched the wrong kind")
	}

	degenerate := &DegenerateMetricError{Instrument: "CASH", Metric: MetricTreynor, Reason: "zero beta"}
	ex.AssertAreEqual(t, "degenerate message", "Treynor undefined for CASH: zero beta", degenerate.Error())
	if !errors.Is(degenerate, ErrDegenerateMetric) {
		t.Fatalf("degenerate metric error should match its kind")
	}

	config := &ConfigurationError{Sector: "Energy", Row: 4, Reason: "constituent row has no instrument"}
	ex.AssertAreEqual(t, "configuration message",
		`configuration failure for sector "Energy" at row 4: constituent row has no instrument`, config.Error())
	if !errors.Is(config, ErrConfiguration) {
		t.Fatalf("configuration error should match its kind")
	}
}
