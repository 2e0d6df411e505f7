package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

var (
	// ErrRetrieval means a remote price or holdings source failed or sent malformed data
	ErrRetrieval = errors.New("retrieval failure")
	// ErrNoData means the requested range produced no aligned observations
	ErrNoData = errors.New("no data in range")
	// ErrDegenerateMetric means a metric denominator was zero
	ErrDegenerateMetric = errors.New("degenerate metric")
	// ErrConfiguration means a setup or export grammar problem
	ErrConfiguration = errors.New("configuration failure")
)

type RetrievalError struct {
	Instrument string
	Start      time.Time
	End        time.Time
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.Instrument == "" {
		return fmt.Sprintf("retrieval failure: %v", e.Err)
	}
	return fmt.Sprintf("retrieval failure for %s (%s to %s): %v", e.Instrument, ex.FmtShort(e.Start), ex.FmtShort(e.End), e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

type EmptyDataError struct {
	Instruments []string
	Start       time.Time
	End         time.Time
	Reason      string
}

func (e *EmptyDataError) Error() string {
	return fmt.Sprintf("no data in range %s to %s for %s: %s", ex.FmtShort(e.Start), ex.FmtShort(e.End), strings.Join(e.Instruments, ", "), e.Reason)
}

func (e *EmptyDataError) Is(target error) bool { return target == ErrNoData }

type DegenerateMetricError struct {
	Instrument string
	Metric     string
	Reason     string
}

func (e *DegenerateMetricError) Error() string {
	return fmt.Sprintf("%s undefined for %s: %s", e.Metric, e.Instrument, e.Reason)
}

func (e *DegenerateMetricError) Is(target error) bool { return target == ErrDegenerateMetric }

type ConfigurationError struct {
	Sector string
	Row    int // 1 based row of the holdings export, 0 when not row related
	Reason string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration failure")
	if e.Sector != "" {
		fmt.Fprintf(&b, " for sector %q", e.Sector)
	}
	if e.Row > 0 {
		fmt.Fprintf(&b, " at row %d", e.Row)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }
