package core

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

const (
	MetricCorrelation = "Correlation"
	MetricBeta        = "Beta"
	MetricTreynor     = "Treynor"
	MetricUpCapture   = "UpCapture"
	MetricDownCapture = "DownCapture"
)

// CorrelationMatrix is the symmetric pairwise Pearson correlation of a ReturnTable
type CorrelationMatrix struct {
	instruments []string
	cells       [][]Metric
	lookup      map[string]int
}

func (cm *CorrelationMatrix) Instruments() []string {
	return append([]string(nil), cm.instruments...)
}

func (cm *CorrelationMatrix) At(i, j int) Metric {
	return cm.cells[i][j]
}

func (cm *CorrelationMatrix) Lookup(a, b string) (Metric, bool) {
	i, ok := cm.lookup[a]
	if !ok {
		return Metric{}, false
	}
	j, ok := cm.lookup[b]
	if !ok {
		return Metric{}, false
	}
	return cm.cells[i][j], true
}

type BetaTreynor struct {
	Beta    Metric
	Treynor Metric
}

type Capture struct {
	Up   Metric
	Down Metric
}

// MetricsRow is the per instrument line of the metrics table
type MetricsRow struct {
	Instrument  string
	Beta        Metric
	Treynor     Metric
	UpCapture   Metric
	DownCapture Metric
}

// Errs lists a DegenerateMetricError for every undefined cell of the row
func (r MetricsRow) Errs() []error {
	cells := []struct {
		name   string
		metric Metric
	}{
		{MetricBeta, r.Beta},
		{MetricTreynor, r.Treynor},
		{MetricUpCapture, r.UpCapture},
		{MetricDownCapture, r.DownCapture},
	}

	var res []error
	for _, c := range cells {
		if err := c.metric.Err(r.Instrument, c.name); err != nil {
			res = append(res, err)
		}
	}
	return res
}

type MetricsTable struct {
	Benchmark   string
	Rows        []MetricsRow // ordered as the return table's instruments
	Correlation *CorrelationMatrix
}

func checkTable(rt *ReturnTable) error {
	if rt == nil || rt.Len() == 0 {
		return &EmptyDataError{Reason: "empty return table"}
	}
	return nil
}

// checkInputs also requires the benchmark to be one of the table's columns
func checkInputs(rt *ReturnTable, benchmark string) error {
	if err := checkTable(rt); err != nil {
		return err
	}
	if benchmark == "" {
		return &ConfigurationError{Reason: "no benchmark"}
	}
	if !rt.Has(benchmark) {
		return &ConfigurationError{Reason: fmt.Sprintf("benchmark %s is not a column of the return table", benchmark)}
	}
	return nil
}

func GetCorrelationMatrix(rt *ReturnTable) (*CorrelationMatrix, error) {
	if err := checkTable(rt); err != nil {
		return nil, err
	}
	return correlationMatrix(rt, getSampleMoments(rt)), nil
}

func correlationMatrix(rt *ReturnTable, moments sampleMoments) *CorrelationMatrix {
	n := len(rt.instruments)
	cells := make([][]Metric, n)
	for i := range n {
		cells[i] = make([]Metric, n)
	}

	for i := range n {
		for j := range i + 1 {
			corr := moments.correlation(i, j)
			cells[i][j] = corr
			cells[j][i] = corr
		}
	}

	return &CorrelationMatrix{
		instruments: rt.Instruments(),
		cells:       cells,
		lookup:      rt.lookup,
	}
}

// GetBetaAndTreynor computes Beta as the std-dev ratio times correlation against the benchmark,
// and Treynor as the compounded growth factor over Beta.
func GetBetaAndTreynor(rt *ReturnTable, benchmark string) (map[string]BetaTreynor, error) {
	if err := checkInputs(rt, benchmark); err != nil {
		return nil, err
	}
	return betaAndTreynor(rt, benchmark, getSampleMoments(rt)), nil
}

func betaAndTreynor(rt *ReturnTable, benchmark string, moments sampleMoments) map[string]BetaTreynor {
	b := rt.lookup[benchmark]
	res := make(map[string]BetaTreynor, len(rt.instruments))

	for i, instrument := range rt.instruments {
		beta := instrumentBeta(moments, i, b)

		var treynor Metric
		switch {
		case !beta.Defined():
			treynor = undefinedMetric("beta undefined: " + beta.Reason)
		case beta.Value.Float64 == 0:
			treynor = undefinedMetric("zero beta")
		default:
			totalReturn := ex.Product(rt.columns[i], func(r float64) float64 { return 1 + r })
			treynor = definedMetric(totalReturn / beta.Value.Float64)
		}

		res[instrument] = BetaTreynor{Beta: beta, Treynor: treynor}
	}

	return res
}

func instrumentBeta(moments sampleMoments, i, b int) Metric {
	switch {
	case !moments.enough():
		return undefinedMetric("fewer than two returns")
	case moments.isConstant(b):
		return undefinedMetric("zero benchmark variance")
	case i == b:
		return definedMetric(1)
	case moments.isConstant(i):
		// cov / var of a constant series
		return definedMetric(0)
	}

	corr := moments.correlation(i, b)
	if !corr.Defined() {
		return undefinedMetric(corr.Reason)
	}
	return definedMetric(moments.stdDev(i) / moments.stdDev(b) * corr.Value.Float64)
}

// GetUpsideDownsideCapture splits days on the benchmark's mean return (up when at or above it) and,
// per bucket, reports the share of days an instrument's return times the benchmark's is non-negative.
func GetUpsideDownsideCapture(rt *ReturnTable, benchmark string) (map[string]Capture, error) {
	if err := checkInputs(rt, benchmark); err != nil {
		return nil, err
	}
	return upsideDownsideCapture(rt, benchmark), nil
}

func upsideDownsideCapture(rt *ReturnTable, benchmark string) map[string]Capture {
	ref := rt.columns[rt.lookup[benchmark]]
	avg := stat.Mean(ref, nil)

	up := make([]int, 0, len(ref))
	down := make([]int, 0, len(ref))
	for day, r := range ref {
		if r >= avg {
			up = append(up, day)
		} else {
			down = append(down, day)
		}
	}

	res := make(map[string]Capture, len(rt.instruments))
	for i, instrument := range rt.instruments {
		res[instrument] = Capture{
			Up:   captureRatio(rt.columns[i], ref, up, "no up days"),
			Down: captureRatio(rt.columns[i], ref, down, "no down days"),
		}
	}
	return res
}

func captureRatio(col, ref []float64, days []int, emptyReason string) Metric {
	if len(days) == 0 {
		return undefinedMetric(emptyReason)
	}
	same := ex.CountWhere(days, func(day int) bool { return col[day]*ref[day] >= 0 })
	return definedMetric(float64(same) / float64(len(days)))
}

// ComputeMetrics runs every calculator over one return table, sharing a single covariance pass
func ComputeMetrics(rt *ReturnTable, benchmark string) (*MetricsTable, error) {
	if err := checkInputs(rt, benchmark); err != nil {
		return nil, err
	}

	moments := getSampleMoments(rt)
	bt := betaAndTreynor(rt, benchmark, moments)
	capture := upsideDownsideCapture(rt, benchmark)

	rows := make([]MetricsRow, len(rt.instruments))
	for i, instrument := range rt.instruments {
		rows[i] = MetricsRow{
			Instrument:  instrument,
			Beta:        bt[instrument].Beta,
			Treynor:     bt[instrument].Treynor,
			UpCapture:   capture[instrument].Up,
			DownCapture: capture[instrument].Down,
		}
	}

	return &MetricsTable{
		Benchmark:   benchmark,
		Rows:        rows,
		Correlation: correlationMatrix(rt, moments),
	}, nil
}
