package core

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	sm "github.com/johnwashburne/Sector-Metrics-Dashboard/models"
)

// AnalysisResult is the immutable output of one request
type AnalysisResult struct {
	Mode      string
	Sector    string
	Benchmark string
	Start     time.Time
	End       time.Time
	Alignment AlignmentPolicy
	Returns   *ReturnTable
	Prices    *NormalizedPriceTable // nil unless requested
	Metrics   *MetricsTable
}

type analysisPlan struct {
	mode        string
	sector      string
	instruments []string
	benchmark   string
	start       time.Time
	end         time.Time
	alignment   AlignmentPolicy
}

func (sc *ServiceContext) RunAnalysis(ctx context.Context, req sm.AnalysisRequest) (*AnalysisResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, sc.requestTimeout())
	defer cancel()

	plan, err := sc.planAnalysis(ctx, req)
	if err != nil {
		log.Printf("Error planning %s analysis: %v", req.Mode, err)
		return nil, err
	}
	label := plan.label()

	log.Printf("Building return series for %s, %d instruments from %s to %s (%s) (time: %v)",
		label, len(plan.instruments), ex.FmtShort(plan.start), ex.FmtShort(plan.end), plan.alignment, time.Since(start))
	builder := ReturnSeriesBuilder{Source: sc.Prices, Policy: plan.alignment}
	returns, prices, err := builder.BuildReturnSeriesWithPrices(ctx, plan.instruments, plan.start, plan.end)
	if err != nil {
		log.Printf("Error building return series for %s: %v", label, err)
		return nil, err
	}

	log.Printf("Computing metrics for %s over %d returns (time: %v)", label, returns.Len(), time.Since(start))
	metrics, err := ComputeMetrics(returns, plan.benchmark)
	if err != nil {
		log.Printf("Error computing metrics for %s: %v", label, err)
		return nil, err
	}

	for _, row := range metrics.Rows {
		for _, err := range row.Errs() {
			log.Printf("%s: %v", label, err)
		}
	}

	if !req.IncludePrices {
		prices = nil
	}

	log.Printf("Analysis for %s completed (time: %v)", label, time.Since(start))
	return &AnalysisResult{
		Mode:      plan.mode,
		Sector:    plan.sector,
		Benchmark: plan.benchmark,
		Start:     plan.start,
		End:       plan.end,
		Alignment: plan.alignment,
		Returns:   returns,
		Prices:    prices,
		Metrics:   metrics,
	}, nil
}

func (sc *ServiceContext) planAnalysis(ctx context.Context, req sm.AnalysisRequest) (*analysisPlan, error) {
	plan := &analysisPlan{
		mode:      strings.ToLower(strings.TrimSpace(req.Mode)),
		alignment: sc.Alignment,
	}

	var err error
	if plan.start, err = parseDate("start", req.Start); err != nil {
		return nil, err
	}
	if plan.end, err = parseDate("end", req.End); err != nil {
		return nil, err
	}
	if plan.start.After(plan.end) {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("start %s is after end %s", req.Start, req.End)}
	}

	if strings.TrimSpace(req.Alignment) != "" {
		if plan.alignment, err = ParseAlignmentPolicy(req.Alignment); err != nil {
			return nil, err
		}
	}

	requested := cleanInstruments(req.Instruments)
	switch plan.mode {
	case "", sm.ModeSandbox:
		plan.mode = sm.ModeSandbox
		plan.benchmark = strings.ToUpper(strings.TrimSpace(req.Benchmark))
		if plan.benchmark == "" {
			plan.benchmark = sm.DefaultBenchmark
		}
		if len(requested) == 0 {
			return nil, &ConfigurationError{Reason: "no instruments selected"}
		}
		plan.instruments = requested

	case sm.ModeSector:
		plan.sector = strings.TrimSpace(req.Sector)
		benchmark, ok := sc.Indices.Benchmark(plan.sector)
		if !ok {
			return nil, &ConfigurationError{Sector: plan.sector, Reason: "no benchmark configured"}
		}
		plan.benchmark = benchmark

		if len(requested) > 0 {
			plan.instruments = requested
		} else {
			if sc.Holdings == nil {
				return nil, &ConfigurationError{Sector: plan.sector, Reason: "no holdings source configured"}
			}
			holdings, err := sc.Holdings.Resolve(ctx)
			if err != nil {
				return nil, err
			}
			sectorHoldings, ok := holdings[plan.sector]
			if !ok {
				return nil, &ConfigurationError{Sector: plan.sector, Reason: "sector missing from holdings export"}
			}
			plan.instruments = sectorHoldings
		}

	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown mode %q", req.Mode)}
	}

	if !slices.Contains(plan.instruments, plan.benchmark) {
		plan.instruments = append(plan.instruments, plan.benchmark)
	}

	return plan, nil
}

func (p *analysisPlan) label() string {
	if p.mode == sm.ModeSector {
		return fmt.Sprintf("sector %s vs %s", p.sector, p.benchmark)
	}
	return fmt.Sprintf("sandbox vs %s", p.benchmark)
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &ConfigurationError{Reason: fmt.Sprintf("%s date %q is not YYYY-MM-DD", name, value)}
	}
	return t, nil
}

func cleanInstruments(instruments []string) []string {
	res := make([]string, 0, len(instruments))
	for _, i := range instruments {
		if t := strings.ToUpper(strings.TrimSpace(i)); t != "" {
			res = append(res, t)
		}
	}
	return ex.Unique(res)
}

func mapMetric(m Metric) sm.MetricCell {
	return sm.MetricCell{Value: m.Value, Reason: m.Reason}
}

func MapAnalysisResultToResponse(res *AnalysisResult) sm.AnalysisResponse {
	response := sm.AnalysisResponse{
		Mode:         res.Mode,
		Sector:       res.Sector,
		Benchmark:    res.Benchmark,
		Start:        ex.FmtShort(res.Start),
		End:          ex.FmtShort(res.End),
		Alignment:    res.Alignment.String(),
		Observations: res.Returns.Len(),
		Metrics:      make([]sm.MetricsRowResponse, len(res.Metrics.Rows)),
	}

	for i, row := range res.Metrics.Rows {
		response.Metrics[i] = sm.MetricsRowResponse{
			Instrument:  row.Instrument,
			Beta:        mapMetric(row.Beta),
			Treynor:     mapMetric(row.Treynor),
			UpCapture:   mapMetric(row.UpCapture),
			DownCapture: mapMetric(row.DownCapture),
		}
	}

	corr := res.Metrics.Correlation
	instruments := corr.Instruments()
	response.Correlation = sm.CorrelationResponse{
		Instruments: instruments,
		Values:      make([][]sm.MetricCell, len(instruments)),
	}
	for i := range instruments {
		response.Correlation.Values[i] = make([]sm.MetricCell, len(instruments))
		for j := range instruments {
			response.Correlation.Values[i][j] = mapMetric(corr.At(i, j))
		}
	}

	if res.Prices != nil {
		dates := res.Prices.Dates()
		table := &sm.PriceTableResponse{
			Dates:  make([]string, len(dates)),
			Series: make([]sm.PriceSeriesResponse, 0, len(res.Prices.instruments)),
		}
		for i, d := range dates {
			table.Dates[i] = ex.FmtShort(d)
		}
		for _, instrument := range res.Prices.Instruments() {
			values, _ := res.Prices.Column(instrument)
			table.Series = append(table.Series, sm.PriceSeriesResponse{Instrument: instrument, Values: values})
		}
		response.NormalizedPrices = table
	}

	return response
}
