package core

import (
	"fmt"
	"math"

	charts "github.com/vicanso/go-charts/v2"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

const (
	chartWidth  = 1000
	chartHeight = 600
)

// RenderNormalizedPrices draws every instrument of the table as one line, PNG encoded
func RenderNormalizedPrices(prices *NormalizedPriceTable, title string) ([]byte, error) {
	if prices == nil || prices.Len() == 0 {
		return nil, &EmptyDataError{Reason: "nothing to chart"}
	}

	dates := prices.Dates()
	xLabels := make([]string, len(dates))
	for i, d := range dates {
		xLabels[i] = ex.FmtShort(d)
	}

	names := prices.Instruments()
	values := make([][]float64, len(names))
	yMin, yMax := math.Inf(1), math.Inf(-1)
	for i, name := range names {
		values[i], _ = prices.Column(name)
		for _, v := range values[i] {
			yMin = math.Min(yMin, v)
			yMax = math.Max(yMax, v)
		}
	}

	// pad so lines do not sit on the frame
	pad := (yMax - yMin) * 0.05
	if pad == 0 {
		pad = 0.05
	}
	yMin -= pad
	yMax += pad

	// Determine split number for x-axis based on data points
	splitNum := 6
	if len(xLabels) <= 30 {
		splitNum = max(len(xLabels)/3, 3)
	}

	p, err := charts.LineRender(
		values,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.LegendOptionFunc(charts.LegendOption{
			Data: names,
			Top:  charts.PositionTop,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(chartWidth),
		charts.HeightOptionFunc(chartHeight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}

	return buf, nil
}
