package core

import (
	"math"

	"github.com/guregu/null/v6"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
)

// variances at or below this are constant series carrying rounding noise
const zeroVariance = 1e-20

// Metric is one cell of an output table. An undefined cell has no value and a reason.
type Metric struct {
	Value  null.Float
	Reason string
}

func definedMetric(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return undefinedMetric("not a finite number")
	}
	return Metric{Value: null.FloatFrom(v)}
}

func undefinedMetric(reason string) Metric {
	return Metric{Reason: reason}
}

func (m Metric) Defined() bool {
	return m.Value.Valid
}

// Err is nil for a defined cell, otherwise a DegenerateMetricError naming the cell
func (m Metric) Err(instrument, metric string) error {
	if m.Defined() {
		return nil
	}
	return &DegenerateMetricError{Instrument: instrument, Metric: metric, Reason: m.Reason}
}

// sampleMoments holds the sample covariance of every column pair of a return table
type sampleMoments struct {
	cov *mat.SymDense
	n   int
}

func getSampleMoments(rt *ReturnTable) sampleMoments {
	if rt.Len() < 2 {
		return sampleMoments{n: rt.Len()}
	}
	return sampleMoments{cov: GetCovarianceMatrix(rt.columns), n: rt.Len()}
}

// enough reports whether a sample variance exists at all
func (s sampleMoments) enough() bool {
	return s.cov != nil
}

func (s sampleMoments) variance(i int) float64 {
	return s.cov.At(i, i)
}

func (s sampleMoments) isConstant(i int) bool {
	return s.variance(i) <= zeroVariance
}

func (s sampleMoments) stdDev(i int) float64 {
	return math.Sqrt(s.variance(i))
}

// correlation is the Pearson coefficient of columns i and j, clamped to [-1, 1]
func (s sampleMoments) correlation(i, j int) Metric {
	if !s.enough() {
		return undefinedMetric("fewer than two returns")
	}
	if s.isConstant(i) || s.isConstant(j) {
		return undefinedMetric("zero variance")
	}
	if i == j {
		return definedMetric(1)
	}
	corr := s.cov.At(i, j) / math.Sqrt(s.variance(i)*s.variance(j))
	return definedMetric(math.Max(-1, math.Min(1, corr)))
}

func GetCovarianceMatrix[T ex.Number](data [][]T) *mat.SymDense {
	returnMatrix := ArrToMatrix(data)
	covMatrix := mat.NewSymDense(len(data), nil)
	stat.CovarianceMatrix(covMatrix, returnMatrix, nil)
	return covMatrix
}

// ArrToMatrix lays column slices out as an observations x symbols matrix
func ArrToMatrix[T ex.Number](data [][]T) *mat.Dense {
	nSymbols := len(data)
	nObservations := len(data[0])
	res := mat.NewDense(nObservations, nSymbols, nil)
	for j, col := range data {
		for i, row := range col {
			res.Set(i, j, float64(row))
		}
	}
	return res
}
