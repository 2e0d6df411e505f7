package core

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

func Test_RenderNormalizedPrices(t *testing.T) {
	series := [][]dm.PriceObservation{
		closes("AAPL", 0, 180, 184, 181, 190),
		closes("XLK", 0, 190, 192, 190, 195),
	}
	_, prices, err := AssembleTables(JoinByDate, []string{"AAPL", "XLK"}, series, day(0), day(3))
	require.NoError(t, err)

	png, err := RenderNormalizedPrices(prices, "Technology vs XLK")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func Test_RenderNormalizedPrices_Empty(t *testing.T) {
	_, err := RenderNormalizedPrices(nil, "nothing")
	assert.ErrorIs(t, err, ErrNoData)
}
