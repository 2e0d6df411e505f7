package core

import (
	"context"
	"time"
)

const DefaultRequestTimeout = 30 * time.Second

// Instrument is one entry of the selectable universe
type Instrument struct {
	Ticker string
	Sector string
}

type ServiceContext struct {
	Context        context.Context
	Prices         PriceSource
	Holdings       *HoldingsResolver
	Indices        SectorIndexMap
	Universe       []Instrument
	Alignment      AlignmentPolicy
	RequestTimeout time.Duration
}

func (sc *ServiceContext) requestTimeout() time.Duration {
	if sc.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return sc.RequestTimeout
}
