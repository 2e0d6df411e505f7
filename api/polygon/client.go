package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	c "github.com/johnwashburne/Sector-Metrics-Dashboard/api"
	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

const (
	HostDefault = "api.polygon.io"

	// free tier allows five calls a minute
	DefaultRequestsPerMinute = 5
)

const (
	defaultTimeout = time.Second * 30
	maxResults     = 50000
	marketZone     = "America/New_York"
)

type aggregatesResponse struct {
	Ticker       string      `json:"ticker"`
	Status       string      `json:"status"`
	ResultsCount int         `json:"resultsCount"`
	Results      []aggregate `json:"results"`
	Error        string      `json:"error"`
	Message      string      `json:"message"`
}

type aggregate struct {
	Close     float64  `json:"c"`
	Volume    *float64 `json:"v"`
	Timestamp int64    `json:"t"`
}

type PolygonClient struct {
	*c.Client
	limiter  *rate.Limiter
	location *time.Location
}

type Option func(*PolygonClient)

// WithRateLimit overrides the request limiter, nil disables limiting
func WithRateLimit(limiter *rate.Limiter) Option {
	return func(pc *PolygonClient) {
		pc.limiter = limiter
	}
}

// WithConnection points the client at another host, used against httptest servers
func WithConnection(host string, opts ...c.ClientOption) Option {
	return func(pc *PolygonClient) {
		pc.Client = c.ClientFactory(host, pc.ApiKey, defaultTimeout, opts...)
	}
}

// NewRateLimiter spreads perMinute calls over a minute with a burst of perMinute, nil when perMinute <= 0
func NewRateLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
}

func GetClient(apiKey string, opts ...Option) *PolygonClient {
	location, err := time.LoadLocation(marketZone)
	if err != nil {
		log.Printf("unable to load %s, falling back to UTC: %v", marketZone, err)
		location = time.UTC
	}

	pc := &PolygonClient{
		Client:   c.ClientFactory(HostDefault, apiKey, defaultTimeout),
		limiter:  NewRateLimiter(DefaultRequestsPerMinute),
		location: location,
	}

	for _, opt := range opts {
		opt(pc)
	}

	return pc
}

// FetchDailyCloses queries the adjusted daily aggregates of a ticker for [start, end].
// https://polygon.io/docs/stocks/get_v2_aggs_ticker__stocksticker__range__multiplier___timespan___from___to
func (pc *PolygonClient) FetchDailyCloses(ctx context.Context, ticker string, start, end time.Time) ([]dm.PriceObservation, error) {
	if pc == nil {
		panic("polygon client has not been set.")
	}

	if pc.limiter != nil {
		if err := pc.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("error waiting on polygon rate limit: %w", err)
		}
	}

	endpoint := pc.buildRequestPath(ticker, start, end)
	response, err := pc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	return parseAggregates(body, ticker, pc.location)
}

func (pc *PolygonClient) buildRequestPath(ticker string, start, end time.Time) *url.URL {
	endpoint := &url.URL{}
	endpoint.Path = fmt.Sprintf("/v2/aggs/ticker/%s/range/1/day/%s/%s", url.PathEscape(ticker), ex.FmtShort(start), ex.FmtShort(end))

	query := endpoint.Query()
	query.Set("adjusted", "true")
	query.Set("sort", "asc")
	query.Set("limit", fmt.Sprint(maxResults))
	query.Set("apiKey", pc.Client.ApiKey)
	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseAggregates(body []byte, ticker string, location *time.Location) ([]dm.PriceObservation, error) {
	var raw aggregatesResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	switch strings.ToUpper(raw.Status) {
	case "OK", "DELAYED":
	default:
		msg := raw.Error
		if msg == "" {
			msg = raw.Message
		}
		return nil, fmt.Errorf("polygon returned status %q for %s: %s", raw.Status, ticker, msg)
	}

	res := make([]dm.PriceObservation, 0, len(raw.Results))
	for _, agg := range raw.Results {
		obs := dm.PriceObservation{
			Symbol: ticker,
			Date:   ex.DateOnly(time.UnixMilli(agg.Timestamp).In(location)),
			Close:  agg.Close,
		}
		if agg.Volume != nil {
			obs.Volume.SetValid(*agg.Volume)
		}
		res = append(res, obs)
	}

	return res, nil
}
