package alpha_vantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	c "github.com/johnwashburne/Sector-Metrics-Dashboard/api"
	ex "github.com/johnwashburne/Sector-Metrics-Dashboard/data/extensions"
	dm "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
)

// public
const (
	HostDefault = "www.alphavantage.co"
)

// private
const (
	// default query parameters
	defaultOutputSize = "full"
	defaultDataType   = "json"
	defaultTimeout    = time.Second * 30

	// api request elements
	query    = "query"
	symbol   = "symbol"
	function = "function"

	metaDataKey = "Meta Data"
)

var (
	timeSeriesDateFormats = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
	}

	// payloads alpha vantage sends with a 200 when a call is refused
	refusalKeys = []string{"Error Message", "Note", "Information"}
)

type AlphaVantageClient struct {
	*c.Client
	series TimeSeries
}

type Option func(*AlphaVantageClient)

// WithTimeSeries selects the daily series, TimeSeriesDaily unless set
func WithTimeSeries(series TimeSeries) Option {
	return func(avc *AlphaVantageClient) {
		avc.series = series
	}
}

// WithConnection points the client at another host, used against httptest servers
func WithConnection(host string, opts ...c.ClientOption) Option {
	return func(avc *AlphaVantageClient) {
		avc.Client = c.ClientFactory(host, avc.ApiKey, defaultTimeout, opts...)
	}
}

func GetClient(apiKey string, opts ...Option) *AlphaVantageClient {
	avc := &AlphaVantageClient{
		Client: c.ClientFactory(HostDefault, apiKey, defaultTimeout),
		series: TimeSeriesDaily,
	}
	for _, opt := range opts {
		opt(avc)
	}
	return avc
}

// FetchDailyCloses queries the full daily history of a ticker and keeps [start, end], ascending.
// https://www.alphavantage.co/documentation/#daily
func (avc *AlphaVantageClient) FetchDailyCloses(ctx context.Context, ticker string, start, end time.Time) ([]dm.PriceObservation, error) {
	if avc == nil {
		panic("alpha vantage client has not been set.")
	}

	endpoint := avc.buildRequestPath(map[string]string{
		function: avc.series.Function(),
		symbol:   ticker,
	})

	response, err := avc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	defer response.Body.Close()

	raw, err := parseRawJson(response.Body)
	if err != nil {
		return nil, err
	}

	if err := checkRefusal(raw); err != nil {
		return nil, err
	}

	timeZone, err := parseTimeZone(raw)
	if err != nil {
		return nil, err
	}

	observations, err := parseDailyCloses(raw, avc.series, ticker, timeZone)
	if err != nil {
		return nil, err
	}

	from, to := ex.DateOnly(start), ex.DateOnly(end)
	inRange := ex.FilterMultiple(observations, func(o dm.PriceObservation) bool {
		return !o.Date.Before(from) && !o.Date.After(to)
	})
	slices.SortFunc(inRange, func(a, b dm.PriceObservation) int {
		return a.Date.Compare(b.Date)
	})

	return inRange, nil
}

func (avc *AlphaVantageClient) buildRequestPath(params map[string]string) *url.URL {
	// build our URL
	endpoint := &url.URL{}
	endpoint.Path = query

	// base parameters
	query := endpoint.Query()
	query.Set("apikey", avc.Client.ApiKey)
	query.Set("datatype", defaultDataType)
	query.Set("outputsize", defaultOutputSize)

	// additional parameters
	for key, value := range params {
		query.Set(key, value)
	}

	endpoint.RawQuery = query.Encode()

	return endpoint
}

func parseRawJson(reader io.Reader) (raw map[string]json.RawMessage, err error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	// converting to a <string, raw message> map
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling response: %w", err)
	}

	return
}

func checkRefusal(raw map[string]json.RawMessage) error {
	for _, key := range refusalKeys {
		msg, ok := raw[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			text = string(msg)
		}
		return fmt.Errorf("alpha vantage refused the request (%s): %s", key, text)
	}
	return nil
}

func parseTimeZone(raw map[string]json.RawMessage) (*time.Location, error) {
	var metadataElements map[string]string
	if err := json.Unmarshal(raw[metaDataKey], &metadataElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling meta data: %w", err)
	}

	tzf := func(s string) bool { return strings.HasSuffix(s, ". Time Zone") }
	timeZoneKey, err := ex.FilterSingle(slices.Collect(maps.Keys(metadataElements)), tzf)
	if err != nil {
		return nil, fmt.Errorf("error extracting time zone for meta data")
	}

	return getTimeZone(metadataElements[timeZoneKey])
}

func parseDailyCloses(raw map[string]json.RawMessage, series TimeSeries, ticker string, location *time.Location) ([]dm.PriceObservation, error) {
	var timeSeriesElements map[string]map[string]string
	if err := json.Unmarshal(raw[series.TimeSeriesKey()], &timeSeriesElements); err != nil {
		return nil, fmt.Errorf("error unmarshaling time series: %w", err)
	}

	res := make([]dm.PriceObservation, 0, len(timeSeriesElements))
	if len(timeSeriesElements) == 0 {
		return res, nil
	}

	// populate the lookups
	var firstValue map[string]string
	for _, v := range timeSeriesElements {
		firstValue = v
		break
	}
	headers := slices.Collect(maps.Keys(firstValue))

	cf := func(s string) bool { return strings.HasSuffix(strings.ToLower(s), series.CloseSuffix()) }
	closeKey, err := ex.FilterSingle(headers, cf)
	if err != nil {
		return nil, fmt.Errorf("error extracting close key for time series. Available headers: %v", headers)
	}

	vf := func(s string) bool { return strings.HasSuffix(strings.ToLower(s), ". volume") }
	volumeKey, _ := ex.FilterSingle(headers, vf)

	for timeSeriesKey, timeSeriesValue := range timeSeriesElements {
		// get timestamp
		timestamp, err := parseDate(timeSeriesKey, location)
		if err != nil {
			return nil, fmt.Errorf("error converting TIMESTAMP from string to time.Time: %w", err)
		}

		closePrice, err := strconv.ParseFloat(timeSeriesValue[closeKey], 64)
		if err != nil {
			return nil, fmt.Errorf("error parsing close on %s: %w", timeSeriesKey, err)
		}

		obs := dm.PriceObservation{
			Symbol: ticker,
			Date:   ex.DateOnly(timestamp),
			Close:  closePrice,
		}
		if volumeKey != "" {
			if v, err := strconv.ParseFloat(timeSeriesValue[volumeKey], 64); err == nil {
				obs.Volume.SetValid(v)
			}
		}
		res = append(res, obs)
	}

	return res, nil
}

func getTimeZone(location string) (*time.Location, error) {
	var loc string
	switch strings.ToUpper(location) {
	case "US/EASTERN":
		loc = "America/New_York"
	default:
		log.Printf("default time zone hit, %s is not recognized", location)
		return time.UTC, nil
	}

	res, err := time.LoadLocation(loc)

	if err != nil {
		return nil, fmt.Errorf("error parsing time zone %s in time.LoadLocation", loc)
	}

	return res, nil
}

func parseDate(dateString string, location *time.Location) (time.Time, error) {
	for _, format := range timeSeriesDateFormats {
		t, err := time.ParseInLocation(format, dateString, location)
		if err != nil {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("error converting date %s to time.Time", dateString)
}
