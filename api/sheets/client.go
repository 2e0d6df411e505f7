package sheets

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	c "github.com/johnwashburne/Sector-Metrics-Dashboard/api"
)

// DefaultExportURL is the published holdings sheet, exported as csv
const DefaultExportURL = "https://docs.google.com/spreadsheets/d/1hLTHQbxRyILSQg6TP2hSXeBnQ5Km8ifo64fd7tXJ5CM/gviz/tq?tqx=out:csv"

const defaultTimeout = time.Second * 30

type SheetsClient struct {
	*c.Client
	path     string
	rawQuery string
}

// GetClient builds a client for a csv export url, any scheme other than http falls back to https
func GetClient(exportURL string, opts ...c.ClientOption) (*SheetsClient, error) {
	u, err := url.Parse(exportURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing holdings export url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("holdings export url %q has no host", exportURL)
	}

	if u.Scheme == "http" {
		opts = append([]c.ClientOption{c.WithScheme("http")}, opts...)
	}

	return &SheetsClient{
		Client:   c.ClientFactory(u.Host, "", defaultTimeout, opts...),
		path:     u.Path,
		rawQuery: u.RawQuery,
	}, nil
}

// FetchHoldingsExport downloads the export, the caller closes the body
func (sc *SheetsClient) FetchHoldingsExport(ctx context.Context) (io.ReadCloser, error) {
	endpoint := &url.URL{
		Path:     sc.path,
		RawQuery: sc.rawQuery,
	}

	response, err := sc.Client.Connection.Request(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("error fetching holdings export: %w", err)
	}

	return response.Body, nil
}
