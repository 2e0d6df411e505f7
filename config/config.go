package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/johnwashburne/Sector-Metrics-Dashboard/api/sheets"
	"github.com/johnwashburne/Sector-Metrics-Dashboard/core"
)

const (
	ProviderPolygon      = "polygon"
	ProviderAlphaVantage = "alphavantage"
)

var (
	//go:embed sectors.yaml
	defaultSectors []byte

	//go:embed universe.json
	defaultUniverse []byte
)

// Settings is everything read from the environment at start up
type Settings struct {
	PolygonApiKey      string
	PolygonRateLimit   int // calls per minute, 0 disables the limiter
	AlphaVantageApiKey string
	PriceProvider      string
	HoldingsCsvUrl     string
	SectorsConfig      string
	UniversePath       string
	DatabaseUrl        string
	SQLitePath         string
	HttpAddr           string
	RequestTimeout     time.Duration
	Alignment          core.AlignmentPolicy
}

type sectorsFile struct {
	Sectors []core.SectorIndexEntry `yaml:"sectors"`
}

// LoadSettings reads the process environment, godotenv is expected to have run already
func LoadSettings() (*Settings, error) {
	s := &Settings{
		PolygonApiKey:      os.Getenv("POLYGON_API_KEY"),
		AlphaVantageApiKey: os.Getenv("ALPHAVANTAGE_API_KEY"),
		PriceProvider:      strings.ToLower(getOrDefault("PRICE_PROVIDER", ProviderPolygon)),
		HoldingsCsvUrl:     getOrDefault("HOLDINGS_CSV_URL", sheets.DefaultExportURL),
		SectorsConfig:      os.Getenv("SECTORS_CONFIG"),
		UniversePath:       os.Getenv("UNIVERSE_PATH"),
		DatabaseUrl:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		HttpAddr:           getOrDefault("HTTP_ADDR", core.DefaultAddr),
	}

	var err error
	if s.PolygonRateLimit, err = strconv.Atoi(getOrDefault("POLYGON_RATE_LIMIT", "5")); err != nil {
		return nil, fmt.Errorf("error parsing POLYGON_RATE_LIMIT: %w", err)
	}
	if s.RequestTimeout, err = time.ParseDuration(getOrDefault("REQUEST_TIMEOUT", core.DefaultRequestTimeout.String())); err != nil {
		return nil, fmt.Errorf("error parsing REQUEST_TIMEOUT: %w", err)
	}
	if s.Alignment, err = core.ParseAlignmentPolicy(os.Getenv("ALIGNMENT_POLICY")); err != nil {
		return nil, fmt.Errorf("error parsing ALIGNMENT_POLICY: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	switch s.PriceProvider {
	case ProviderPolygon:
		if s.PolygonApiKey == "" {
			return fmt.Errorf("POLYGON_API_KEY is required for the %s provider", ProviderPolygon)
		}
	case ProviderAlphaVantage:
		if s.AlphaVantageApiKey == "" {
			return fmt.Errorf("ALPHAVANTAGE_API_KEY is required for the %s provider", ProviderAlphaVantage)
		}
	default:
		return fmt.Errorf("unknown PRICE_PROVIDER %q", s.PriceProvider)
	}

	if s.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", s.RequestTimeout)
	}
	if s.DatabaseUrl != "" && s.SQLitePath != "" {
		return fmt.Errorf("set DATABASE_URL or SQLITE_PATH, not both")
	}
	return nil
}

// LoadSectorIndexMap reads path, or the embedded eleven sector default when path is empty
func LoadSectorIndexMap(path string) (core.SectorIndexMap, error) {
	raw := defaultSectors
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return core.SectorIndexMap{}, fmt.Errorf("error reading sectors config %s: %w", path, err)
		}
	}
	return ParseSectorIndexMap(raw)
}

func ParseSectorIndexMap(raw []byte) (core.SectorIndexMap, error) {
	var file sectorsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return core.SectorIndexMap{}, fmt.Errorf("error unmarshaling sectors config: %w", err)
	}
	return core.NewSectorIndexMap(file.Sectors)
}

// LoadUniverse reads a json list of [ticker, sector] pairs, or the embedded default when path is empty
func LoadUniverse(path string) ([]core.Instrument, error) {
	raw := defaultUniverse
	if path != "" {
		var err error
		if raw, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("error reading universe %s: %w", path, err)
		}
	}
	return ParseUniverse(raw)
}

func ParseUniverse(raw []byte) ([]core.Instrument, error) {
	var pairs [][]string
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, fmt.Errorf("error unmarshaling universe: %w", err)
	}

	res := make([]core.Instrument, 0, len(pairs))
	for i, pair := range pairs {
		if len(pair) != 2 || strings.TrimSpace(pair[0]) == "" {
			return nil, fmt.Errorf("universe entry %d is not a [ticker, sector] pair: %v", i, pair)
		}
		res = append(res, core.Instrument{
			Ticker: strings.TrimSpace(pair[0]),
			Sector: strings.TrimSpace(pair[1]),
		})
	}
	return res, nil
}

func getOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}
