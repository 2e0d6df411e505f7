package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"slices"
	"strings"
	"time"
)

const (
	// SeedSector owns constituent rows that appear before any sector header
	SeedSector  = "Consumer Discretionary"
	SectorTotal = "Sector Total"
	CashEntry   = "Cash"
)

type SectorIndexEntry struct {
	Sector    string `yaml:"sector" json:"sector"`
	Benchmark string `yaml:"benchmark" json:"benchmark"`
}

// SectorIndexMap maps a sector to its benchmark instrument. Built once, read only afterwards.
type SectorIndexMap struct {
	entries []SectorIndexEntry
	lookup  map[string]string
}

func NewSectorIndexMap(entries []SectorIndexEntry) (SectorIndexMap, error) {
	if len(entries) == 0 {
		return SectorIndexMap{}, &ConfigurationError{Reason: "sector index map is empty"}
	}

	lookup := make(map[string]string, len(entries))
	cleaned := make([]SectorIndexEntry, 0, len(entries))
	for _, e := range entries {
		sector := strings.TrimSpace(e.Sector)
		benchmark := strings.TrimSpace(e.Benchmark)
		if sector == "" || benchmark == "" {
			return SectorIndexMap{}, &ConfigurationError{Sector: sector, Reason: "sector and benchmark are both required"}
		}
		if _, ok := lookup[sector]; ok {
			return SectorIndexMap{}, &ConfigurationError{Sector: sector, Reason: "sector listed twice"}
		}
		lookup[sector] = benchmark
		cleaned = append(cleaned, SectorIndexEntry{Sector: sector, Benchmark: benchmark})
	}

	return SectorIndexMap{entries: cleaned, lookup: lookup}, nil
}

func (sim SectorIndexMap) Benchmark(sector string) (string, bool) {
	b, ok := sim.lookup[sector]
	return b, ok
}

// Sectors in configuration order
func (sim SectorIndexMap) Sectors() []string {
	res := make([]string, len(sim.entries))
	for i, e := range sim.entries {
		res[i] = e.Sector
	}
	return res
}

func (sim SectorIndexMap) Entries() []SectorIndexEntry {
	return slices.Clone(sim.entries)
}

func (sim SectorIndexMap) Len() int {
	return len(sim.entries)
}

// SectorHoldingsMap maps a sector to its constituent instruments
type SectorHoldingsMap map[string][]string

// ParseHoldingsExport reads the comma separated holdings export. The first row is a header.
// A row with a first cell starts (or continues) that sector, a second cell on it is a constituent.
// A row with an empty first cell adds its second cell to the current sector. "Sector Total" rows are skipped.
func ParseHoldingsExport(r io.Reader, seedSector string) (SectorHoldingsMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	res := make(SectorHoldingsMap)
	current := ""
	add := func(sector, ticker string) {
		if !slices.Contains(res[sector], ticker) {
			res[sector] = append(res[sector], ticker)
		}
	}

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &ConfigurationError{Row: row, Reason: fmt.Sprintf("unreadable row: %v", pe.Err)}
		}
		if err != nil {
			return nil, fmt.Errorf("error reading holdings export: %w", err)
		}
		if row == 1 {
			continue
		}

		first := strings.TrimSpace(record[0])
		second := ""
		if len(record) > 1 {
			second = strings.TrimSpace(record[1])
		}

		switch {
		case first == SectorTotal:
			continue
		case first != "":
			current = first
			if _, ok := res[current]; !ok {
				res[current] = []string{}
			}
			if second != "" {
				add(current, second)
			}
		default:
			if second == "" {
				return nil, &ConfigurationError{Sector: current, Row: row, Reason: "constituent row has no instrument"}
			}
			if current == "" {
				if seedSector == "" {
					return nil, &ConfigurationError{Row: row, Reason: "constituent row before any sector header"}
				}
				current = seedSector
			}
			add(current, second)
		}
	}

	return res, nil
}

// ApplySectorIndices keeps the sectors with a benchmark, makes sure each lists its benchmark
// and drops every Cash entry. raw is left untouched.
func ApplySectorIndices(raw SectorHoldingsMap, indices SectorIndexMap) SectorHoldingsMap {
	res := make(SectorHoldingsMap, len(raw))
	for sector, holdings := range raw {
		benchmark, ok := indices.Benchmark(sector)
		if !ok {
			log.Printf("dropping sector %s, no benchmark configured", sector)
			continue
		}

		kept := slices.DeleteFunc(slices.Clone(holdings), func(t string) bool { return t == CashEntry })
		if !slices.Contains(kept, benchmark) {
			kept = append(kept, benchmark)
		}
		res[sector] = kept
	}
	return res
}

type HoldingsResolver struct {
	Source     HoldingsSource
	Indices    SectorIndexMap
	SeedSector string
}

// Resolve downloads and parses the export on every call, nothing is cached
func (hr *HoldingsResolver) Resolve(ctx context.Context) (SectorHoldingsMap, error) {
	start := time.Now()
	body, err := hr.Source.FetchHoldingsExport(ctx)
	if err != nil {
		return nil, &RetrievalError{Err: fmt.Errorf("error fetching holdings export: %w", err)}
	}
	defer body.Close()

	raw, err := ParseHoldingsExport(body, hr.SeedSector)
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &RetrievalError{Err: err}
	}

	res := ApplySectorIndices(raw, hr.Indices)
	log.Printf("resolved holdings for %d sectors (time: %v)", len(res), time.Since(start))
	return res, nil
}
