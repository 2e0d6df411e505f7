package queries

import (
	"embed"
	"fmt"
)

//go:embed postgres/*.sql sqlite/*.sql
var Files embed.FS

// ^^^ the go:embed directive bakes the sql files into the binary at compile time,
// postgres and sqlite get their own dialect of each statement

type DialectQueries struct {
	SchemaMetadata        string
	SchemaData            string
	MetadataBySymbol      string
	PriceSeriesData       string
	InsertMetadata        string
	InsertPriceSeriesData string
	UpdateCoverage        string
}

type QueryHelperStruct struct {
	Postgres DialectQueries
	SQLite   DialectQueries
}

var QueryHelper = QueryHelperStruct{
	Postgres: dialect("postgres"),
	SQLite:   dialect("sqlite"),
}

func dialect(dir string) DialectQueries {
	return DialectQueries{
		SchemaMetadata:        dir + "/schema_metadata.sql",
		SchemaData:            dir + "/schema_data.sql",
		MetadataBySymbol:      dir + "/metadata_by_symbol.sql",
		PriceSeriesData:       dir + "/price_series_data.sql",
		InsertMetadata:        dir + "/insert_metadata.sql",
		InsertPriceSeriesData: dir + "/insert_price_series_data.sql",
		UpdateCoverage:        dir + "/update_coverage.sql",
	}
}

func Get(path string) string {
	content, err := Files.ReadFile(path)
	if err != nil {
		panic(fmt.Errorf("error reading query file: %w", err))
	}

	return string(content)
}
