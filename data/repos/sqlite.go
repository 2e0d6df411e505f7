package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	m "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
	q "github.com/johnwashburne/Sector-Metrics-Dashboard/data/queries"
)

// SQLite is a single file price cache for running without a database server.
// Dates are stored as YYYY-MM-DD text so range filters compare lexically.
type SQLite struct {
	db *sql.DB
}

func GetSQLiteConnection(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database %s: %w", path, err)
	}

	// sqlite serializes writers, one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	for _, path := range []string{q.QueryHelper.SQLite.SchemaMetadata, q.QueryHelper.SQLite.SchemaData} {
		if _, err := s.db.ExecContext(ctx, q.Get(path)); err != nil {
			return fmt.Errorf("error applying schema %s: %w", path, err)
		}
	}
	return nil
}

func (s *SQLite) GetSeriesMetadata(ctx context.Context, symbol string) (*m.PriceSeriesMetadata, error) {
	return getSQLiteSeriesMetadata(ctx, s.db, symbol)
}

type sqliteQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSQLiteSeriesMetadata(ctx context.Context, db sqliteQueryer, symbol string) (*m.PriceSeriesMetadata, error) {
	var md m.PriceSeriesMetadata
	var from, to string

	row := db.QueryRowContext(ctx, q.Get(q.QueryHelper.SQLite.MetadataBySymbol), sql.Named("symbol", symbol))
	if err := row.Scan(&md.Id, &md.Symbol, &from, &to); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to query metadata by symbol (%s): %w", symbol, err)
	}

	var err error
	if md.CoveredFrom, err = time.Parse(time.DateOnly, from); err != nil {
		return nil, fmt.Errorf("error parsing covered_from for %s: %w", symbol, err)
	}
	if md.LastRefreshed, err = time.Parse(time.DateOnly, to); err != nil {
		return nil, fmt.Errorf("error parsing last_refreshed for %s: %w", symbol, err)
	}

	return &md, nil
}

func (s *SQLite) GetPriceObservations(ctx context.Context, symbol string, start, end time.Time) ([]m.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, q.Get(q.QueryHelper.SQLite.PriceSeriesData),
		sql.Named("symbol", symbol),
		sql.Named("start", start.Format(time.DateOnly)),
		sql.Named("end", end.Format(time.DateOnly)),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to query price series by symbol (%s): %w", symbol, err)
	}
	defer rows.Close()

	var res []*m.PriceSeriesData
	for rows.Next() {
		var d m.PriceSeriesData
		var date string
		if err := rows.Scan(&d.SourceId, &date, &d.Close, &d.Volume); err != nil {
			return nil, fmt.Errorf("error scanning price series row for %s: %w", symbol, err)
		}
		if d.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, fmt.Errorf("error parsing date %s for %s: %w", date, symbol, err)
		}
		res = append(res, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price series for %s: %w", symbol, err)
	}

	return m.MapPriceSeriesDataToObservations(symbol, res), nil
}

func (s *SQLite) SavePriceObservations(ctx context.Context, symbol string, start, end time.Time, observations []m.PriceObservation) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	md, err := getSQLiteSeriesMetadata(ctx, tx, symbol)
	if err != nil {
		return 0, err
	}

	from, to := md.MergeCoverage(start, end)
	var sourceId int64
	if md == nil {
		res, err := tx.ExecContext(ctx, q.Get(q.QueryHelper.SQLite.InsertMetadata),
			sql.Named("symbol", symbol),
			sql.Named("covered_from", from.Format(time.DateOnly)),
			sql.Named("last_refreshed", to.Format(time.DateOnly)),
		)
		if err != nil {
			return 0, fmt.Errorf("error inserting new metadata for %s: %w", symbol, err)
		}
		if sourceId, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("error reading metadata id for %s: %w", symbol, err)
		}
	} else {
		sourceId = int64(md.Id)
		_, err := tx.ExecContext(ctx, q.Get(q.QueryHelper.SQLite.UpdateCoverage),
			sql.Named("id", sourceId),
			sql.Named("covered_from", from.Format(time.DateOnly)),
			sql.Named("last_refreshed", to.Format(time.DateOnly)),
		)
		if err != nil {
			return 0, fmt.Errorf("error updating coverage for %s: %w", symbol, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, q.Get(q.QueryHelper.SQLite.InsertPriceSeriesData))
	if err != nil {
		return 0, fmt.Errorf("error preparing price series insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, o := range observations {
		res, err := stmt.ExecContext(ctx,
			sql.Named("source_id", sourceId),
			sql.Named("date", o.Date.Format(time.DateOnly)),
			sql.Named("close", null.FloatFrom(o.Close)),
			sql.Named("volume", o.Volume),
		)
		if err != nil {
			return 0, fmt.Errorf("error inserting price series for %s: %w", symbol, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing price series for %s: %w", symbol, err)
	}

	return inserted, nil
}
