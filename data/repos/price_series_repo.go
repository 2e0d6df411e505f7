package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/guregu/null/v6"
	"github.com/jackc/pgx/v5"

	m "github.com/johnwashburne/Sector-Metrics-Dashboard/data/models"
	q "github.com/johnwashburne/Sector-Metrics-Dashboard/data/queries"
)

func (pg *Postgres) GetSeriesMetadata(ctx context.Context, symbol string) (*m.PriceSeriesMetadata, error) {
	return pg.getSeriesMetadata(ctx, pg.db, symbol)
}

func (pg *Postgres) getSeriesMetadata(ctx context.Context, db querier, symbol string) (*m.PriceSeriesMetadata, error) {
	args := pgx.NamedArgs{
		"symbol": symbol,
	}

	res, err := QuerySingle[m.PriceSeriesMetadata](ctx, db, q.Get(q.QueryHelper.Postgres.MetadataBySymbol), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query metadata by symbol (%s): %w", symbol, err)
	}

	return res, nil
}

func (pg *Postgres) GetPriceObservations(ctx context.Context, symbol string, start, end time.Time) ([]m.PriceObservation, error) {
	args := pgx.NamedArgs{
		"symbol": symbol,
		"start":  start,
		"end":    end,
	}

	res, err := Query[m.PriceSeriesData](ctx, pg.db, q.Get(q.QueryHelper.Postgres.PriceSeriesData), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query price series by symbol (%s): %w", symbol, err)
	}

	return m.MapPriceSeriesDataToObservations(symbol, res), nil
}

// SavePriceObservations stores the rows of one fetch and widens the cached window to [start, end]
// in a single transaction. Rows already present are left untouched.
func (pg *Postgres) SavePriceObservations(ctx context.Context, symbol string, start, end time.Time, observations []m.PriceObservation) (int64, error) {
	tx, err := pg.GetTransaction(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // this will kick off if we return before committing

	md, err := pg.getSeriesMetadata(ctx, tx, symbol)
	if err != nil {
		return 0, err
	}

	from, to := md.MergeCoverage(start, end)
	if md == nil {
		md = &m.PriceSeriesMetadata{Symbol: symbol}
		args := pgx.NamedArgs{
			"symbol":         symbol,
			"covered_from":   from,
			"last_refreshed": to,
		}
		if err := tx.QueryRow(ctx, q.Get(q.QueryHelper.Postgres.InsertMetadata), args).Scan(&md.Id); err != nil {
			return 0, fmt.Errorf("error inserting new metadata for %s: %w", symbol, err)
		}
	} else {
		args := pgx.NamedArgs{
			"id":             md.Id,
			"covered_from":   from,
			"last_refreshed": to,
		}
		if _, err := tx.Exec(ctx, q.Get(q.QueryHelper.Postgres.UpdateCoverage), args); err != nil {
			return 0, fmt.Errorf("error updating coverage for %s: %w", symbol, err)
		}
	}

	var inserted int64
	if len(observations) > 0 {
		insert := q.Get(q.QueryHelper.Postgres.InsertPriceSeriesData)
		batch := &pgx.Batch{}
		for _, o := range observations {
			batch.Queue(insert, pgx.NamedArgs{
				"source_id": md.Id,
				"date":      o.Date,
				"close":     null.FloatFrom(o.Close),
				"volume":    o.Volume,
			})
		}

		br := tx.SendBatch(ctx, batch)
		for range observations {
			ct, err := br.Exec()
			if err != nil {
				br.Close()
				return 0, fmt.Errorf("error inserting price series for %s: %w", symbol, err)
			}
			inserted += ct.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("error closing batch for %s: %w", symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing price series for %s: %w", symbol, err)
	}

	return inserted, nil
}
