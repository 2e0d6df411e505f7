package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	q "github.com/johnwashburne/Sector-Metrics-Dashboard/data/queries"
)

type Postgres struct {
	db *pgxpool.Pool
}

// querier is satisfied by both the pool and an open transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func GetPostgresConnection(ctx context.Context, connectionString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("error parsing pgx connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error making new pgx pool: %w", err)
	}

	return &Postgres{pool}, nil
}

func (pg *Postgres) GetTransaction(ctx context.Context) (pgx.Tx, error) {
	return pg.db.Begin(ctx)
}

func (pg *Postgres) Ping(ctx context.Context) error {
	return pg.db.Ping(ctx)
}

func (pg *Postgres) Close() {
	pg.db.Close()
}

// EnsureSchema creates the cache tables when they are missing
func (pg *Postgres) EnsureSchema(ctx context.Context) error {
	for _, path := range []string{q.QueryHelper.Postgres.SchemaMetadata, q.QueryHelper.Postgres.SchemaData} {
		if _, err := pg.db.Exec(ctx, q.Get(path)); err != nil {
			return fmt.Errorf("error applying schema %s: %w", path, err)
		}
	}
	return nil
}

func Query[T any](ctx context.Context, db querier, query string, args pgx.NamedArgs) ([]*T, error) {
	rows, err := db.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("unable to query: %w", err)
	}
	defer rows.Close()

	res, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("error occured while collecting rows in query: %w", err)
	}

	result := make([]*T, len(res))
	for i := range res {
		result[i] = &res[i]
	}

	return result, nil
}

// QuerySingle returns nil without an error when nothing matched
func QuerySingle[T any](ctx context.Context, db querier, query string, args pgx.NamedArgs) (*T, error) {
	res, err := Query[T](ctx, db, query, args)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	if len(res) > 1 {
		return nil, fmt.Errorf("multiple results found")
	}

	return res[0], nil
}
