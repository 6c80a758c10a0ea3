// Package db implements archon.db.query over a set of named database
// connections. The handler is deliberately backend-agnostic: it talks to a
// QueryRunner, and the runtime wires a pgx-backed implementation when
// databases are configured.
package db

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/arcaneos/archon-runtime/internal/infra"
)

// Row is one result row keyed by column name.
type Row map[string]any

// QueryRunner executes a parameterized query against a named database.
type QueryRunner interface {
	Query(ctx context.Context, database, query string, params []any) ([]Row, error)
	Databases() []string
}

// PoolRunner routes queries to pgx pools, one per configured database, each
// behind its own circuit breaker so a dead database stops consuming
// connections quickly.
type PoolRunner struct {
	pools    map[string]*pgxpool.Pool
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewPoolRunner connects to every configured database. A database that
// cannot be configured fails startup; connectivity problems surface later
// through the breaker.
func NewPoolRunner(ctx context.Context, dbs map[string]infra.DatabaseConfig, logger *zap.Logger) (*PoolRunner, error) {
	r := &PoolRunner{
		pools:    make(map[string]*pgxpool.Pool, len(dbs)),
		breakers: make(map[string]*gobreaker.CircuitBreaker, len(dbs)),
		logger:   logger,
	}

	for name, cfg := range dbs {
		poolCfg, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("database %q has invalid url: %w", name, err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxConns)
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("database %q pool: %w", name, err)
		}
		r.pools[name] = pool

		logger.Info("database pool ready",
			zap.String("name", name),
			zap.Int32("max_conns", poolCfg.MaxConns))

		r.breakers[name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "db-" + name,
			Interval: 5 * time.Second,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		})
	}
	return r, nil
}

func (r *PoolRunner) Query(ctx context.Context, database, query string, params []any) ([]Row, error) {
	pool, ok := r.pools[database]
	if !ok {
		return nil, fmt.Errorf("unknown database %q (configured: %v)", database, r.Databases())
	}

	result, err := r.breakers[database].Execute(func() (interface{}, error) {
		return r.run(ctx, pool, query, params)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Row), nil
}

func (r *PoolRunner) run(ctx context.Context, pool *pgxpool.Pool, query string, params []any) ([]Row, error) {
	rows, err := pool.Query(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := []Row{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[string(fd.Name)] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

func (r *PoolRunner) Databases() []string {
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ping verifies every configured pool is reachable.
func (r *PoolRunner) Ping(ctx context.Context) error {
	for name, pool := range r.pools {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("database %q unreachable: %w", name, err)
		}
	}
	return nil
}

func (r *PoolRunner) Close() {
	for _, pool := range r.pools {
		pool.Close()
	}
}
