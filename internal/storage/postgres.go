package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "dailyrun/pkg/logx"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
    tbl        TEXT        NOT NULL,
    idx        BIGINT      NOT NULL,
    data       TEXT        NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (tbl, idx)
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Backend, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 4
	pcfg.MaxConnLifetime = 5 * time.Minute
	pcfg.MaxConnIdleTime = 1 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres store opened", logx.String("host", pcfg.ConnConfig.Host))
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Load(ctx context.Context, table string) ([]Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT idx, data FROM records WHERE tbl = $1 ORDER BY idx`, table)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Index, &r.Data); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *postgresStore) Put(ctx context.Context, table string, r Row) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO records(tbl, idx, data, updated_at) VALUES($1, $2, $3, now())
		 ON CONFLICT (tbl, idx) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		table, r.Index, r.Data,
	)
	if err != nil {
		return fmt.Errorf("put %s/%d: %w", table, r.Index, err)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, table string, index int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE tbl = $1 AND idx = $2`, table, index); err != nil {
		return fmt.Errorf("delete %s/%d: %w", table, index, err)
	}
	return nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
