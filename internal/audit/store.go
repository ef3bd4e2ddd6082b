package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ADEPT-ML/Backend/internal/analysis"
)

// Store keeps a best-effort history of completed detection runs in Postgres.
// It is optional; the orchestrator tolerates running without one.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
        CREATE TABLE IF NOT EXISTS detection_runs (
            id UUID PRIMARY KEY,
            session_id TEXT NOT NULL,
            building TEXT NOT NULL,
            algorithm_id INT NOT NULL,
            sensor_count INT NOT NULL,
            anomaly_count INT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`
	_, err := pool.Exec(ctx, stmt)
	return err
}

func (s *Store) RecordRun(ctx context.Context, entry analysis.RunEntry) error {
	const query = `
        INSERT INTO detection_runs (id, session_id, building, algorithm_id, sensor_count, anomaly_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW());`
	_, err := s.db.Exec(ctx, query,
		uuid.New(), entry.SessionID, entry.Building, entry.AlgorithmID, entry.SensorCount, entry.AnomalyCount)
	return err
}

func (s *Store) Close() {
	s.db.Close()
}
