package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dejobratic/opsapi/internal/idempotency"
)

// Store persists idempotency records in the idempotency_keys table. The
// primary key on key is what makes Claim atomic across instances.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Claim(ctx context.Context, key, requestHash string) (bool, error) {
	query := `
		INSERT INTO idempotency_keys (key, status, request_hash)
		VALUES ($1, 'pending', $2)
		ON CONFLICT (key) DO NOTHING
	`

	result, err := s.pool.Exec(ctx, query, key, requestHash)
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (s *Store) Lookup(ctx context.Context, key string) (*idempotency.Record, error) {
	query := `
		SELECT key, status, request_hash, status_code, response_etag, response_body, created_at, completed_at
		FROM idempotency_keys
		WHERE key = $1
	`

	var (
		rec         idempotency.Record
		status      string
		statusCode  *int32
		fingerprint *string
	)
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&rec.Key,
		&status,
		&rec.RequestHash,
		&statusCode,
		&fingerprint,
		&rec.Body,
		&rec.CreatedAt,
		&rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	rec.Status = idempotency.Status(status)
	if statusCode != nil {
		rec.StatusCode = int(*statusCode)
	}
	if fingerprint != nil {
		rec.Fingerprint = *fingerprint
	}

	return &rec, nil
}

func (s *Store) Complete(ctx context.Context, key string, outcome idempotency.Outcome) error {
	query := `
		UPDATE idempotency_keys
		SET status = 'completed', status_code = $2, response_etag = $3, response_body = $4, completed_at = now()
		WHERE key = $1 AND status = 'pending'
	`

	result, err := s.pool.Exec(ctx, query, key, outcome.StatusCode, outcome.Fingerprint, outcome.Body)
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	// Nothing pending: either unknown, or already completed by an earlier call.
	existing, err := s.Lookup(ctx, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return idempotency.ErrNotClaimed
	}
	if existing.Fingerprint != outcome.Fingerprint {
		return idempotency.ErrOutcomeMismatch
	}
	return nil
}

func (s *Store) Release(ctx context.Context, key string) (bool, error) {
	query := `DELETE FROM idempotency_keys WHERE key = $1 AND status = 'pending'`

	result, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return false, fmt.Errorf("release idempotency key: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (s *Store) Sweep(ctx context.Context, completedBefore time.Time) (int64, error) {
	query := `DELETE FROM idempotency_keys WHERE status = 'completed' AND completed_at < $1`

	result, err := s.pool.Exec(ctx, query, completedBefore)
	if err != nil {
		return 0, fmt.Errorf("sweep idempotency keys: %w", err)
	}

	return result.RowsAffected(), nil
}
