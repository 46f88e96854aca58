package match

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the job_matches table, which carries a
// UNIQUE (job_id, user_id) constraint.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const matchColumns = `id, job_id, user_id, score, matched_skills, status, created_at, updated_at`

// Upsert implements Store. All rows go out in one batch inside one transaction.
func (s *PostgresStore) Upsert(ctx context.Context, ms []Match) (int, error) {
	if len(ms) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("upsert begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range ms {
		skills := m.MatchedSkills
		if skills == nil {
			skills = []string{}
		}
		batch.Queue(
			`INSERT INTO job_matches (id, job_id, user_id, score, matched_skills, status, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, 'MATCHED', NOW(), NOW())
			 ON CONFLICT (job_id, user_id) DO UPDATE
			 SET score          = EXCLUDED.score,
			     matched_skills = EXCLUDED.matched_skills,
			     status         = CASE WHEN job_matches.status = 'WITHDRAWN'
			                           THEN 'MATCHED' ELSE job_matches.status END,
			     updated_at     = NOW()
			 RETURNING (xmax = 0) AS inserted`,
			uuid.NewString(), m.JobID, m.UserID, m.Score, skills,
		)
	}

	br := tx.SendBatch(ctx, batch)
	created := 0
	for range ms {
		var inserted bool
		if err := br.QueryRow().Scan(&inserted); err != nil {
			br.Close()
			return 0, fmt.Errorf("upsert: %w", err)
		}
		if inserted {
			created++
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("upsert close batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("upsert commit: %w", err)
	}
	return created, nil
}

// ListForJob implements Store.
func (s *PostgresStore) ListForJob(ctx context.Context, jobID string) ([]Match, error) {
	return s.list(ctx, `WHERE job_id = $1 ORDER BY created_at, id`, jobID)
}

// ListForCandidate implements Store.
func (s *PostgresStore) ListForCandidate(ctx context.Context, userID string) ([]Match, error) {
	return s.list(ctx, `WHERE user_id = $1 ORDER BY created_at, id`, userID)
}

// GetMany implements Store.
func (s *PostgresStore) GetMany(ctx context.Context, ids []string) ([]Match, error) {
	if len(ids) == 0 {
		return []Match{}, nil
	}
	return s.list(ctx, `WHERE id = ANY($1) ORDER BY created_at, id`, ids)
}

// SetStatus implements Store.
func (s *PostgresStore) SetStatus(ctx context.Context, ids []string, status Status) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_matches SET status = $2, updated_at = NOW()
		 WHERE id = ANY($1) AND status <> $2`,
		ids, string(status),
	)
	if err != nil {
		return 0, fmt.Errorf("setStatus: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_matches WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("deleteMatches: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteForJob implements Store.
func (s *PostgresStore) DeleteForJob(ctx context.Context, jobID string) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_matches WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, fmt.Errorf("deleteMatchesForJob: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]Match, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+matchColumns+` FROM job_matches `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("listMatches query: %w", err)
	}
	defer rows.Close()

	ms := make([]Match, 0)
	for rows.Next() {
		var (
			m      Match
			status string
		)
		if err := rows.Scan(&m.ID, &m.JobID, &m.UserID, &m.Score, &m.MatchedSkills, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("listMatches scan: %w", err)
		}
		if m.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return ms, rows.Err()
}
