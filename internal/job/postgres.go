package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
)

// PostgresStore implements Store over the jobs table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const jobColumns = `
	id, poster_id, institution_id, group_id, employer_id, title, description,
	status, job_post_start_date, expiration_date,
	degree_types, fields_of_study, min_gpa, skills, keywords, zip_codes, states,
	matches_calculation_in_progress, active, archived, version, created_at, updated_at`

// Create implements Store.
func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	r := j.Requirements
	err := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (
		   id, poster_id, institution_id, group_id, employer_id, title, description,
		   status, job_post_start_date, expiration_date,
		   degree_types, fields_of_study, min_gpa, skills, keywords, zip_codes, states,
		   matches_calculation_in_progress, active, archived, version, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,1,NOW(),NOW())
		 RETURNING version, created_at, updated_at`,
		j.ID, j.PosterID, j.InstitutionID, j.GroupID, j.EmployerID, j.Title, j.Description,
		string(j.Status), j.JobPostStartDate, j.ExpirationDate,
		degreeStrings(r.DegreeTypes), nonNil(r.FieldsOfStudy), r.MinGPA, nonNil(r.Skills),
		nonNil(r.Keywords), nonNil(r.ZipCodes), nonNil(r.States),
		j.MatchesCalculationInProgress, j.Active, j.Archived,
	).Scan(&j.Version, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("createJob: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("job %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("getJob: %w", err)
	}
	return j, nil
}

// Update implements Store.
func (s *PostgresStore) Update(ctx context.Context, j *Job) error {
	r := j.Requirements
	err := s.pool.QueryRow(ctx,
		`UPDATE jobs
		 SET institution_id = $3, employer_id = $4, title = $5, description = $6,
		     status = $7, job_post_start_date = $8, expiration_date = $9,
		     degree_types = $10, fields_of_study = $11, min_gpa = $12, skills = $13,
		     keywords = $14, zip_codes = $15, states = $16,
		     matches_calculation_in_progress = $17, active = $18, archived = $19,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		j.ID, j.Version, j.InstitutionID, j.EmployerID, j.Title, j.Description,
		string(j.Status), j.JobPostStartDate, j.ExpirationDate,
		degreeStrings(r.DegreeTypes), nonNil(r.FieldsOfStudy), r.MinGPA, nonNil(r.Skills),
		nonNil(r.Keywords), nonNil(r.ZipCodes), nonNil(r.States),
		j.MatchesCalculationInProgress, j.Active, j.Archived,
	).Scan(&j.Version, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	if err != nil {
		return fmt.Errorf("updateJob: %w", err)
	}
	return nil
}

// GetMany implements Store.
func (s *PostgresStore) GetMany(ctx context.Context, ids []string) (map[string]*Job, error) {
	out := make(map[string]*Job, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	jobs, err := s.list(ctx, `WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		out[jobs[i].ID] = &jobs[i]
	}
	return out, nil
}

// ListOpen implements Store.
func (s *PostgresStore) ListOpen(ctx context.Context, f OpenFilter) ([]Job, error) {
	if f.All {
		return s.list(ctx, `WHERE status = 'OPEN' AND NOT archived ORDER BY created_at, id`)
	}
	return s.list(ctx,
		`WHERE status = 'OPEN' AND NOT archived
		   AND ((group_id <> '' AND group_id = ANY($1)) OR ($2 AND group_id = ''))
		 ORDER BY created_at, id`,
		nonNil(f.GroupIDs), f.NonGroup,
	)
}

// ListDuePending implements Store.
func (s *PostgresStore) ListDuePending(ctx context.Context, asOf time.Time) ([]Job, error) {
	return s.list(ctx,
		`WHERE status = 'PENDING' AND NOT archived AND job_post_start_date <= $1 ORDER BY created_at, id`,
		Day(asOf),
	)
}

// ListExpiredOpen implements Store.
func (s *PostgresStore) ListExpiredOpen(ctx context.Context, asOf time.Time) ([]Job, error) {
	return s.list(ctx,
		`WHERE status = 'OPEN' AND NOT archived
		   AND expiration_date IS NOT NULL AND expiration_date < $1
		 ORDER BY created_at, id`,
		Day(asOf),
	)
}

// BeginMatchRun implements Store.
func (s *PostgresStore) BeginMatchRun(ctx context.Context, id, token string, staleBefore time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET match_run_token = $2,
		     match_run_started_at = NOW(),
		     matches_calculation_in_progress = true,
		     version = version + 1
		 WHERE id = $1
		   AND status = 'OPEN' AND NOT archived
		   AND (match_run_token IS NULL OR match_run_started_at < $3)`,
		id, token, staleBefore,
	)
	if err != nil {
		return false, fmt.Errorf("beginMatchRun: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// FinishMatchRun implements Store.
func (s *PostgresStore) FinishMatchRun(ctx context.Context, id, token string, ok bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET match_run_token = NULL,
		     match_run_started_at = NULL,
		     matches_calculation_in_progress = CASE
		       WHEN $3 THEN false
		       ELSE status IN ('PENDING', 'OPEN')
		     END,
		     version = version + 1
		 WHERE id = $1 AND match_run_token = $2`,
		id, token, ok,
	)
	if err != nil {
		return fmt.Errorf("finishMatchRun: %w", err)
	}
	return nil
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT`+jobColumns+` FROM jobs `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("listJobs query: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("listJobs scan: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*Job, error) {
	var (
		j       Job
		status  string
		degrees []string
	)
	err := row.Scan(
		&j.ID, &j.PosterID, &j.InstitutionID, &j.GroupID, &j.EmployerID, &j.Title, &j.Description,
		&status, &j.JobPostStartDate, &j.ExpirationDate,
		&degrees, &j.Requirements.FieldsOfStudy, &j.Requirements.MinGPA, &j.Requirements.Skills,
		&j.Requirements.Keywords, &j.Requirements.ZipCodes, &j.Requirements.States,
		&j.MatchesCalculationInProgress, &j.Active, &j.Archived, &j.Version, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if j.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	for _, d := range degrees {
		j.Requirements.DegreeTypes = append(j.Requirements.DegreeTypes, candidate.DegreeType(d))
	}
	return &j, nil
}

func degreeStrings(ds []candidate.DegreeType) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, string(d))
	}
	return out
}

func nonNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
