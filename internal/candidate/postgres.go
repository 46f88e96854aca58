package candidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobmate/matching-service/internal/apperr"
)

// PostgresStore reads profiles from the candidate_profiles view maintained by
// the student-records service.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const profileColumns = `
	user_id, awards, gpa, skills, zip, city, state,
	group_ids, institution_ids, open_to_all, blacklisted_by, active`

// FetchCandidates implements Store.
func (s *PostgresStore) FetchCandidates(ctx context.Context, scope Scope) ([]Profile, error) {
	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case scope.GroupID != "":
		rows, err = s.pool.Query(ctx,
			`SELECT`+profileColumns+`
			 FROM candidate_profiles
			 WHERE active = true
			   AND $1 = ANY(group_ids)
			   AND ($2 = '' OR $2 = ANY(institution_ids))
			 ORDER BY user_id`,
			scope.GroupID, scope.InstitutionID,
		)
	case scope.OpenPool:
		rows, err = s.pool.Query(ctx,
			`SELECT`+profileColumns+`
			 FROM candidate_profiles
			 WHERE active = true
			   AND open_to_all = true
			   AND ($1 = '' OR $1 = ANY(institution_ids))
			 ORDER BY user_id`,
			scope.InstitutionID,
		)
	default:
		return nil, fmt.Errorf("fetchCandidates: empty scope")
	}
	if err != nil {
		return nil, fmt.Errorf("fetchCandidates query: %w", err)
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("fetchCandidates scan: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetchCandidates rows: %w", err)
	}
	return profiles, nil
}

// FetchOne implements Store.
func (s *PostgresStore) FetchOne(ctx context.Context, userID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+profileColumns+` FROM candidate_profiles WHERE user_id = $1`,
		userID,
	)
	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("candidate %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetchOne: %w", err)
	}
	return p, nil
}

// FetchMany implements Store.
func (s *PostgresStore) FetchMany(ctx context.Context, userIDs []string) (map[string]*Profile, error) {
	out := make(map[string]*Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT`+profileColumns+` FROM candidate_profiles WHERE user_id = ANY($1)`,
		userIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("fetchMany query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("fetchMany scan: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (*Profile, error) {
	var (
		p         Profile
		awardsRaw []byte
	)
	if err := row.Scan(
		&p.UserID, &awardsRaw, &p.GPA, &p.Skills, &p.Zip, &p.City, &p.State,
		&p.GroupIDs, &p.InstitutionIDs, &p.OpenToAll, &p.BlacklistedBy, &p.Active,
	); err != nil {
		return nil, err
	}
	if len(awardsRaw) > 0 {
		if err := json.Unmarshal(awardsRaw, &p.Awards); err != nil {
			return nil, fmt.Errorf("decode awards for %s: %w", p.UserID, err)
		}
	}
	return &p, nil
}
