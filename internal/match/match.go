// Package match decides which candidates qualify for which jobs, persists the
// resulting JobMatch records and serves filtered, paginated views of them.
package match

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Status values mirror the match_status column in PostgreSQL.
// The evaluator only ever writes MATCHED; the other values belong to the
// offer and application flows.
type Status string

const (
	StatusMatched   Status = "MATCHED"
	StatusOffered   Status = "OFFERED"
	StatusApplied   Status = "APPLIED"
	StatusWithdrawn Status = "WITHDRAWN"
)

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusMatched, StatusOffered, StatusApplied, StatusWithdrawn:
		return st, nil
	}
	return "", fmt.Errorf("unknown match status %q", s)
}

// Match is the persisted qualification of one candidate for one job.
// At most one Match exists per (JobID, UserID).
type Match struct {
	ID            string    `json:"id"`
	JobID         string    `json:"jobId"`
	UserID        string    `json:"userId"`
	Score         float64   `json:"score"`
	MatchedSkills []string  `json:"matchedSkills"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists matches. Upsert is the only insert path and must converge
// repeated evaluations of the same pair to one row.
type Store interface {
	// Upsert inserts new pairs as MATCHED and refreshes score and skills of
	// existing pairs, reviving WITHDRAWN rows. CreatedAt and ID of existing
	// rows never change. It returns how many rows were newly inserted.
	Upsert(ctx context.Context, ms []Match) (int, error)

	// ListForJob returns every match of a job ordered by (CreatedAt, ID).
	ListForJob(ctx context.Context, jobID string) ([]Match, error)
	// ListForCandidate returns every match of a candidate ordered by (CreatedAt, ID).
	ListForCandidate(ctx context.Context, userID string) ([]Match, error)
	// GetMany returns the matches found among ids.
	GetMany(ctx context.Context, ids []string) ([]Match, error)

	// SetStatus moves the given rows to status and returns how many changed.
	SetStatus(ctx context.Context, ids []string, status Status) (int, error)
	// Delete removes the given rows.
	Delete(ctx context.Context, ids []string) (int, error)
	// DeleteForJob removes every match of a job.
	DeleteForJob(ctx context.Context, jobID string) (int, error)
}

// SortByCreation orders matches by the immutable pagination key
// (CreatedAt, ID). Stores that cannot sort in the query use it.
func SortByCreation(ms []Match) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
}
