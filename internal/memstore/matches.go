package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobmate/matching-service/internal/match"
)

type pair struct{ jobID, userID string }

// Matches implements match.Store with the same (job, user) uniqueness the
// job_matches table enforces.
type Matches struct {
	mu     sync.Mutex
	rows   map[string]*match.Match
	byPair map[pair]string
	now    func() time.Time
}

// NewMatches returns an empty store.
func NewMatches() *Matches {
	return &Matches{
		rows:   make(map[string]*match.Match),
		byPair: make(map[pair]string),
		now:    time.Now,
	}
}

// Upsert implements match.Store.
func (s *Matches) Upsert(_ context.Context, ms []match.Match) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	created := 0
	for _, m := range ms {
		now := s.now()
		key := pair{m.JobID, m.UserID}
		if id, ok := s.byPair[key]; ok {
			row := s.rows[id]
			row.Score = m.Score
			row.MatchedSkills = slices.Clone(m.MatchedSkills)
			if row.Status == match.StatusWithdrawn {
				row.Status = match.StatusMatched
			}
			row.UpdatedAt = now
			continue
		}
		row := &match.Match{
			ID:            uuid.NewString(),
			JobID:         m.JobID,
			UserID:        m.UserID,
			Score:         m.Score,
			MatchedSkills: slices.Clone(m.MatchedSkills),
			Status:        match.StatusMatched,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if row.MatchedSkills == nil {
			row.MatchedSkills = []string{}
		}
		s.rows[row.ID] = row
		s.byPair[key] = row.ID
		created++
	}
	return created, nil
}

// ListForJob implements match.Store.
func (s *Matches) ListForJob(_ context.Context, jobID string) ([]match.Match, error) {
	return s.list(func(m *match.Match) bool { return m.JobID == jobID }), nil
}

// ListForCandidate implements match.Store.
func (s *Matches) ListForCandidate(_ context.Context, userID string) ([]match.Match, error) {
	return s.list(func(m *match.Match) bool { return m.UserID == userID }), nil
}

// GetMany implements match.Store.
func (s *Matches) GetMany(_ context.Context, ids []string) ([]match.Match, error) {
	return s.list(func(m *match.Match) bool { return slices.Contains(ids, m.ID) }), nil
}

// SetStatus implements match.Store.
func (s *Matches) SetStatus(_ context.Context, ids []string, status match.Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if row, ok := s.rows[id]; ok && row.Status != status {
			row.Status = status
			row.UpdatedAt = s.now()
			n++
		}
	}
	return n, nil
}

// Delete implements match.Store.
func (s *Matches) Delete(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			delete(s.byPair, pair{row.JobID, row.UserID})
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// DeleteForJob implements match.Store.
func (s *Matches) DeleteForJob(_ context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, row := range s.rows {
		if row.JobID == jobID {
			delete(s.byPair, pair{row.JobID, row.UserID})
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *Matches) list(keep func(*match.Match) bool) []match.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]match.Match, 0)
	for _, m := range s.rows {
		if keep(m) {
			c := *m
			c.MatchedSkills = slices.Clone(m.MatchedSkills)
			out = append(out, c)
		}
	}
	match.SortByCreation(out)
	return out
}
