package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
)

// Candidates implements candidate.Store. Put stands in for the
// student-records service that owns profiles in production.
type Candidates struct {
	mu       sync.RWMutex
	profiles map[string]candidate.Profile
}

// NewCandidates returns a store seeded with profiles.
func NewCandidates(profiles ...candidate.Profile) *Candidates {
	s := &Candidates{profiles: make(map[string]candidate.Profile)}
	for _, p := range profiles {
		s.Put(p)
	}
	return s
}

// Put inserts or replaces a profile.
func (s *Candidates) Put(p candidate.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = cloneProfile(p)
}

// FetchCandidates implements candidate.Store.
func (s *Candidates) FetchCandidates(_ context.Context, scope candidate.Scope) ([]candidate.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]candidate.Profile, 0)
	for _, p := range s.profiles {
		if scope.Contains(&p) {
			out = append(out, cloneProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// FetchOne implements candidate.Store.
func (s *Candidates) FetchOne(_ context.Context, userID string) (*candidate.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, apperr.NotFoundf("candidate %s", userID)
	}
	c := cloneProfile(p)
	return &c, nil
}

// FetchMany implements candidate.Store.
func (s *Candidates) FetchMany(_ context.Context, userIDs []string) (map[string]*candidate.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*candidate.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			c := cloneProfile(p)
			out[id] = &c
		}
	}
	return out, nil
}

func cloneProfile(p candidate.Profile) candidate.Profile {
	p.Awards = slices.Clone(p.Awards)
	p.Skills = slices.Clone(p.Skills)
	p.GroupIDs = slices.Clone(p.GroupIDs)
	p.InstitutionIDs = slices.Clone(p.InstitutionIDs)
	p.BlacklistedBy = slices.Clone(p.BlacklistedBy)
	return p
}
