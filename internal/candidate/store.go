package candidate

import "context"

// Scope narrows the candidate population for a match run.
// Exactly one of GroupID or OpenPool is expected to be set; InstitutionID
// further restricts either form when non-empty.
type Scope struct {
	GroupID       string
	InstitutionID string
	OpenPool      bool
}

// IsGroup reports whether the scope selects members of a group.
func (s Scope) IsGroup() bool { return s.GroupID != "" }

// Contains reports whether p falls inside the scope. Stores use it to keep
// their filtering consistent with the orchestrator's pruning.
func (s Scope) Contains(p *Profile) bool {
	if !p.Active {
		return false
	}
	if s.InstitutionID != "" && !contains(p.InstitutionIDs, s.InstitutionID) {
		return false
	}
	if s.GroupID != "" {
		return p.InGroup(s.GroupID)
	}
	if s.OpenPool {
		return p.OpenToAll
	}
	return false
}

// Store is the read interface onto student records.
type Store interface {
	// FetchCandidates returns every active profile inside scope.
	FetchCandidates(ctx context.Context, scope Scope) ([]Profile, error)
	// FetchOne returns a single profile or an apperr.ErrNotFound wrapped error.
	FetchOne(ctx context.Context, userID string) (*Profile, error)
	// FetchMany returns the profiles found among userIDs, keyed by user id.
	// Unknown ids are silently absent from the result.
	FetchMany(ctx context.Context, userIDs []string) (map[string]*Profile, error)
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
