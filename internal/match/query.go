package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/job"
)

// DefaultPageSize applies when a request does not name a size.
const DefaultPageSize = 20

// PageRequest is a zero-based offset page.
type PageRequest struct {
	Page int
	Size int
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Page          int `json:"page"`
	Size          int `json:"size"`
}

// Filters narrow stored matches at query time without re-running the evaluator.
type Filters struct {
	// Skills keeps rows where every term is a case-insensitive substring of
	// at least one skill (the candidate's skills on job views, the job's
	// skills and keywords on candidate views).
	Skills []string
	// MinGPA keeps candidates whose best GPA reaches it. Job views only.
	MinGPA *float64
	// Statuses keeps rows in any of these statuses. Empty means every status
	// except WITHDRAWN.
	Statuses []Status
}

// CandidateMatchView is a qualified candidate as shown to the job owner.
type CandidateMatchView struct {
	MatchID       string    `json:"matchId"`
	UserID        string    `json:"userId"`
	Status        Status    `json:"status"`
	Score         float64   `json:"score"`
	MatchedSkills []string  `json:"matchedSkills"`
	GPA           *float64  `json:"gpa,omitempty"`
	Skills        []string  `json:"skills"`
	City          string    `json:"city"`
	State         string    `json:"state"`
	Zip           string    `json:"zip"`
	CreatedAt     time.Time `json:"createdAt"`
}

// JobMatchView is a matched job as shown to the candidate.
type JobMatchView struct {
	MatchID        string     `json:"matchId"`
	JobID          string     `json:"jobId"`
	Title          string     `json:"title"`
	JobStatus      job.Status `json:"jobStatus"`
	ExpirationDate *time.Time `json:"expirationDate,omitempty"`
	Status         Status     `json:"status"`
	Score          float64    `json:"score"`
	MatchedSkills  []string   `json:"matchedSkills"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// QueryService serves read-only views of stored matches.
type QueryService struct {
	jobs        job.Store
	candidates  candidate.Store
	matches     Store
	counts      CountCache
	authz       job.Authorizer
	maxPageSize int
	log         *zap.Logger
}

// NewQueryService returns a QueryService. Page sizes above maxPageSize are clamped.
func NewQueryService(jobs job.Store, candidates candidate.Store, matches Store, counts CountCache, authz job.Authorizer, maxPageSize int, log *zap.Logger) *QueryService {
	return &QueryService{
		jobs:        jobs,
		candidates:  candidates,
		matches:     matches,
		counts:      counts,
		authz:       authz,
		maxPageSize: maxPageSize,
		log:         log,
	}
}

// QualifiedCandidates returns a page of the job's matched candidates ordered
// by (match creation time, match id). Candidates blacklisted by the owning
// employer are hidden even when a row exists.
func (s *QueryService) QualifiedCandidates(ctx context.Context, actor job.Actor, jobID string, f Filters, pr PageRequest) (*Page[CandidateMatchView], error) {
	return s.qualified(ctx, actor, jobID, f, pr, false)
}

// GroupQualifiedCandidates is QualifiedCandidates restricted to group jobs.
func (s *QueryService) GroupQualifiedCandidates(ctx context.Context, actor job.Actor, jobID string, f Filters, pr PageRequest) (*Page[CandidateMatchView], error) {
	return s.qualified(ctx, actor, jobID, f, pr, true)
}

func (s *QueryService) qualified(ctx context.Context, actor job.Actor, jobID string, f Filters, pr PageRequest, groupOnly bool) (*Page[CandidateMatchView], error) {
	if jobID == "" {
		return nil, apperr.Invalid("jobId is required")
	}
	pr, err := s.normalize(pr)
	if err != nil {
		return nil, err
	}
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := job.CheckOwnership(ctx, s.authz, actor, j); err != nil {
		return nil, err
	}
	if groupOnly && !j.IsGroup() {
		return nil, apperr.Invalid("job %s is not a group job", jobID)
	}

	ms, err := s.matches.ListForJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("qualifiedCandidates: %w", err)
	}
	ids := make([]string, len(ms))
	for i := range ms {
		ids[i] = ms[i].UserID
	}
	profiles, err := s.candidates.FetchMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("qualifiedCandidates: %w", err)
	}

	statuses := statusFilter(f.Statuses)
	terms := foldTerms(f.Skills)
	employer := j.OwningEmployer()

	views := make([]CandidateMatchView, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		p, ok := profiles[m.UserID]
		if !ok || p.IsBlacklistedBy(employer) || !statuses(m.Status) {
			continue
		}
		if !containsAllTerms(p.Skills, terms) {
			continue
		}
		gpa, hasGPA := bestGPA(p, nil)
		if f.MinGPA != nil && (!hasGPA || gpa < *f.MinGPA) {
			continue
		}
		v := CandidateMatchView{
			MatchID:       m.ID,
			UserID:        m.UserID,
			Status:        m.Status,
			Score:         m.Score,
			MatchedSkills: m.MatchedSkills,
			Skills:        p.Skills,
			City:          p.City,
			State:         p.State,
			Zip:           p.Zip,
			CreatedAt:     m.CreatedAt,
		}
		if hasGPA {
			v.GPA = &gpa
		}
		views = append(views, v)
	}
	return paginate(views, pr), nil
}

// MatchesForCandidate returns a page of the candidate's matched jobs ordered
// by (match creation time, match id).
func (s *QueryService) MatchesForCandidate(ctx context.Context, userID string, f Filters, pr PageRequest) (*Page[JobMatchView], error) {
	if userID == "" {
		return nil, apperr.Invalid("userId is required")
	}
	pr, err := s.normalize(pr)
	if err != nil {
		return nil, err
	}
	if _, err := s.candidates.FetchOne(ctx, userID); err != nil {
		return nil, err
	}

	ms, err := s.matches.ListForCandidate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("matchesForCandidate: %w", err)
	}
	ids := make([]string, len(ms))
	for i := range ms {
		ids[i] = ms[i].JobID
	}
	jobs, err := s.jobs.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("matchesForCandidate: %w", err)
	}

	statuses := statusFilter(f.Statuses)
	terms := foldTerms(f.Skills)

	views := make([]JobMatchView, 0, len(ms))
	for i := range ms {
		m := &ms[i]
		j, ok := jobs[m.JobID]
		if !ok || j.Archived || !statuses(m.Status) {
			continue
		}
		if len(terms) > 0 {
			jobTerms := append(append([]string{}, j.Requirements.Skills...), j.Requirements.Keywords...)
			if !containsAllTerms(jobTerms, terms) {
				continue
			}
		}
		views = append(views, JobMatchView{
			MatchID:        m.ID,
			JobID:          j.ID,
			Title:          j.Title,
			JobStatus:      j.Status,
			ExpirationDate: j.ExpirationDate,
			Status:         m.Status,
			Score:          m.Score,
			MatchedSkills:  m.MatchedSkills,
			CreatedAt:      m.CreatedAt,
		})
	}
	return paginate(views, pr), nil
}

// CountForCandidate tallies the candidate's matches by status. Results are
// cached until the next write that touches the candidate.
func (s *QueryService) CountForCandidate(ctx context.Context, userID string) (Counts, error) {
	if userID == "" {
		return Counts{}, apperr.Invalid("userId is required")
	}
	cached, gen, ok, cacheErr := s.counts.Get(ctx, userID)
	if cacheErr != nil {
		s.log.Warn("count cache read failed", zap.String("userId", userID), zap.Error(cacheErr))
	} else if ok {
		return cached, nil
	}

	if _, err := s.candidates.FetchOne(ctx, userID); err != nil {
		return Counts{}, err
	}
	ms, err := s.matches.ListForCandidate(ctx, userID)
	if err != nil {
		return Counts{}, fmt.Errorf("countForCandidate: %w", err)
	}
	var c Counts
	for _, m := range ms {
		c.add(m.Status)
	}
	if cacheErr == nil {
		if err := s.counts.Set(ctx, userID, gen, c); err != nil {
			s.log.Warn("count cache write failed", zap.String("userId", userID), zap.Error(err))
		}
	}
	return c, nil
}

func (s *QueryService) normalize(pr PageRequest) (PageRequest, error) {
	if pr.Page < 0 {
		return pr, apperr.Invalid("page must not be negative")
	}
	if pr.Size < 0 {
		return pr, apperr.Invalid("size must not be negative")
	}
	if pr.Size == 0 {
		pr.Size = DefaultPageSize
	}
	if s.maxPageSize > 0 && pr.Size > s.maxPageSize {
		pr.Size = s.maxPageSize
	}
	return pr, nil
}

func paginate[T any](items []T, pr PageRequest) *Page[T] {
	total := len(items)
	pages := (total + pr.Size - 1) / pr.Size
	// Past the last page the product below could overflow.
	from := total
	if pr.Page < pages {
		from = pr.Page * pr.Size
	}
	to := min(from+pr.Size, total)
	return &Page[T]{
		Content:       items[from:to],
		TotalElements: total,
		TotalPages:    pages,
		Page:          pr.Page,
		Size:          pr.Size,
	}
}

func statusFilter(statuses []Status) func(Status) bool {
	if len(statuses) == 0 {
		return func(s Status) bool { return s != StatusWithdrawn }
	}
	return func(s Status) bool {
		for _, want := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}
}

func foldTerms(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		if n := candidate.NormalizeTerm(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// containsAllTerms reports whether every term is a substring of some
// normalised entry of have.
func containsAllTerms(have []string, terms []string) bool {
	if len(terms) == 0 {
		return true
	}
	folded := foldTerms(have)
	for _, t := range terms {
		found := false
		for _, h := range folded {
			if strings.Contains(h, t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
