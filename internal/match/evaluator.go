package match

import (
	"math"
	"sort"

	"jobmate/matching-service/internal/candidate"
)

// Reason names a filter a candidate failed.
type Reason string

const (
	ReasonDegree         Reason = "degree"
	ReasonGPA            Reason = "gpa"
	ReasonSkills         Reason = "skills"
	ReasonLocation       Reason = "location"
	ReasonBlacklisted    Reason = "blacklisted"
	ReasonAlreadyMatched Reason = "already_matched"
	// ReasonOutOfScope is only reported by Orchestrator.Explain; Evaluate
	// assumes its caller already selected the candidate from the job's scope.
	ReasonOutOfScope Reason = "out_of_scope"
)

// Result is the outcome of evaluating one candidate against one job.
// Unmet lists every failing filter, in rule order, even when the first
// failure already decided the outcome.
type Result struct {
	UserID        string   `json:"userId"`
	JobID         string   `json:"jobId"`
	Qualifies     bool     `json:"qualifies"`
	Unmet         []Reason `json:"unmet"`
	Score         float64  `json:"score"`
	MatchedSkills []string `json:"matchedSkills"`
}

// Failed reports whether r failed the given filter.
func (r *Result) Failed(reason Reason) bool {
	for _, u := range r.Unmet {
		if u == reason {
			return true
		}
	}
	return false
}

// StillQualifies reports whether an already matched candidate passes every
// requirement and exclusion, so the existing row stays and is refreshed.
func (r *Result) StillQualifies() bool {
	return len(r.Unmet) == 1 && r.Unmet[0] == ReasonAlreadyMatched
}

// Evaluate applies the degree, GPA, skill, location and exclusion filters.
// existing is the candidate's current match for the job, if any.
// It only fails for profiles that cannot be reasoned about.
func Evaluate(p *candidate.Profile, c *Criteria, existing *Match) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{UserID: p.UserID, JobID: c.JobID, Unmet: []Reason{}}
	var axes, earned float64

	// 1. degree / field of study
	if c.Degree != nil {
		axes++
		if hasQualifyingAward(p, c.Degree) {
			earned++
		} else {
			res.Unmet = append(res.Unmet, ReasonDegree)
		}
	}

	// 2. GPA
	if c.MinGPA != nil {
		axes++
		if gpa, ok := bestGPA(p, c.Degree); ok && gpa >= *c.MinGPA {
			earned++
		} else {
			res.Unmet = append(res.Unmet, ReasonGPA)
		}
	}

	// 3. skills / keywords
	if c.Skills != nil {
		axes++
		have := candidate.TermSet(p.Skills)
		if have != nil {
			res.MatchedSkills = c.Skills.Intersect(have).ToSlice()
			sort.Strings(res.MatchedSkills)
		}
		if len(res.MatchedSkills) > 0 {
			earned += float64(len(res.MatchedSkills)) / float64(c.Skills.Cardinality())
		} else {
			res.Unmet = append(res.Unmet, ReasonSkills)
		}
	}

	// 4. location
	if c.Location != nil {
		axes++
		if inLocation(p, c.Location) {
			earned++
		} else {
			res.Unmet = append(res.Unmet, ReasonLocation)
		}
	}

	// 5. exclusions
	if p.IsBlacklistedBy(c.EmployerID) {
		res.Unmet = append(res.Unmet, ReasonBlacklisted)
	}
	if existing != nil && existing.Status != StatusWithdrawn {
		res.Unmet = append(res.Unmet, ReasonAlreadyMatched)
	}

	res.Qualifies = len(res.Unmet) == 0
	if axes == 0 {
		res.Score = 100
	} else {
		res.Score = math.Round(earned/axes*1000) / 10
	}
	if res.MatchedSkills == nil {
		res.MatchedSkills = []string{}
	}
	return res, nil
}

func awardQualifies(a *candidate.Award, req *DegreeRequirement) bool {
	if req.Types != nil && !req.Types.Contains(a.DegreeType) {
		return false
	}
	if req.Fields != nil && !req.Fields.Contains(candidate.NormalizeTerm(a.FieldOfStudy)) {
		return false
	}
	return true
}

func hasQualifyingAward(p *candidate.Profile, req *DegreeRequirement) bool {
	for i := range p.Awards {
		if awardQualifies(&p.Awards[i], req) {
			return true
		}
	}
	return false
}

// bestGPA is the highest of the cumulative GPA and the GPAs of awards that
// satisfy the degree requirement (any award when there is none).
func bestGPA(p *candidate.Profile, req *DegreeRequirement) (float64, bool) {
	best, found := 0.0, false
	if p.GPA != nil {
		best, found = *p.GPA, true
	}
	for i := range p.Awards {
		a := &p.Awards[i]
		if a.GPA == nil {
			continue
		}
		if req != nil && !awardQualifies(a, req) {
			continue
		}
		if !found || *a.GPA > best {
			best, found = *a.GPA, true
		}
	}
	return best, found
}

func inLocation(p *candidate.Profile, req *LocationRequirement) bool {
	if req.Zips != nil {
		if z := NormalizeZip(p.Zip); z != "" && req.Zips.Contains(z) {
			return true
		}
	}
	if req.States != nil {
		if s := candidate.NormalizeTerm(p.State); s != "" && req.States.Contains(s) {
			return true
		}
	}
	return false
}
