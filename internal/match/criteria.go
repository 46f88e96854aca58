package match

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"jobmate/matching-service/internal/candidate"
	"jobmate/matching-service/internal/job"
)

// Criteria is the requirement predicate extracted from a job. Every filter
// is optional: a nil field means the axis does not constrain candidates.
// Criteria are rebuilt from the job on every run and never persisted.
type Criteria struct {
	JobID      string
	EmployerID string

	Degree   *DegreeRequirement
	MinGPA   *float64
	Skills   mapset.Set[string]
	Location *LocationRequirement
}

// DegreeRequirement is satisfied by a single award whose type is in Types
// and whose field of study is in Fields. A nil set accepts any value.
type DegreeRequirement struct {
	Types  mapset.Set[candidate.DegreeType]
	Fields mapset.Set[string]
}

// LocationRequirement is satisfied when the candidate's zip is in Zips or
// their state is in States.
type LocationRequirement struct {
	Zips   mapset.Set[string]
	States mapset.Set[string]
}

// CriteriaFromJob builds the predicate for j.
func CriteriaFromJob(j *job.Job) *Criteria {
	r := j.Requirements
	c := &Criteria{
		JobID:      j.ID,
		EmployerID: j.OwningEmployer(),
		MinGPA:     r.MinGPA,
		Skills:     candidate.TermSet(r.Skills, r.Keywords),
	}

	var types mapset.Set[candidate.DegreeType]
	if len(r.DegreeTypes) > 0 {
		types = mapset.NewThreadUnsafeSet(r.DegreeTypes...)
	}
	fields := candidate.TermSet(r.FieldsOfStudy)
	if types != nil || fields != nil {
		c.Degree = &DegreeRequirement{Types: types, Fields: fields}
	}

	zips := zipSet(r.ZipCodes)
	states := candidate.TermSet(r.States)
	if zips != nil || states != nil {
		c.Location = &LocationRequirement{Zips: zips, States: states}
	}
	return c
}

// NormalizeZip reduces a ZIP or ZIP+4 code to its five-digit prefix.
func NormalizeZip(z string) string {
	z = strings.TrimSpace(z)
	if i := strings.IndexByte(z, '-'); i >= 0 {
		z = z[:i]
	}
	if len(z) > 5 {
		z = z[:5]
	}
	return z
}

func zipSet(zs []string) mapset.Set[string] {
	var set mapset.Set[string]
	for _, z := range zs {
		n := NormalizeZip(z)
		if n == "" {
			continue
		}
		if set == nil {
			set = mapset.NewThreadUnsafeSet[string]()
		}
		set.Add(n)
	}
	return set
}
