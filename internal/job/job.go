package job

import (
	"time"

	"jobmate/matching-service/internal/apperr"
	"jobmate/matching-service/internal/candidate"
)

// Requirements are the structured qualification fields of a posting.
// A nil or empty field places no constraint on candidates.
type Requirements struct {
	DegreeTypes   []candidate.DegreeType `json:"degreeTypes"`
	FieldsOfStudy []string               `json:"fieldsOfStudy"`
	MinGPA        *float64               `json:"minGpa,omitempty"`
	Skills        []string               `json:"skills"`
	Keywords      []string               `json:"keywords"`
	ZipCodes      []string               `json:"zipCodes"`
	States        []string               `json:"states"`
}

// Job is a posting by an institution, a group or an employer.
type Job struct {
	ID            string `json:"id"`
	PosterID      string `json:"posterId"`
	InstitutionID string `json:"institutionId"`
	GroupID       string `json:"groupId,omitempty"`
	EmployerID    string `json:"employerId"`
	Title         string `json:"title"`
	Description   string `json:"description"`

	Status           Status     `json:"status"`
	JobPostStartDate time.Time  `json:"jobPostStartDate"`
	ExpirationDate   *time.Time `json:"expirationDate,omitempty"`

	Requirements Requirements `json:"requirements"`

	MatchesCalculationInProgress bool `json:"matchesCalculationInProgress"`
	Active                       bool `json:"active"`
	Archived                     bool `json:"archived"`

	// Version guards read-modify-write cycles; it changes on every write.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsGroup reports whether the job is scoped to members of a group.
func (j *Job) IsGroup() bool { return j.GroupID != "" }

// OwningEmployer is the id checked against candidate blacklists.
func (j *Job) OwningEmployer() string {
	if j.EmployerID != "" {
		return j.EmployerID
	}
	return j.PosterID
}

// CandidateScope returns the population a match run for this job evaluates.
func (j *Job) CandidateScope() candidate.Scope {
	if j.IsGroup() {
		return candidate.Scope{GroupID: j.GroupID}
	}
	return candidate.Scope{OpenPool: true}
}

// Draft carries the caller-editable fields of a job on create and update.
type Draft struct {
	Title            string
	Description      string
	InstitutionID    string
	GroupID          string
	EmployerID       string
	JobPostStartDate time.Time
	ExpirationDate   *time.Time
	Requirements     Requirements
}

func (d *Draft) validate(group bool) error {
	if d.Title == "" {
		return apperr.Invalid("title is required")
	}
	if group && d.GroupID == "" {
		return apperr.Invalid("groupId is required for a group job")
	}
	if !group && d.GroupID != "" {
		return apperr.Invalid("groupId must be empty for a non-group job")
	}
	if d.JobPostStartDate.IsZero() {
		return apperr.Invalid("jobPostStartDate is required")
	}
	if d.ExpirationDate != nil && Day(*d.ExpirationDate).Before(Day(d.JobPostStartDate)) {
		return apperr.Invalid("expirationDate must not precede jobPostStartDate")
	}
	if g := d.Requirements.MinGPA; g != nil && (*g < 0 || *g > candidate.MaxGPA) {
		return apperr.Invalid("minGpa must be between 0 and %.1f", candidate.MaxGPA)
	}
	return nil
}

func (d *Draft) applyTo(j *Job) {
	j.Title = d.Title
	j.Description = d.Description
	j.InstitutionID = d.InstitutionID
	j.EmployerID = d.EmployerID
	j.JobPostStartDate = Day(d.JobPostStartDate)
	if d.ExpirationDate != nil {
		exp := Day(*d.ExpirationDate)
		j.ExpirationDate = &exp
	} else {
		j.ExpirationDate = nil
	}
	j.Requirements = d.Requirements
}

// Day truncates t to midnight UTC. All scheduling comparisons are by calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
