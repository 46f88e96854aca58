// Package candidate exposes the read-only view of student records used by the
// matching engine. Profiles are owned by the student-records subsystem; this
// package only reads them.
package candidate

import (
	"fmt"
	"strings"
	"time"
)

// DegreeType values mirror the degree_type column written by transcript ingestion.
type DegreeType string

const (
	DegreeHighSchool  DegreeType = "HIGH_SCHOOL"
	DegreeCertificate DegreeType = "CERTIFICATE"
	DegreeAssociate   DegreeType = "ASSOCIATE"
	DegreeBachelor    DegreeType = "BACHELOR"
	DegreeMaster      DegreeType = "MASTER"
	DegreeDoctorate   DegreeType = "DOCTORATE"
)

// degreeAliases maps the free-form spellings seen on transcripts and job
// forms onto the canonical DegreeType. Keys are upper-cased with dots removed.
var degreeAliases = map[string]DegreeType{
	"HIGH_SCHOOL": DegreeHighSchool, "HIGH SCHOOL": DegreeHighSchool, "HS": DegreeHighSchool, "GED": DegreeHighSchool,
	"CERTIFICATE": DegreeCertificate, "CERT": DegreeCertificate, "DIPLOMA": DegreeCertificate,
	"ASSOCIATE": DegreeAssociate, "ASSOCIATES": DegreeAssociate, "AA": DegreeAssociate, "AS": DegreeAssociate,
	"BACHELOR": DegreeBachelor, "BACHELORS": DegreeBachelor, "BA": DegreeBachelor, "BS": DegreeBachelor, "BSC": DegreeBachelor,
	"MASTER": DegreeMaster, "MASTERS": DegreeMaster, "MA": DegreeMaster, "MS": DegreeMaster, "MSC": DegreeMaster, "MBA": DegreeMaster,
	"DOCTORATE": DegreeDoctorate, "PHD": DegreeDoctorate, "EDD": DegreeDoctorate, "MD": DegreeDoctorate, "JD": DegreeDoctorate,
}

// ParseDegreeType converts a raw degree label to a DegreeType, returning an
// error for unknown values. Matching ignores case, dots and apostrophes.
func ParseDegreeType(s string) (DegreeType, error) {
	key := strings.ToUpper(strings.TrimSpace(s))
	key = strings.NewReplacer(".", "", "'", "", "-", " ").Replace(key)
	if dt, ok := degreeAliases[key]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown degree type %q", s)
}

// Award is one degree or credential held by a candidate.
type Award struct {
	DegreeType   DegreeType `json:"degreeType"`
	FieldOfStudy string     `json:"fieldOfStudy"`
	GPA          *float64   `json:"gpa,omitempty"`
	AwardedAt    *time.Time `json:"awardedAt,omitempty"`
}

// Profile is the qualification-relevant view of a student.
type Profile struct {
	UserID         string   `json:"userId"`
	Awards         []Award  `json:"awards"`
	GPA            *float64 `json:"gpa,omitempty"` // cumulative GPA from the latest transcript
	Skills         []string `json:"skills"`
	Zip            string   `json:"zip"`
	City           string   `json:"city"`
	State          string   `json:"state"`
	GroupIDs       []string `json:"groupIds"`
	InstitutionIDs []string `json:"institutionIds"`
	OpenToAll      bool     `json:"openToAll"`
	BlacklistedBy  []string `json:"blacklistedBy"` // employer ids
	Active         bool     `json:"active"`
}

// MaxGPA is the upper bound accepted on any GPA value.
const MaxGPA = 5.0

// Validate rejects profiles the evaluator cannot reason about.
func (p *Profile) Validate() error {
	if p.UserID == "" {
		return fmt.Errorf("profile has no user id")
	}
	if p.GPA != nil && (*p.GPA < 0 || *p.GPA > MaxGPA) {
		return fmt.Errorf("profile %s: gpa %.2f out of range", p.UserID, *p.GPA)
	}
	for _, a := range p.Awards {
		if a.GPA != nil && (*a.GPA < 0 || *a.GPA > MaxGPA) {
			return fmt.Errorf("profile %s: award gpa %.2f out of range", p.UserID, *a.GPA)
		}
	}
	return nil
}

// IsBlacklistedBy returns true when employerID has blacklisted this candidate.
func (p *Profile) IsBlacklistedBy(employerID string) bool {
	if employerID == "" {
		return false
	}
	for _, id := range p.BlacklistedBy {
		if id == employerID {
			return true
		}
	}
	return false
}

// InGroup returns true when the candidate is affiliated with groupID.
func (p *Profile) InGroup(groupID string) bool {
	for _, id := range p.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}
