package candidate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/matching-service/internal/candidate"
)

func TestParseDegreeType_Aliases(t *testing.T) {
	cases := map[string]candidate.DegreeType{
		"BACHELOR":    candidate.DegreeBachelor,
		"b.s.":        candidate.DegreeBachelor,
		"Bachelor's":  candidate.DegreeBachelor,
		"M.B.A.":      candidate.DegreeMaster,
		"PhD":         candidate.DegreeDoctorate,
		"high-school": candidate.DegreeHighSchool,
		" associate ": candidate.DegreeAssociate,
	}
	for in, want := range cases {
		got, err := candidate.ParseDegreeType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseDegreeType_Unknown(t *testing.T) {
	for _, s := range []string{"", "bootcamp", "BACHELORX"} {
		_, err := candidate.ParseDegreeType(s)
		assert.Error(t, err, s)
	}
}

func TestNormalizeTerm(t *testing.T) {
	assert.Equal(t, "python", candidate.NormalizeTerm("  Python "))
	assert.Equal(t, "machine learning", candidate.NormalizeTerm("Machine\tLearning"))
	// NFKC folds full-width letters.
	assert.Equal(t, "go", candidate.NormalizeTerm("ＧＯ"))
	assert.Equal(t, "strasse", candidate.NormalizeTerm("STRASSE"))
}

func TestTermSet_EmptyMeansNil(t *testing.T) {
	assert.Nil(t, candidate.TermSet(nil, []string{"", "  "}))

	set := candidate.TermSet([]string{"Go", "go", "SQL"}, []string{"Docker"})
	require.NotNil(t, set)
	assert.Equal(t, 3, set.Cardinality())
	assert.True(t, set.Contains("go", "sql", "docker"))
}

func TestProfile_Validate(t *testing.T) {
	gpa := 3.4
	bad := 6.1

	ok := candidate.Profile{UserID: "u1", GPA: &gpa}
	assert.NoError(t, ok.Validate())

	assert.Error(t, (&candidate.Profile{}).Validate())
	assert.Error(t, (&candidate.Profile{UserID: "u2", GPA: &bad}).Validate())
	assert.Error(t, (&candidate.Profile{
		UserID: "u3",
		Awards: []candidate.Award{{DegreeType: candidate.DegreeBachelor, GPA: &bad}},
	}).Validate())
}

func TestScope_Contains(t *testing.T) {
	member := &candidate.Profile{UserID: "u1", Active: true, GroupIDs: []string{"g1"}, InstitutionIDs: []string{"i1"}}
	open := &candidate.Profile{UserID: "u2", Active: true, OpenToAll: true}
	inactive := &candidate.Profile{UserID: "u3", Active: false, GroupIDs: []string{"g1"}, OpenToAll: true}

	group := candidate.Scope{GroupID: "g1"}
	assert.True(t, group.Contains(member))
	assert.False(t, group.Contains(open))
	assert.False(t, group.Contains(inactive))

	pool := candidate.Scope{OpenPool: true}
	assert.True(t, pool.Contains(open))
	assert.False(t, pool.Contains(member))
	assert.False(t, pool.Contains(inactive))

	scoped := candidate.Scope{GroupID: "g1", InstitutionID: "i2"}
	assert.False(t, scoped.Contains(member))

	assert.False(t, candidate.Scope{}.Contains(member))
}

func TestProfile_IsBlacklistedBy(t *testing.T) {
	p := &candidate.Profile{UserID: "u1", BlacklistedBy: []string{"emp-1"}}
	assert.True(t, p.IsBlacklistedBy("emp-1"))
	assert.False(t, p.IsBlacklistedBy("emp-2"))
	assert.False(t, p.IsBlacklistedBy(""))
}
