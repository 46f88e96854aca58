package memstore

import (
	"encoding/json"
	"fmt"
	"os"

	"jobmate/matching-service/internal/candidate"
)

// LoadCandidates reads a JSON array of profiles into a store. It seeds the
// in-memory mode, where no student-records service feeds profiles. An empty
// path yields an empty store.
func LoadCandidates(path string) (*Candidates, error) {
	if path == "" {
		return NewCandidates(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidates file: %w", err)
	}
	var profiles []candidate.Profile
	if err := json.Unmarshal(raw, &profiles); err != nil {
		return nil, fmt.Errorf("decode candidates file %s: %w", path, err)
	}
	for i := range profiles {
		if err := profiles[i].Validate(); err != nil {
			return nil, fmt.Errorf("candidates file %s: %w", path, err)
		}
	}
	return NewCandidates(profiles...), nil
}
