package httpapi

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const maxBodyBytes = 1 << 20

var jobBodySchema = jsonschema.MustCompileString("job.json", `{
  "type": "object",
  "required": ["title", "jobPostStartDate"],
  "properties": {
    "id":               {"type": "string"},
    "title":            {"type": "string", "minLength": 1, "maxLength": 200},
    "description":      {"type": "string"},
    "institutionId":    {"type": "string"},
    "groupId":          {"type": "string"},
    "employerId":       {"type": "string"},
    "jobPostStartDate": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "expirationDate":   {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "degreeTypes":      {"type": "array", "items": {"type": "string"}},
    "fieldsOfStudy":    {"type": "array", "items": {"type": "string"}},
    "minGpa":           {"type": ["number", "null"], "minimum": 0, "maximum": 5},
    "skills":           {"type": "array", "items": {"type": "string"}},
    "keywords":         {"type": "array", "items": {"type": "string"}},
    "zipCodes":         {"type": "array", "items": {"type": "string"}},
    "states":           {"type": "array", "items": {"type": "string"}}
  }
}`)

var offerBodySchema = jsonschema.MustCompileString("offers.json", `{
  "type": "object",
  "required": ["jobMatchIds"],
  "properties": {
    "jobMatchIds": {"type": "array", "items": {"type": "string"}}
  }
}`)

var reopenBodySchema = jsonschema.MustCompileString("reopen.json", `{
  "type": "object",
  "properties": {
    "expirationDate": {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
  }
}`)

// decodeValid reads the body, validates it against schema and decodes it into dst.
func decodeValid(body io.Reader, schema *jsonschema.Schema, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return json.Unmarshal(raw, dst)
}
