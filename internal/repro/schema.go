package repro

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// candidateSchemaJSON is the REPRO_BUILDER worker output contract (spec.md
// §6.3), compiled once and used as a diagnostic-producing pre-check ahead
// of the tolerant field-by-field decode in ParseCandidate. The schema is
// intentionally looser than the Go type: it only enforces the required
// keys and their basic shapes, because the surrounding parser is the one
// that actually has to tolerate prose and markdown fencing around the
// object (spec.md §4.9, §9).
const candidateSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["candidate_id", "script", "oracle_command"],
	"properties": {
		"candidate_id": {"type": "string", "minLength": 1},
		"script": {"type": "string", "minLength": 1},
		"oracle_command": {"type": "string", "minLength": 1},
		"claimed_failure_signature": {"type": "string"},
		"file_extension": {"type": "string"},
		"setup_commands": {
			"type": "array",
			"items": {"type": "string"}
		}
	}
}`

var (
	candidateSchemaOnce sync.Once
	candidateSchema     *jsonschema.Schema
	candidateSchemaErr  error
)

func compiledCandidateSchema() (*jsonschema.Schema, error) {
	candidateSchemaOnce.Do(func() {
		candidateSchema, candidateSchemaErr = jsonschema.CompileString("repro_candidate.json", candidateSchemaJSON)
	})
	return candidateSchema, candidateSchemaErr
}

// validateCandidateSchema checks payload against the REPRO_BUILDER output
// schema. ParseCandidate calls it only after its own field checks found a
// required field empty; its error, when non-nil, is wrapped into the error
// ParseCandidate returns in place of a candidate, so it becomes the
// diagnostic for why the worker's output was skipped.
func validateCandidateSchema(payload map[string]interface{}) error {
	schema, err := compiledCandidateSchema()
	if err != nil {
		return fmt.Errorf("repro: compile candidate schema: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("repro: candidate output failed schema validation: %w", err)
	}
	return nil
}
