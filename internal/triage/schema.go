package triage

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// hypothesesSchemaJSON is the TRIAGER worker output contract (spec.md §6.4),
// compiled once and checked against a payload that produced zero usable
// hypotheses, so a worker that emitted wrong-shaped JSON (for example no
// "hypotheses" key) gets a real diagnostic instead of silently looking like
// a worker that simply chose not to propose anything. A well-formed empty
// "hypotheses" list passes the schema and produces no diagnostic.
const hypothesesSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["hypotheses"],
	"properties": {
		"hypotheses": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["mechanism", "evidence"],
				"properties": {
					"hypothesis_id": {"type": "string"},
					"mechanism": {"type": "string", "minLength": 1},
					"evidence": {
						"type": "array",
						"items": {
							"type": "object",
							"required": ["file", "line"],
							"properties": {
								"file": {"type": "string", "minLength": 1},
								"line": {"type": "integer"},
								"snippet": {"type": "string"}
							}
						}
					},
					"confidence": {"type": "number"},
					"disconfirming_checks": {
						"type": "array",
						"items": {"type": "string"}
					}
				}
			}
		}
	}
}`

var (
	hypothesesSchemaOnce sync.Once
	hypothesesSchema     *jsonschema.Schema
	hypothesesSchemaErr  error
)

func compiledHypothesesSchema() (*jsonschema.Schema, error) {
	hypothesesSchemaOnce.Do(func() {
		hypothesesSchema, hypothesesSchemaErr = jsonschema.CompileString("triage_hypotheses.json", hypothesesSchemaJSON)
	})
	return hypothesesSchema, hypothesesSchemaErr
}

// validateHypothesesSchema checks payload against the TRIAGER output schema.
// Called only once ParseTriageOutput has already failed to extract any
// usable hypothesis, to turn that silent empty result into a diagnostic.
func validateHypothesesSchema(payload map[string]interface{}) error {
	schema, err := compiledHypothesesSchema()
	if err != nil {
		return fmt.Errorf("triage: compile hypotheses schema: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("triage: worker output failed schema validation: %w", err)
	}
	return nil
}
