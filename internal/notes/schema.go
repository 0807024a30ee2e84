package notes

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const dateTimeOrNull = `{"type": ["string", "null"], "format": "date-time"}`

var kindSchemas = map[Kind]string{
	KindInterview: `{
		"type": "object",
		"required": ["session_id"],
		"properties": {
			"session_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"},
			"entry_url": {"type": "string"},
			"provider": {"type": "string"},
			"total_score": {"type": ["number", "null"]},
			"invited_at": ` + dateTimeOrNull + `,
			"scored_at": ` + dateTimeOrNull + `,
			"synced_at": ` + dateTimeOrNull + `,
			"followups_sent": {"type": "integer", "minimum": 0},
			"last_followup_at": ` + dateTimeOrNull + `,
			"next_followup_at": ` + dateTimeOrNull + `
		}
	}`,
	KindForcedTest: `{
		"type": "object",
		"required": ["identifier"],
		"properties": {
			"identifier": {"type": "string", "minLength": 1},
			"forced_score": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`,
	KindPreResume: `{
		"type": "object",
		"required": ["session_id"],
		"properties": {
			"session_id": {"type": "string", "minLength": 1},
			"status": {"type": "string"},
			"screening_outcome": {"type": "string"},
			"resume_received_at": ` + dateTimeOrNull + `
		}
	}`,
	KindOutreach: `{
		"type": "object",
		"required": ["state"],
		"properties": {
			"state": {"enum": ["sent", "waiting_connection", "sent_after_connection", "failed"]},
			"connect_request_id": {"type": "string"},
			"error": {"type": "string"},
			"updated_at": ` + dateTimeOrNull + `
		}
	}`,
	KindVerification: `{
		"type": "object",
		"properties": {
			"verdict": {"type": "string"},
			"explanation": {"type": "string"},
			"components": {"type": "object", "additionalProperties": {"type": "number"}},
			"missing_fields": {"type": "array", "items": {"type": "string"}}
		}
	}`,
}

var compiled = compileSchemas()

func compileSchemas() map[Kind]*gojsonschema.Schema {
	out := make(map[Kind]*gojsonschema.Schema, len(kindSchemas))
	for kind, src := range kindSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			panic(fmt.Sprintf("notes: invalid %s schema: %v", kind, err))
		}
		out[kind] = schema
	}
	return out
}

// ValidationError lists the schema violations of one note kind.
type ValidationError struct {
	Kind   Kind
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s note: %s", e.Kind, strings.Join(e.Issues, "; "))
}

// Validate checks a raw note document against the schema of its kind.
// Unknown kinds are always valid.
func Validate(kind Kind, doc []byte) error {
	schema, ok := compiled[kind]
	if !ok {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validating %s note: %w", kind, err)
	}
	if result.Valid() {
		return nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, e.String())
	}
	return &ValidationError{Kind: kind, Issues: issues}
}
