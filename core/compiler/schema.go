package compiler

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaptinlin/jsonschema"

	coreerrors "github.com/DanielWarg/fortknox/core/errors"
	"github.com/DanielWarg/fortknox/core/schema/v1/knox"
)

// resultSchemaJSON is the strict response contract. Unknown fields are
// rejected; a compiler that returns anything extra is in violation.
const resultSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "template_id",
    "language",
    "title",
    "executive_summary",
    "themes",
    "timeline_high_level",
    "risks",
    "open_questions",
    "next_steps",
    "confidence"
  ],
  "properties": {
    "template_id": {"type": "string"},
    "language": {"type": "string", "enum": ["sv", "en"]},
    "title": {"type": "string"},
    "executive_summary": {"type": "string"},
    "themes": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["name", "bullets"],
        "properties": {
          "name": {"type": "string"},
          "bullets": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "timeline_high_level": {"type": "array", "items": {"type": "string"}},
    "risks": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["risk", "mitigation"],
        "properties": {
          "risk": {"type": "string"},
          "mitigation": {"type": "string"}
        }
      }
    },
    "open_questions": {"type": "array", "items": {"type": "string"}},
    "next_steps": {"type": "array", "items": {"type": "string"}},
    "confidence": {"type": "string", "enum": ["low", "medium", "high"]}
  }
}`

var loadResultSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(resultSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile result schema: %w", err)
	}
	return schema, nil
})

// DecodeResult validates raw compiler output against the strict schema
// and decodes it. Any schema violation is SCHEMA_VALIDATION_ERROR; the
// raw body never appears in the error.
func DecodeResult(raw []byte) (knox.StructuredResult, error) {
	schema, err := loadResultSchema()
	if err != nil {
		return knox.StructuredResult{}, coreerrors.Wrap(err, coreerrors.CategoryInternal, coreerrors.CodeInternal, false)
	}

	outcome := schema.ValidateJSON(raw)
	if !outcome.IsValid() {
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryContract,
			coreerrors.CodeSchemaValidation,
			[]string{"result_schema_validation_failed"},
			"compiler response does not match the result schema",
			false,
		)
	}

	var result knox.StructuredResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return knox.StructuredResult{}, coreerrors.New(
			coreerrors.CategoryContract,
			coreerrors.CodeSchemaValidation,
			[]string{"result_decode_failed"},
			"compiler response could not be decoded",
			false,
		)
	}
	return result, nil
}
