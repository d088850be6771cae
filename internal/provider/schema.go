package provider

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const scoreSchemaSrc = `{
  "type": "object",
  "required": ["balance_sheet", "income_statement", "cash_flow", "equity_statement"],
  "properties": {
    "balance_sheet": {"type": "number"},
    "income_statement": {"type": "number"},
    "cash_flow": {"type": "number"},
    "equity_statement": {"type": "number"}
  }
}`

const yearsSchemaSrc = `{
  "type": "object",
  "required": ["years"],
  "properties": {
    "years": {
      "type": "array",
      "items": {"type": ["string", "integer"]}
    }
  }
}`

const extractSchemaSrc = `{
  "$defs": {
    "entry": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "value": {"type": ["number", "string", "null"]},
        "year": {"type": ["string", "integer", "null"]},
        "confidence": {"type": ["number", "null"]}
      }
    }
  },
  "type": "object",
  "required": ["fields"],
  "properties": {
    "fields": {
      "type": "object",
      "additionalProperties": {
        "anyOf": [
          {"$ref": "#/$defs/entry"},
          {"type": "array", "items": {"$ref": "#/$defs/entry"}}
        ]
      }
    }
  }
}`

var (
	scoreSchema   = mustCompile("score.json", scoreSchemaSrc)
	yearsSchema   = mustCompile("years.json", yearsSchemaSrc)
	extractSchema = mustCompile("extract.json", extractSchemaSrc)
)

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}

// validate checks a decoded JSON document against schema.
func validate(schema *jsonschema.Schema, doc any) error {
	if err := schema.Validate(doc); err != nil {
		return eris.Wrap(err, "provider: response does not match schema")
	}
	return nil
}
