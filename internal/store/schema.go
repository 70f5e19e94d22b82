package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// tapeSchemaDoc is the structural shape every tape file must satisfy before
// it is mapped onto Go structs. It only constrains shape, not semantics
// (e.g. it does not know about normalization or redaction).
const tapeSchemaDoc = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["meta", "session", "exchanges"],
  "properties": {
    "meta": {
      "type": "object",
      "required": ["createdAt", "program", "args"],
      "properties": {
        "program": {"type": "string"},
        "args": {"type": "array", "items": {"type": "string"}}
      }
    },
    "session": {
      "type": "object",
      "required": ["platform", "version", "recordMode"]
    },
    "exchanges": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pre", "input", "output", "durMs"],
        "properties": {
          "pre": {"type": "object", "required": ["prompt"]},
          "input": {"type": "object", "required": ["kind"]},
          "output": {"type": "object", "required": ["chunks"]}
        }
      }
    }
  }
}`

var tapeSchema = compileSchema()

func compileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tape.json", bytes.NewReader([]byte(tapeSchemaDoc))); err != nil {
		panic(fmt.Sprintf("store: invalid embedded tape schema: %v", err))
	}
	schema, err := compiler.Compile("tape.json")
	if err != nil {
		panic(fmt.Sprintf("store: invalid embedded tape schema: %v", err))
	}
	return schema
}

// validateShape checks raw (already permissive-stripped) tape JSON against
// the embedded schema before it is unmarshaled onto Go structs.
func validateShape(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return tapeSchema.Validate(v)
}
