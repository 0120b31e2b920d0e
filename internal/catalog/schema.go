package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

func compileSchema(categoryID string, schema map[string]any) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	name := categoryID + ".schema.json"
	if err := compiler.AddResource(name, bytes.NewReader(encoded)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// schemaIssues flattens a jsonschema validation error into "location: message" parts.
func schemaIssues(err error) error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	var parts []string
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			loc := node.InstanceLocation
			if loc == "" {
				loc = "#"
			}
			parts = append(parts, fmt.Sprintf("%s: %s", loc, node.Message))
			return
		}
		for _, c := range node.Causes {
			walk(c)
		}
	}
	walk(verr)
	return fmt.Errorf("schema validation failed: %s", strings.Join(parts, "; "))
}
