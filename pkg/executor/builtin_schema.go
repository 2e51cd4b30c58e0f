package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rpacore/engine/pkg/execctx"
)

// SchemaValidateExecutor validates a node's resolved data against a
// JSON Schema before a sensitive step (file write, HTTP call), wired
// per SPEC_FULL §3's domain stack table.
type SchemaValidateExecutor struct{}

func (SchemaValidateExecutor) ModuleType() string { return "schema_validate" }

func (SchemaValidateExecutor) Validate(config map[string]interface{}) error {
	if _, ok := config["schema"]; !ok {
		return fmt.Errorf("schema_validate: missing required field %q", "schema")
	}
	if _, ok := config["data"]; !ok {
		return fmt.Errorf("schema_validate: missing required field %q", "data")
	}
	return nil
}

func (SchemaValidateExecutor) Execute(ctx context.Context, config map[string]interface{}, ec *execctx.Context) (Result, error) {
	schemaVal := config["schema"]
	schemaMap, ok := schemaVal.(map[string]interface{})
	if !ok {
		return Result{Success: false, Error: "schema_validate: \"schema\" must be a JSON Schema object"}, nil
	}
	schemaJSON, err := json.Marshal(schemaMap)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	data, err := resolveField(config, "data", ec)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	docLoader := gojsonschema.NewGoLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return Result{Success: false, Error: err.Error()}, nil
	}
	if result.Valid() {
		return Result{Success: true, Message: "data matches schema"}, nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return Result{Success: false, Error: strings.Join(msgs, "; ")}, nil
}
