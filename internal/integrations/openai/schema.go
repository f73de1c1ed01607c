package openai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

const attributesSchemaName = "warehouse_attributes"

// ErrNoStructuredResult is returned when the model output cannot be read as a
// warehouse attribute record.
var ErrNoStructuredResult = errors.New("openai: no structured result")

var (
	attributesDefinition = jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"length":       {Type: jsonschema.Number, Description: "Warehouse length in meters"},
			"width":        {Type: jsonschema.Number, Description: "Warehouse width in meters"},
			"height":       {Type: jsonschema.Number, Description: "Warehouse height in meters"},
			"pallet_type":  {Type: jsonschema.String, Description: "Pallet type, lower case"},
			"capacity":     {Type: jsonschema.Integer, Description: "Storage capacity in pallets"},
			"storage_type": {Type: jsonschema.String, Description: "Storage type, lower case"},
		},
		Required:             []string{"length", "width", "height", "pallet_type", "capacity", "storage_type"},
		AdditionalProperties: false,
	}

	attributesSchemaJSON []byte
	attributesValidator  *gojsonschema.Schema
)

func init() {
	raw, err := json.Marshal(&attributesDefinition)
	if err != nil {
		panic(fmt.Sprintf("openai: marshal attributes schema: %v", err))
	}
	attributesSchemaJSON = raw

	attributesValidator, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("openai: compile attributes schema: %v", err))
	}
}

func attributesResponseFormat() *responseFormat {
	return &responseFormat{
		Type: "json_schema",
		JSONSchema: jsonSchemaConfig{
			Name:   attributesSchemaName,
			Strict: true,
			Schema: json.RawMessage(attributesSchemaJSON),
		},
	}
}

// decodeAttributes reads the first JSON object in content and checks it
// against the attribute schema. Markdown code fences around it are ignored.
func decodeAttributes(content string) (map[string]any, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, ErrNoStructuredResult
	}
	doc := content[start : end+1]

	result, err := attributesValidator.Validate(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredResult, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("%w: %s", ErrNoStructuredResult, strings.Join(errs, "; "))
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStructuredResult, err)
	}
	return out, nil
}
