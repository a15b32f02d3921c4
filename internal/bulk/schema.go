package bulk

import (
	"context"
	"net/http"
	"strings"
)

// ModelInfo is one entry from the model listing.
type ModelInfo struct {
	AppLabel  string `json:"app_label"`
	ModelName string `json:"model_name"`
	Table     string `json:"table,omitempty"`
}

// ModelField describes one column of a remote model schema.
type ModelField struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	PrimaryKey bool   `json:"primary_key"`
	Nullable   bool   `json:"nullable"`
	Default    any    `json:"default"`
	ForeignKey string `json:"foreign_key,omitempty"`
}

// ModelSchema is the full schema of a remote model.
type ModelSchema struct {
	AppLabel  string       `json:"app_label"`
	ModelName string       `json:"model_name"`
	Fields    []ModelField `json:"fields"`
}

// Models lists the models available for bulk operations.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	var out []ModelInfo
	if err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/models/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ModelSchema fetches the schema for model, e.g. "dcim.device".
func (c *Client) ModelSchema(ctx context.Context, model string) (*ModelSchema, error) {
	var out ModelSchema
	if err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/models/"+model+"/", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Template builds a row template for model: field names mapped to typed zero
// values. Primary keys are skipped, foreign-key fields take the _id suffix,
// and optional fields with defaults are included only when includeOptional is
// set. Use it to see what a data file row needs before generating one.
func (c *Client) Template(ctx context.Context, model string, includeOptional bool) (map[string]any, error) {
	schema, err := c.ModelSchema(ctx, model)
	if err != nil {
		return nil, err
	}

	template := make(map[string]any)
	for _, f := range schema.Fields {
		if f.PrimaryKey {
			continue
		}
		name := f.Name
		if f.ForeignKey != "" && !strings.HasSuffix(name, "_id") {
			name += "_id"
		}
		if f.Nullable && f.Default != nil && !includeOptional {
			continue
		}
		template[name] = fieldDefault(f)
	}
	return template, nil
}

func fieldDefault(f ModelField) any {
	if f.Default != nil {
		return f.Default
	}
	switch {
	case strings.Contains(f.Type, "Char"), strings.Contains(f.Type, "Text"), strings.Contains(f.Type, "Slug"):
		return ""
	case strings.Contains(f.Type, "Int"):
		return 0
	case strings.Contains(f.Type, "Bool"):
		return false
	case strings.Contains(f.Type, "JSON"):
		return map[string]any{}
	case strings.Contains(f.Type, "Decimal"), strings.Contains(f.Type, "Float"):
		return 0.0
	}
	return nil
}
