package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var yamlExts = []string{".yaml", ".yml"}

// toJSON lets YAML files share the strict JSON decoder. Anything that is not
// a .yaml/.yml file passes through untouched.
func toJSON(path string, data []byte) ([]byte, error) {
	if !slices.Contains(yamlExts, strings.ToLower(filepath.Ext(path))) {
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	out, err := json.Marshal(jsonable(doc))
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %w", err)
	}
	return out, nil
}

// jsonable rewrites YAML mappings with non-string keys into string-keyed maps.
func jsonable(v any) any {
	if m, ok := v.(map[any]any); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[fmt.Sprint(k)] = jsonable(e)
		}
		return out
	}
	if m, ok := v.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = jsonable(e)
		}
		return out
	}
	if xs, ok := v.([]any); ok {
		out := make([]any, len(xs))
		for i, e := range xs {
			out[i] = jsonable(e)
		}
		return out
	}
	return v
}
