package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "go.yaml.in/yaml/v3"
)

// decodeFile decodes a JSON, YAML or TOML document, chosen by the file
// extension, into out. Unknown keys and trailing documents are errors for
// every format since YAML and TOML are first converted to JSON.
func decodeFile(path string, data []byte, out *Config) error {
	js, err := toJSON(path, data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == nil:
		return errors.New("trailing data")
	case err != io.EOF:
		return err
	}
	return nil
}

func toJSON(path string, data []byte) ([]byte, error) {
	var doc any
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
	case ".toml":
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("toml: %w", err)
		}
		doc = m
	default:
		return data, nil
	}
	js, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return js, nil
}

// stringKeys rewrites map[any]any nodes, which encoding/json rejects,
// into map[string]any.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	}
	return v
}
