package config

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Diff lists the top-level sections that differ between a and b.
// A nil a reports every section.
func Diff(a, b *Config) []string {
	if b == nil {
		return nil
	}
	var prev Config
	if a != nil {
		prev = *a
	}
	pa, pb := sections(&prev), sections(b)
	var out []string
	for k, v := range pb {
		if a == nil || !reflect.DeepEqual(pa[k], v) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

func sections(c *Config) map[string]json.RawMessage {
	b, err := json.Marshal(c)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	_ = json.Unmarshal(b, &m)
	return m
}
