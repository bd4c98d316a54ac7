// Package devseed loads seed files used to pre-populate the in-memory store
// and the sandbox server. Seeds are YAML or JSON lists of entries:
//
//	- key: users:1
//	  value: {name: ada, score: 9}
//
// The export format ({"id": ..., "data": ...}) is accepted as well, so a dump
// produced by `kvdb export` can be replayed as a seed.
package devseed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry is a single seeded key and its JSON encoded value.
type Entry struct {
	Key   string
	Value json.RawMessage
}

type rawEntry struct {
	Key   *string `yaml:"key"`
	ID    *string `yaml:"id"`
	Value any     `yaml:"value"`
	Data  any     `yaml:"data"`
}

// Load reads and decodes the seed file at path.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devseed: read %s: %w", path, err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("devseed: %s: %w", path, err)
	}
	return entries, nil
}

// Parse decodes seed entries from YAML or JSON bytes.
func Parse(data []byte) ([]Entry, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var raw []rawEntry
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for i, r := range raw {
		key := r.Key
		if key == nil {
			key = r.ID
		}
		if key == nil {
			return nil, fmt.Errorf("seed entry %d: missing key", i)
		}
		value := r.Value
		if value == nil {
			value = r.Data
		}
		encoded, err := json.Marshal(normalize(value))
		if err != nil {
			return nil, fmt.Errorf("seed entry %q: encode value: %w", *key, err)
		}
		entries = append(entries, Entry{Key: *key, Value: encoded})
	}
	return entries, nil
}

// normalize converts YAML maps with non-string keys into JSON compatible maps.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
