package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Compose adds each extension schema as a top-level property of base.
// Extension keys already present in base are an error.
func Compose(base []byte, extensions map[string][]byte) ([]byte, error) {
	var root map[string]interface{}
	if err := json.Unmarshal(base, &root); err != nil {
		return nil, fmt.Errorf("failed to parse base schema: %w", err)
	}

	props, _ := root["properties"].(map[string]interface{})
	if props == nil {
		props = make(map[string]interface{})
	}

	keys := make([]string, 0, len(extensions))
	for key := range extensions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, exists := props[key]; exists {
			return nil, fmt.Errorf("extension %q collides with a core property", key)
		}
		var ext map[string]interface{}
		if err := json.Unmarshal(extensions[key], &ext); err != nil {
			return nil, fmt.Errorf("failed to parse schema for extension %q: %w", key, err)
		}
		// Extension schemas are inlined, so their document keywords go.
		delete(ext, "$schema")
		delete(ext, "$id")
		props[key] = ext
	}
	root["properties"] = props

	return json.MarshalIndent(root, "", "  ")
}
