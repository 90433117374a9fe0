package workflow

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FromContainerTags finds the embedded graph in a clip's container tags.
// Exporters store it either directly under a "prompt" tag or inside a JSON
// "comment" tag as {"prompt": <graph>, "workflow": ...}. The returned bytes
// are the graph exactly as embedded.
func FromContainerTags(tags map[string]string) ([]byte, bool) {
	lookup := make(map[string]string, len(tags))
	for k, v := range tags {
		lookup[strings.ToLower(k)] = v
	}

	if raw, ok := lookup["prompt"]; ok {
		if b, ok := asObject([]byte(raw)); ok {
			return b, true
		}
	}

	comment, ok := lookup["comment"]
	if !ok {
		return nil, false
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(comment), &wrapper); err != nil {
		return nil, false
	}
	inner, ok := wrapper["prompt"]
	if !ok {
		return nil, false
	}
	if b, ok := asObject(inner); ok {
		return b, true
	}

	// Some exporters store the graph as a JSON-encoded string.
	var s string
	if err := json.Unmarshal(inner, &s); err != nil {
		return nil, false
	}
	return asObject([]byte(s))
}

func asObject(b []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(b) {
		return nil, false
	}
	return b, true
}
