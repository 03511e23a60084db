package cmd

import (
	"encoding/json"

	"github.com/itchyny/gojq"
)

// compileJqFilter parses and compiles a jq filter expression.
func compileJqFilter(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, err
	}
	return gojq.Compile(query)
}

// matchesJqFilter evaluates a compiled jq filter against an event rendered
// as {"event": ..., "data": ...}. A nil code matches everything.
func matchesJqFilter(code *gojq.Code, event string, data json.RawMessage) bool {
	if code == nil {
		return true
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return false
		}
	}

	iter := code.Run(map[string]any{"event": event, "data": payload})
	v, ok := iter.Next()
	if !ok {
		return false
	}

	if _, isErr := v.(error); isErr {
		return false
	}

	if b, ok := v.(bool); ok {
		return b
	}

	// Non-nil result means match (for select-style filters)
	return v != nil
}
