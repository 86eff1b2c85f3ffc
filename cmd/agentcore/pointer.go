package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// applyPointer extracts the value at an RFC 6901-style JSON pointer
// ("/foo/0/bar") from a JSON document. An empty pointer returns the whole
// document.
func applyPointer(content []byte, pointer string) (any, error) {
	var doc any
	if len(content) == 0 {
		doc = nil
	} else if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON body for --filter: %w", err)
	}

	if pointer == "" || pointer == "/" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("--filter must start with '/': %q", pointer)
	}

	cur := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")

		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[token]
			if !ok {
				return nil, fmt.Errorf("--filter: no field %q", token)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("--filter: invalid index %q", token)
			}
			cur = v[idx]
		default:
			return nil, fmt.Errorf("--filter: cannot descend into %q", token)
		}
	}
	return cur, nil
}
