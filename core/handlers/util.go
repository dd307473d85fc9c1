package handlers

import (
	"encoding/json"
	"fmt"
)

// renameKey rewrites a JSON object, moving the value under from to the key
// under to. A document already keyed by to is returned unchanged; a document
// carrying neither key fails.
func renameKey(doc json.RawMessage, from, to string) (json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}

	if _, ok := obj[to]; ok {
		return doc, nil
	}

	val, ok := obj[from]
	if !ok {
		return nil, fmt.Errorf("payload missing key %q", from)
	}

	delete(obj, from)
	obj[to] = val

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return out, nil
}
