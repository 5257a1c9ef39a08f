package graph

import (
	"encoding/json"
	"fmt"
)

// cloneState deep-copies a state value through a JSON round trip.
//
// Works for any JSON-marshalable state: structs with exported fields,
// maps, slices, primitives. Unexported fields are dropped and cyclic
// values will not marshal. Parallel branches rely on this so they
// never share mutable state with each other.
func cloneState[S any](state S) (S, error) {
	var out S

	data, err := json.Marshal(state)
	if err != nil {
		return out, fmt.Errorf("marshal state: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal state: %w", err)
	}
	return out, nil
}
