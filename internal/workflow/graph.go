package workflow

import (
	"encoding/json"
	"fmt"
)

// Node kinds the binder mutates. Anything else passes through untouched.
const (
	nodeTextEncode = "CLIPTextEncode"
	nodeLoadImage  = "LoadImage"
)

// Node is one unit of a job graph: a kind discriminator, an inputs
// mapping (scalars or node output references), and an opaque metadata
// blob preserved across round-trips.
type Node struct {
	ClassType string          `json:"class_type"`
	Inputs    map[string]any  `json:"inputs"`
	Meta      json.RawMessage `json:"_meta,omitempty"`
}

// Graph maps node identifiers to node definitions. Each graph instance
// is owned by exactly one request and mutated in place by the binder.
type Graph map[string]*Node

// ParseGraph deserializes a job graph. An empty document yields an
// empty graph; callers treat that as no graph supplied.
func ParseGraph(b []byte) (Graph, error) {
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("parse graph: %w", err)
	}
	return g, nil
}
