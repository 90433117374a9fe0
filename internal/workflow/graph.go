// Package workflow recovers generation parameters from the node graph that
// AI video tooling embeds into exported clips.
//
// A graph is a keyed collection of nodes. Each node has a kind, a set of
// untyped input fields and an optional title. Field values are scalars, node
// references ([targetId, outputIndex]) or, for one loader kind, a list of
// lora records. Declaration order of the nodes matters: several extraction
// rules are "first match wins" and depend on which node is visited first.
package workflow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotGraph is returned by Parse when the input is not a JSON object.
var ErrNotGraph = errors.New("workflow: input is not a keyed node collection")

// Node is a typed view over one graph entry.
type Node struct {
	Kind   string
	Fields map[string]Value
	Title  string
}

// Field returns the named field, or a null Value when it is missing.
func (n Node) Field(name string) Value {
	if n.Fields == nil {
		return Value{}
	}
	return n.Fields[name]
}

// Has reports whether the node carries a non-null field with the given name.
func (n Node) Has(name string) bool {
	return !n.Field(name).IsNull()
}

// Graph is an ordered node collection. The zero value is an empty graph.
type Graph struct {
	ids   []string
	nodes map[string]Node
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]Node)}
}

// Add appends a node. Re-adding an existing id replaces the node but keeps
// its original position.
func (g *Graph) Add(id string, n Node) *Graph {
	if g.nodes == nil {
		g.nodes = make(map[string]Node)
	}
	if _, exists := g.nodes[id]; !exists {
		g.ids = append(g.ids, id)
	}
	g.nodes[id] = n
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.ids)
}

// IDs returns node ids in declaration order.
func (g *Graph) IDs() []string {
	if g == nil {
		return nil
	}
	out := make([]string, len(g.ids))
	copy(out, g.ids)
	return out
}

// Node looks up a node by id.
func (g *Graph) Node(id string) (Node, bool) {
	if g == nil || g.nodes == nil {
		return Node{}, false
	}
	n, ok := g.nodes[id]
	return n, ok
}

// Each visits nodes in declaration order.
func (g *Graph) Each(fn func(id string, n Node)) {
	if g == nil {
		return
	}
	for _, id := range g.ids {
		fn(id, g.nodes[id])
	}
}

// wireNode is the API-export shape of a node. Members stay raw so that one
// malformed member reads as absent instead of dropping the node.
type wireNode struct {
	ClassType json.RawMessage `json:"class_type"`
	Inputs    json.RawMessage `json:"inputs"`
	Meta      json.RawMessage `json:"_meta"`
}

// Parse decodes a graph while keeping the declaration order of its keys.
// Entries that are not node-like (not an object, or without a class_type)
// are skipped.
func Parse(data []byte) (*Graph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotGraph, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotGraph
	}

	g := NewGraph()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read node id: %w", err)
		}
		id, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("read node %q: %w", id, err)
		}

		node, ok := decodeNode(raw)
		if !ok {
			continue
		}
		g.Add(id, node)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("read graph end: %w", err)
	}
	return g, nil
}

func decodeNode(raw json.RawMessage) (Node, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Node{}, false
	}

	var w wireNode
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Node{}, false
	}
	var kind string
	if err := json.Unmarshal(w.ClassType, &kind); err != nil || kind == "" {
		return Node{}, false
	}

	var inputs map[string]json.RawMessage
	_ = json.Unmarshal(w.Inputs, &inputs)
	fields := make(map[string]Value, len(inputs))
	for name, member := range inputs {
		var v any
		if err := decodeNumber(member, &v); err != nil {
			continue
		}
		fields[name] = ValueOf(v)
	}

	var meta struct {
		Title json.RawMessage `json:"title"`
	}
	var title string
	if json.Unmarshal(w.Meta, &meta) == nil {
		_ = json.Unmarshal(meta.Title, &title)
	}
	return Node{Kind: kind, Fields: fields, Title: title}, true
}

func decodeNumber(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
