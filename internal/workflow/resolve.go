package workflow

// OutputKey identifies one output slot of a node kind.
type OutputKey struct {
	Kind  string
	Index int
}

// OutputTable maps node outputs to the input field that carries their
// value. Exported graphs do not describe their outputs, so this mirrors
// the node kinds we know about.
type OutputTable map[OutputKey]string

// DefaultOutputs covers the primitive and constant nodes that usually feed
// prompts, seeds and sizes.
var DefaultOutputs = OutputTable{
	{Kind: "PrimitiveString", Index: 0}:          "value",
	{Kind: "PrimitiveStringMultiline", Index: 0}: "value",
	{Kind: "PrimitiveInt", Index: 0}:             "value",
	{Kind: "PrimitiveFloat", Index: 0}:           "value",
	{Kind: "PrimitiveBoolean", Index: 0}:         "value",
	{Kind: "INTConstant", Index: 0}:              "value",
	{Kind: "FloatConstant", Index: 0}:            "value",
	{Kind: "String Literal", Index: 0}:           "string",
	{Kind: "Text Multiline", Index: 0}:           "text",
	{Kind: "CR Text", Index: 0}:                  "text",
	{Kind: "Seed (rgthree)", Index: 0}:           "seed",
	{Kind: "ImpactWildcardProcessor", Index: 0}:  "populated_text",
}

// maxRefDepth bounds chains of references; longer chains and cycles
// resolve to absent.
const maxRefDepth = 8

// Resolver turns node references into concrete values.
type Resolver struct {
	outputs OutputTable
}

// NewResolver creates a resolver over the given output table.
func NewResolver(outputs OutputTable) *Resolver {
	if outputs == nil {
		outputs = DefaultOutputs
	}
	return &Resolver{outputs: outputs}
}

// Resolve looks up the referenced node and reads the field backing the
// referenced output. Missing targets, unmapped outputs and missing fields
// resolve to absent.
func (r *Resolver) Resolve(g *Graph, ref Reference) (Value, bool) {
	return r.resolve(g, ref, 0)
}

func (r *Resolver) resolve(g *Graph, ref Reference, depth int) (Value, bool) {
	if depth >= maxRefDepth {
		return Value{}, false
	}
	target, ok := g.Node(ref.TargetID)
	if !ok {
		return Value{}, false
	}
	field, ok := r.outputs[OutputKey{Kind: target.Kind, Index: ref.OutputIndex}]
	if !ok {
		return Value{}, false
	}
	v := target.Field(field)
	if v.IsNull() {
		return Value{}, false
	}
	if next, isRef := v.Ref(); isRef {
		return r.resolve(g, next, depth+1)
	}
	return v, true
}

// Value returns v itself, or the resolved value when v is a reference.
func (r *Resolver) Value(g *Graph, v Value) Value {
	ref, ok := v.Ref()
	if !ok {
		return v
	}
	resolved, ok := r.Resolve(g, ref)
	if !ok {
		return Value{}
	}
	return resolved
}
