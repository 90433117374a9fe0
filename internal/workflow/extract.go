package workflow

import (
	"strings"
	"unicode/utf8"
)

// DefaultNegativeMarkers flag text-encoder input as a negative prompt.
var DefaultNegativeMarkers = []string{
	"worst quality",
	"low quality",
	"blurry",
	"bad anatomy",
	"deformed",
	"watermark",
	"jpeg artifacts",
	"ugly",
	"色调艳丽",
	"过曝",
}

// minPromptLength is the length a text-encoder string must exceed to count
// as a positive prompt.
const minPromptLength = 10

// Extractor walks a graph and fills Parameters. It holds no per-run state
// and is safe for concurrent use.
type Extractor struct {
	resolver        *Resolver
	negativeMarkers []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithNegativeMarkers replaces the negative-prompt keywords.
func WithNegativeMarkers(markers []string) Option {
	return func(e *Extractor) {
		e.negativeMarkers = lowerAll(markers)
	}
}

// WithOutputTable replaces the reference output table.
func WithOutputTable(outputs OutputTable) Option {
	return func(e *Extractor) {
		e.resolver = NewResolver(outputs)
	}
}

// NewExtractor creates an extractor with the default marker and output
// tables unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		resolver:        NewResolver(DefaultOutputs),
		negativeMarkers: lowerAll(DefaultNegativeMarkers),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Extract runs the default extractor.
func Extract(g *Graph) Parameters {
	return defaultExtractor.Extract(g)
}

// ExtractJSON runs the default extractor over raw graph JSON.
func ExtractJSON(raw []byte) Parameters {
	return defaultExtractor.ExtractJSON(raw)
}

// Extract visits nodes in declaration order and applies the handler
// registered for each node kind. The order is part of the contract:
// first-match rules (prompt, checkpoint model) depend on it.
func (e *Extractor) Extract(g *Graph) Parameters {
	r := &run{graph: g, resolver: e.resolver, markers: e.negativeMarkers}
	g.Each(func(_ string, n Node) {
		h, ok := handlers[n.Kind]
		if !ok {
			return
		}
		h(r, n)
	})
	return r.params
}

// ExtractJSON decodes raw graph JSON and extracts from it. Input that is
// not a JSON object yields an empty record.
func (e *Extractor) ExtractJSON(raw []byte) Parameters {
	g, err := Parse(raw)
	if err != nil {
		return Parameters{}
	}
	return e.Extract(g)
}

// run is the mutable state of one extraction.
type run struct {
	graph    *Graph
	resolver *Resolver
	markers  []string
	params   Parameters
}

func (r *run) field(n Node, name string) Value {
	return r.resolver.Value(r.graph, n.Field(name))
}

func (r *run) str(n Node, name string) (string, bool) {
	s, ok := r.field(n, name).Str()
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

func (r *run) num(n Node, name string) (float64, bool) {
	return r.field(n, name).Number()
}

func (r *run) integer(n Node, name string) (int64, bool) {
	return r.field(n, name).Int()
}

func (r *run) unsigned(n Node, name string) (uint64, bool) {
	return r.field(n, name).Uint()
}

// firstNum returns the first numeric field among names.
func (r *run) firstNum(n Node, names ...string) (float64, bool) {
	for _, name := range names {
		if f, ok := r.num(n, name); ok {
			return f, true
		}
	}
	return 0, false
}

func (r *run) isNegative(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range r.markers {
		if m != "" && strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// applyEncodedText routes a text-encoder string to prompt or negative prompt.
func (r *run) applyEncodedText(text string) {
	if r.isNegative(text) {
		r.params.NegativePrompt = ptr(text)
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) > minPromptLength && r.params.Prompt == nil {
		r.params.Prompt = ptr(text)
	}
}

func (r *run) addLora(name string, strength float64) {
	r.params.Loras = append(r.params.Loras, LoraEntry{Name: name, Strength: strength})
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
