package ffmpeg

import (
	"fmt"
	"strings"
)

// FilterBuilder helps construct ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// FitWithin adds a scale filter that shrinks the frame until neither side
// exceeds maxEdge, keeping the aspect ratio and even dimensions. A
// non-positive maxEdge adds nothing.
func (fb *FilterBuilder) FitWithin(maxEdge int) *FilterBuilder {
	if maxEdge <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, fmt.Sprintf(
		"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease:force_divisible_by=2",
		maxEdge, maxEdge))
	return fb
}

// SceneSelect keeps only frames whose scene score exceeds threshold.
func (fb *FilterBuilder) SceneSelect(threshold float64) *FilterBuilder {
	fb.filters = append(fb.filters, fmt.Sprintf("select='gt(scene,%f)'", threshold))
	return fb
}

// Custom adds a custom filter string
func (fb *FilterBuilder) Custom(filter string) *FilterBuilder {
	fb.filters = append(fb.filters, filter)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	if len(fb.filters) == 0 {
		return ""
	}
	return strings.Join(fb.filters, ",")
}
