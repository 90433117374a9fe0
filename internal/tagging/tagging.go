// Package tagging builds the descriptive tag set of a video from its file
// name, its technical metrics and free-text tags suggested by a vision model.
package tagging

import (
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode"
)

// Source says where a tag came from.
type Source string

const (
	SourceFilename Source = "filename"
	SourceAuto     Source = "auto"
	SourceAI       Source = "ai"
)

// Confidence per source.
const (
	FilenameConfidence = 0.6
	AutoConfidence     = 1.0
	AIConfidence       = 0.8
)

// MaxAITags caps how many AI tags are kept.
const MaxAITags = 15

// Tag is one descriptive label.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Metrics are the technical facts auto tags are derived from.
type Metrics struct {
	Duration  time.Duration
	Width     int
	Height    int
	Container string
}

// FromFilename tags each token of the file's base name that is longer than
// two characters and not purely numeric.
func FromFilename(path string) []Tag {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var tags []Tag
	for _, tok := range splitWords(base) {
		if len([]rune(tok)) <= 2 || isDigits(tok) {
			continue
		}
		tags = append(tags, Tag{Name: tok, Confidence: FilenameConfidence, Source: SourceFilename})
	}
	return tags
}

// FromMetrics derives duration, resolution, orientation and container tags.
func FromMetrics(m Metrics) []Tag {
	var names []string

	switch {
	case m.Duration <= 0:
	case m.Duration < 5*time.Second:
		names = append(names, "short")
	case m.Duration < 15*time.Second:
		names = append(names, "medium")
	default:
		names = append(names, "long")
	}

	switch {
	case m.Width >= 3840 && m.Height >= 2160:
		names = append(names, "4k")
	case m.Width >= 1920 && m.Height >= 1080:
		names = append(names, "hd")
	}

	if m.Width > 0 && m.Height > 0 {
		switch {
		case m.Width > m.Height:
			names = append(names, "landscape")
		case m.Height > m.Width:
			names = append(names, "portrait")
		default:
			names = append(names, "square")
		}
	}

	if c := strings.ToLower(strings.TrimSpace(m.Container)); c != "" {
		names = append(names, c)
	}

	tags := make([]Tag, 0, len(names))
	for _, n := range names {
		tags = append(tags, Tag{Name: n, Confidence: AutoConfidence, Source: SourceAuto})
	}
	return tags
}

// FromAI turns a model's free-text answer into tags: comma or line
// separated phrases, lower-cased, stop words removed, deduplicated and
// capped to the first MaxAITags.
func FromAI(text string) []Tag {
	seen := make(map[string]bool)
	var tags []Tag

	for _, phrase := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';' || r == '#'
	}) {
		name := normalizePhrase(phrase)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tags = append(tags, Tag{Name: name, Confidence: AIConfidence, Source: SourceAI})
		if len(tags) == MaxAITags {
			break
		}
	}
	return tags
}

// Aggregate merges tag lists by name. Lists are applied in order and a
// later tag replaces an earlier one with the same name, even when the
// earlier one had a higher confidence. The result is sorted by name.
func Aggregate(sources ...[]Tag) []Tag {
	byName := make(map[string]Tag)
	for _, src := range sources {
		for _, t := range src {
			if t.Name == "" {
				continue
			}
			byName[t.Name] = t
		}
	}

	out := make([]Tag, 0, len(byName))
	for _, t := range byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// normalizePhrase lower-cases a phrase, strips list markers and
// punctuation and drops stop words. Phrases made only of stop words
// vanish.
func normalizePhrase(phrase string) string {
	var kept []string
	for _, w := range splitWords(phrase) {
		if stopWords[w] || isDigits(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"in": true, "on": true, "at": true, "to": true, "with": true, "for": true,
	"is": true, "are": true, "this": true, "that": true, "it": true, "its": true,
	"by": true, "from": true, "as": true, "be": true, "image": true, "tags": true,
	"tag": true, "here": true, "some": true, "very": true, "video": true, "frame": true,
}
