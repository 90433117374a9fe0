// Package moderation turns per-frame vision classifier output into one
// safety verdict per video.
package moderation

import (
	"fmt"
	"strings"
)

// Rating is the ordinal safety scale. Rejected sits outside the scale and
// is only produced by the illegal-content check.
type Rating int

const (
	Safe Rating = iota
	PG13
	R
	XXX
	Rejected
)

var ratingNames = map[Rating]string{
	Safe:     "SAFE",
	PG13:     "PG-13",
	R:        "R",
	XXX:      "XXX",
	Rejected: "REJECTED",
}

func (r Rating) String() string {
	if name, ok := ratingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// Ordinal reports whether r is on the SAFE..XXX scale.
func (r Rating) Ordinal() bool {
	return r >= Safe && r <= XXX
}

// ParseRating accepts any of the text forms, case-insensitively.
func ParseRating(s string) (Rating, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for r, name := range ratingNames {
		if upper == name {
			return r, nil
		}
	}
	return Safe, fmt.Errorf("unknown rating %q", s)
}

// MarshalText encodes the rating as its text form.
func (r Rating) MarshalText() ([]byte, error) {
	if _, ok := ratingNames[r]; !ok {
		return nil, fmt.Errorf("invalid rating %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a text form.
func (r *Rating) UnmarshalText(b []byte) error {
	parsed, err := ParseRating(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// FrameVerdict is what one frame's classifier text said.
type FrameVerdict struct {
	Rating Rating
	Reason string
}

// Verdict is the outcome for a whole video.
//
// Evaluated is false when no frame was inspected because moderation was
// off, the backend was unavailable or the run failed. Those outcomes are
// otherwise shaped exactly like a clean inspection.
type Verdict struct {
	Rating          Rating `json:"rating"`
	Reason          string `json:"reason"`
	IsLegal         bool   `json:"is_legal"`
	Evaluated       bool   `json:"evaluated"`
	FramesInspected int    `json:"frames_inspected"`
}

// Fixed reasons.
const (
	ReasonIllegal     = "Potentially illegal content detected"
	ReasonClean       = "Clean content"
	ReasonDisabled    = "Moderation disabled"
	ReasonUnavailable = "Classification backend unavailable"
	ReasonFailed      = "Moderation check failed; defaulted to safe"
	ReasonUnstated    = "No reason given"
)

func rejected() Verdict {
	return Verdict{Rating: Rejected, Reason: ReasonIllegal, IsLegal: false, Evaluated: true}
}

// failOpen is the verdict used whenever frames could not be inspected.
func failOpen(reason string) Verdict {
	return Verdict{Rating: Safe, Reason: reason, IsLegal: true}
}
