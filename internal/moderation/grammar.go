package moderation

import "strings"

// ratingTokens lists the accepted rating tokens, longest first so that a
// prefix scan never picks a shorter token over a longer one.
var ratingTokens = []struct {
	text   string
	rating Rating
}{
	{"PG-13", PG13},
	{"SAFE", Safe},
	{"XXX", XXX},
	{"R", R},
}

const (
	ratingLabel = "RATING:"
	reasonLabel = "REASON:"
)

// ParseFrame reads "RATING: <token>" and an optional "REASON: <text>" from
// free classifier text. Labels and tokens are matched case-insensitively;
// whitespace, including line breaks, may follow a label. It reports false
// when no rating line is present.
func ParseFrame(text string) (FrameVerdict, bool) {
	upper := asciiUpper(text)

	rating, ok := scanRating(upper)
	if !ok {
		return FrameVerdict{}, false
	}

	reason, ok := scanReason(text, upper)
	if !ok {
		reason = ReasonUnstated
	}
	return FrameVerdict{Rating: rating, Reason: reason}, true
}

// scanRating finds the first rating label followed by a known token.
func scanRating(upper string) (Rating, bool) {
	for from := 0; ; {
		i := strings.Index(upper[from:], ratingLabel)
		if i < 0 {
			return Safe, false
		}
		pos := skipSpace(upper, from+i+len(ratingLabel))
		for _, tok := range ratingTokens {
			if strings.HasPrefix(upper[pos:], tok.text) {
				return tok.rating, true
			}
		}
		from += i + len(ratingLabel)
	}
}

// scanReason returns the rest of the line after the first reason label
// that is followed by at least one character.
func scanReason(text, upper string) (string, bool) {
	for from := 0; ; {
		i := strings.Index(upper[from:], reasonLabel)
		if i < 0 {
			return "", false
		}
		pos := skipSpace(text, from+i+len(reasonLabel))
		line := text[pos:]
		if nl := strings.IndexByte(line, '\n'); nl >= 0 {
			line = line[:nl]
		}
		line = strings.TrimRight(line, "\r")
		if line != "" {
			return strings.TrimSpace(line), true
		}
		from += i + len(reasonLabel)
	}
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		switch s[pos] {
		case ' ', '\t', '\n', '\r', '\v', '\f':
			pos++
		default:
			return pos
		}
	}
	return pos
}

// asciiUpper upper-cases ASCII letters only, so byte offsets stay aligned
// with the original text.
func asciiUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
