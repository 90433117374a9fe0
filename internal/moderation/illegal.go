package moderation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// restrictedSubjects are stems of terms that refer to minors.
var restrictedSubjects = []string{
	"child",
	"kid",
	"minor",
	"underage", "under-age", "under age",
	"preteen", "pre-teen",
	"teen",
	"toddler",
	"infant",
	"schoolgirl", "schoolboy",
	"young girl", "young boy",
	"little girl", "little boy",
	"loli", "shota",
}

// explicitSexual are stems of terms that describe sexual content or nudity.
var explicitSexual = []string{
	"naked",
	"nude", "nudi",
	"sex",
	"explicit",
	"porn",
	"genital",
	"erotic",
	"topless",
	"undress",
	"nsfw",
}

// benignWords start with a stem above but mean something else.
var benignWords = []string{
	"kidney", "kidnap",
	"minorit",
	"infantry",
	"teeny", "teensy",
	"childless",
	"lolipop",
	"sextant", "sexton", "sextet", "sextuple", "sexagenarian", "sexis",
	"nudibranch",
}

// IsIllegal reports whether text mentions both a restricted subject and
// explicit sexual content, in any order and anywhere in the text, line
// breaks included. A keyword matches at the start of a word together with
// any inflection ("childs", "pornography", "sexy"). Words that only share
// the stem, like "kidney" or "sextant", do not count, and neither does a
// stem inside another word ("canteen").
func IsIllegal(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, restrictedSubjects) && containsAny(lower, explicitSexual)
}

func containsAny(text string, stems []string) bool {
	for _, stem := range stems {
		if containsStem(text, stem) {
			return true
		}
	}
	return false
}

func containsStem(text, stem string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], stem)
		if i < 0 {
			return false
		}
		start := from + i
		if boundaryBefore(text, start) && !isBenign(text[start:wordEnd(text, start+len(stem))]) {
			return true
		}
		from = start + 1
	}
	return false
}

func isBenign(word string) bool {
	for _, b := range benignWords {
		if strings.HasPrefix(word, b) {
			return true
		}
	}
	return false
}

// wordEnd returns the index just past the word running through at.
func wordEnd(text string, at int) int {
	for at < len(text) {
		r, size := utf8.DecodeRuneInString(text[at:])
		if !isWordRune(r) {
			break
		}
		at += size
	}
	return at
}

func boundaryBefore(text string, at int) bool {
	if at == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:at])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
