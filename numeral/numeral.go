// Package numeral normalizes the ordinal markers found in Nepali and
// English statutes: Devanagari and Latin digit runs, Devanagari letter
// enumerations (क, ख, ग ...) and Latin letter enumerations (a, b, c ...).
//
// Every Numeral keeps the token it was parsed from so a citation can be
// rendered in the same numeral system the Act itself uses.
package numeral

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind identifies the numeral system of a token.
type Kind int

const (
	Unknown Kind = iota
	DevanagariDigit
	LatinDigit
	DevanagariLetter
	LatinLetter
	Roman
)

func (k Kind) String() string {
	switch k {
	case DevanagariDigit:
		return "devanagari_digit"
	case LatinDigit:
		return "latin_digit"
	case DevanagariLetter:
		return "devanagari_letter"
	case LatinLetter:
		return "latin_letter"
	case Roman:
		return "roman"
	default:
		return "unknown"
	}
}

// Family groups kinds that continue the same enumeration: Devanagari and
// Latin digits are one family, Devanagari and Latin letters another, roman
// numerals a third. Unknown is 0.
func (k Kind) Family() int {
	switch k {
	case DevanagariDigit, LatinDigit:
		return 1
	case DevanagariLetter, LatinLetter:
		return 2
	case Roman:
		return 3
	}
	return 0
}

// Numeral is a normalized ordinal. Value is the semantic position (1-based
// for letters), Token the source text with surrounding punctuation removed.
type Numeral struct {
	Kind  Kind   `json:"kind"`
	Value int    `json:"value"`
	Token string `json:"token"`
}

// IsZero reports whether n carries no ordinal.
func (n Numeral) IsZero() bool { return n.Kind == Unknown && n.Value == 0 && n.Token == "" }

// Less compares by semantic value only, so "३" and "3" are equal.
func (n Numeral) Less(o Numeral) bool { return n.Value < o.Value }

// Equal compares by semantic value only.
func (n Numeral) Equal(o Numeral) bool { return n.Value == o.Value }

// String renders the numeral in its source shape.
func (n Numeral) String() string { return Render(n) }

// DevanagariLetters is the fixed enumeration alphabet used for khanda
// markers. Position in the slice + 1 is the ordinal value.
var DevanagariLetters = []rune{
	'क', 'ख', 'ग', 'घ', 'ङ', 'च', 'छ', 'ज', 'झ', 'ञ',
	'ट', 'ठ', 'ड', 'ढ', 'ण', 'त', 'थ', 'द', 'ध', 'न',
	'प', 'फ', 'ब', 'भ', 'म', 'य', 'र', 'ल', 'व', 'श',
	'ष', 'स', 'ह',
}

var devanagariLetterIndex = func() map[rune]int {
	m := make(map[rune]int, len(DevanagariLetters))
	for i, r := range DevanagariLetters {
		m[r] = i + 1
	}
	return m
}()

// trimChars are stripped from both ends of a token before parsing.
const trimChars = "()[]{}.।:-–—) \t"

// Normalize parses token as an ordinal marker. Brackets, a trailing full
// stop or danda, and surrounding space are ignored. It returns false for
// anything that is not a numeral.
func Normalize(token string) (Numeral, bool) {
	core := strings.Trim(token, trimChars)
	if core == "" {
		return Numeral{}, false
	}

	if v, kind, ok := parseDigits(core); ok {
		return Numeral{Kind: kind, Value: v, Token: core}, true
	}

	if utf8.RuneCountInString(core) == 1 {
		r, _ := utf8.DecodeRuneInString(core)
		if v, ok := devanagariLetterIndex[r]; ok {
			return Numeral{Kind: DevanagariLetter, Value: v, Token: core}, true
		}
		if r >= 'a' && r <= 'z' {
			return Numeral{Kind: LatinLetter, Value: int(r-'a') + 1, Token: core}, true
		}
		if r >= 'A' && r <= 'Z' {
			return Numeral{Kind: LatinLetter, Value: int(r-'A') + 1, Token: core}, true
		}
	}
	return Numeral{}, false
}

// NormalizeRoman parses a lower- or upper-case roman numeral (i to xxxix).
// Roman numerals collide with Latin letter enumerations ("i", "v", "x"),
// so callers opt in explicitly.
func NormalizeRoman(token string) (Numeral, bool) {
	core := strings.Trim(token, trimChars)
	if core == "" || len(core) > 8 {
		return Numeral{}, false
	}
	v := romanValue(strings.ToLower(core))
	if v == 0 {
		return Numeral{}, false
	}
	return Numeral{Kind: Roman, Value: v, Token: core}, true
}

// Parse parses a run of digits that may mix Devanagari and Latin digits
// ("१2" is 12, an OCR artefact seen in scanned gazettes). The kind is the
// system of the first digit.
func Parse(digits string) (int, Kind, bool) {
	return parseDigits(strings.TrimSpace(digits))
}

func parseDigits(s string) (int, Kind, bool) {
	if s == "" {
		return 0, Unknown, false
	}
	v := 0
	kind := Unknown
	n := 0
	for _, r := range s {
		d, k, ok := digitValue(r)
		if !ok {
			return 0, Unknown, false
		}
		if kind == Unknown {
			kind = k
		}
		v = v*10 + d
		n++
		if n > 6 {
			return 0, Unknown, false
		}
	}
	return v, kind, true
}

// IsDigit reports whether r is a Devanagari or Latin decimal digit.
func IsDigit(r rune) bool {
	_, _, ok := digitValue(r)
	return ok
}

func digitValue(r rune) (int, Kind, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), LatinDigit, true
	case r >= '०' && r <= '९':
		return int(r - '०'), DevanagariDigit, true
	}
	return 0, Unknown, false
}

// Render returns the display form of n in its source numeral system. When
// the source token is available it is returned unchanged, otherwise the
// value is formatted in n.Kind.
func Render(n Numeral) string {
	if n.Token != "" {
		return n.Token
	}
	return Format(n.Kind, n.Value)
}

// Format renders value in the given numeral system.
func Format(kind Kind, value int) string {
	switch kind {
	case DevanagariDigit:
		latin := strconv.Itoa(value)
		var b strings.Builder
		for _, r := range latin {
			b.WriteRune('०' + (r - '0'))
		}
		return b.String()
	case DevanagariLetter:
		if value >= 1 && value <= len(DevanagariLetters) {
			return string(DevanagariLetters[value-1])
		}
	case LatinLetter:
		if value >= 1 && value <= 26 {
			return string(rune('a' + value - 1))
		}
	case Roman:
		return romanFormat(value)
	}
	return strconv.Itoa(value)
}

var romanNumerals = []struct {
	v int
	s string
}{
	{10, "x"}, {9, "ix"}, {5, "v"}, {4, "iv"}, {1, "i"},
}

func romanFormat(v int) string {
	if v <= 0 || v >= 40 {
		return strconv.Itoa(v)
	}
	var b strings.Builder
	for _, rn := range romanNumerals {
		for v >= rn.v {
			b.WriteString(rn.s)
			v -= rn.v
		}
	}
	return b.String()
}

func romanValue(s string) int {
	for v := 1; v < 40; v++ {
		if romanFormat(v) == s {
			return v
		}
	}
	return 0
}
