// Package marker classifies single lines of statute text into structural
// markers (Part, Chapter, Section headings and bracketed clause markers)
// or continuation text.
//
// Classification is a pure function of one line. Whether a bracketed
// marker such as "(क)" opens a Clause or a SubClause depends on what is
// currently open, so that decision belongs to the structurer.
package marker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brunobiangulo/vidhi/numeral"
)

// Kind is the classification of one line.
type Kind int

const (
	NoMarker Kind = iota
	PartHeading
	ChapterHeading
	SectionHeading
	ClauseMarker
	SubClauseMarker
	BracketedMarker
	ContinuationText
)

func (k Kind) String() string {
	switch k {
	case PartHeading:
		return "part_heading"
	case ChapterHeading:
		return "chapter_heading"
	case SectionHeading:
		return "section_heading"
	case ClauseMarker:
		return "clause_marker"
	case SubClauseMarker:
		return "subclause_marker"
	case BracketedMarker:
		return "bracketed_marker"
	case ContinuationText:
		return "continuation_text"
	default:
		return "no_marker"
	}
}

// IsMarker reports whether k opens a structural node (possibly after
// resolution by the structurer).
func (k Kind) IsMarker() bool {
	switch k {
	case PartHeading, ChapterHeading, SectionHeading, ClauseMarker, SubClauseMarker, BracketedMarker:
		return true
	}
	return false
}

// ClassifiedLine is the result of classifying one line.
type ClassifiedLine struct {
	Kind    Kind            `json:"kind"`
	Numeral numeral.Numeral `json:"numeral"`
	// Heading is the text on the marker line after the ordinal. For
	// bracketed and clause markers it is the first line of the body.
	Heading string `json:"heading,omitempty"`
	Keyword string `json:"keyword,omitempty"`
	Raw     string `json:"raw"`
}

// Recognizer classifies lines using a keyword lexicon.
type Recognizer struct {
	lex *Lexicon
	// NumberedSections treats "१. शीर्षक" / "3. Title" lines as Section
	// headings, the convention of Nepal Law Commission consolidated Acts.
	NumberedSections bool
}

// NewRecognizer returns a Recognizer over lex. A nil lexicon uses
// DefaultLexicon.
func NewRecognizer(lex *Lexicon, numberedSections bool) *Recognizer {
	if lex == nil {
		lex = DefaultLexicon()
	}
	return &Recognizer{lex: lex, NumberedSections: numberedSections}
}

// Classify classifies one line. First match wins:
//
//  1. section keyword + ordinal ("दफा ३", "Section 3")
//  2. numbered section line ("३. परिभाषा"), when enabled
//  3. clause keyword + ordinal ("खण्ड (क)")
//  4. bracketed letter or digit run at line start ("(क)", "(३)")
//  5. part keyword + ordinal ("भाग २", "Part II")
//  6. chapter keyword + ordinal ("परिच्छेद ३")
//  7. anything else is continuation text
func (r *Recognizer) Classify(line string) ClassifiedLine {
	raw := line
	line = strings.TrimSpace(line)
	if line == "" {
		return ClassifiedLine{Kind: NoMarker, Raw: raw}
	}

	entry, rest, hasKeyword := r.lex.Match(line)

	if hasKeyword && entry.Kind == SectionHeading {
		if n, heading, ok := keywordOrdinal(rest, false); ok {
			return ClassifiedLine{Kind: SectionHeading, Numeral: n, Heading: heading, Keyword: entry.Keyword, Raw: raw}
		}
	}

	if r.NumberedSections {
		if n, heading, ok := numberedSection(line); ok {
			return ClassifiedLine{Kind: SectionHeading, Numeral: n, Heading: heading, Raw: raw}
		}
	}

	if hasKeyword && (entry.Kind == ClauseMarker || entry.Kind == SubClauseMarker) {
		if n, heading, ok := keywordOrdinal(rest, false); ok {
			return ClassifiedLine{Kind: entry.Kind, Numeral: n, Heading: heading, Keyword: entry.Keyword, Raw: raw}
		}
	}

	if n, heading, ok := bracketed(line); ok {
		return ClassifiedLine{Kind: BracketedMarker, Numeral: n, Heading: heading, Raw: raw}
	}

	if hasKeyword && (entry.Kind == PartHeading || entry.Kind == ChapterHeading) {
		if n, heading, ok := keywordOrdinal(rest, true); ok {
			return ClassifiedLine{Kind: entry.Kind, Numeral: n, Heading: heading, Keyword: entry.Keyword, Raw: raw}
		}
	}

	return ClassifiedLine{Kind: ContinuationText, Heading: line, Raw: raw}
}

// ClassifyAll classifies every line of text, preserving order.
func (r *Recognizer) ClassifyAll(text string) []ClassifiedLine {
	lines := strings.Split(text, "\n")
	out := make([]ClassifiedLine, 0, len(lines))
	for _, l := range lines {
		out = append(out, r.Classify(l))
	}
	return out
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

const headingTrim = " \t.:-–—।)"

func isDash(r rune) bool { return r == '-' || r == '–' || r == '—' }

func startsAfterKeyword(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return unicode.IsSpace(r) || isDash(r) || r == '(' || r == ':' || numeral.IsDigit(r)
}

// keywordOrdinal reads the ordinal token that follows a heading keyword
// and returns it together with the heading text after it.
func keywordOrdinal(rest string, allowRoman bool) (numeral.Numeral, string, bool) {
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || isDash(r) || r == ':'
	})
	if rest == "" {
		return numeral.Numeral{}, "", false
	}

	end := strings.IndexFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || r == '.' || r == ':' || r == '।' || r == ',' || isDash(r)
	})
	if end < 0 {
		end = len(rest)
	}
	tok := rest[:end]
	heading := strings.Trim(rest[end:], headingTrim)

	if allowRoman && isRomanToken(tok) {
		if n, ok := numeral.NormalizeRoman(tok); ok {
			return n, heading, true
		}
	}
	n, ok := numeral.Normalize(tok)
	if !ok {
		return numeral.Numeral{}, "", false
	}
	// "Part A" and "Clause (a)" are markers; "Section a" is prose.
	if n.Kind == numeral.LatinLetter && !strings.HasPrefix(tok, "(") {
		if r, _ := utf8.DecodeRuneInString(n.Token); !unicode.IsUpper(r) {
			return numeral.Numeral{}, "", false
		}
	}
	return n, heading, true
}

func isRomanToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		switch r {
		case 'I', 'V', 'X', 'L':
		default:
			return false
		}
	}
	return true
}

// numberedSection matches "<digits>. <title>" or "<digits>। <title>". The
// character after the separator must not be a digit, so "1.1" and
// "२.५ प्रतिशत" stay continuation text.
func numberedSection(line string) (numeral.Numeral, string, bool) {
	i := 0
	for i < len(line) {
		r, size := utf8.DecodeRuneInString(line[i:])
		if !numeral.IsDigit(r) {
			break
		}
		i += size
	}
	if i == 0 || i == len(line) {
		return numeral.Numeral{}, "", false
	}
	sep, size := utf8.DecodeRuneInString(line[i:])
	if sep != '.' && sep != '।' {
		return numeral.Numeral{}, "", false
	}
	after := line[i+size:]
	if next, _ := utf8.DecodeRuneInString(after); after != "" && numeral.IsDigit(next) {
		return numeral.Numeral{}, "", false
	}
	n, ok := numeral.Normalize(line[:i])
	if !ok {
		return numeral.Numeral{}, "", false
	}
	return n, strings.Trim(after, headingTrim), true
}

// bracketed matches a line that starts with "(x)" where x is a single
// letter, a digit run or a multi-letter roman numeral ("(ii)"). A single
// "i", "v" or "x" stays a Latin letter; the structurer decides from the
// open enumeration.
func bracketed(line string) (numeral.Numeral, string, bool) {
	if !strings.HasPrefix(line, "(") {
		return numeral.Numeral{}, "", false
	}
	closeIdx := strings.IndexByte(line, ')')
	if closeIdx < 0 || closeIdx > 24 {
		return numeral.Numeral{}, "", false
	}
	inner := strings.TrimSpace(line[1:closeIdx])
	n, ok := numeral.Normalize(inner)
	if !ok && utf8.RuneCountInString(inner) > 1 {
		n, ok = numeral.NormalizeRoman(inner)
	}
	if !ok {
		return numeral.Numeral{}, "", false
	}
	return n, strings.TrimSpace(line[closeIdx+1:]), true
}
