package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/brunobiangulo/vidhi/numeral"
)

// ---------------------------------------------------------------------------
// Cross-reference detection
// ---------------------------------------------------------------------------

// crossRefPatterns match internal references in Nepali and English Acts.
// Go's \b is ASCII-only, so the Devanagari patterns anchor on the keyword.
var crossRefPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"subsection", regexp.MustCompile(`उपदफा\s*\(([०-९0-9]+)\)`)},
	{"section", regexp.MustCompile(`दफा\s*([०-९0-9]+)`)},
	{"clause", regexp.MustCompile(`खण्ड\s*\(([\p{Devanagari}a-z])\)`)},
	{"chapter", regexp.MustCompile(`परिच्छेद\s*[-–]?\s*([०-९0-9]+)`)},
	{"schedule", regexp.MustCompile(`अनुसूची\s*[-–]?\s*([०-९0-9]+)`)},
	{"section", regexp.MustCompile(`(?i)\bsection\s+(\d+)`)},
	{"chapter", regexp.MustCompile(`(?i)\bchapter\s+(\d+)`)},
	{"schedule", regexp.MustCompile(`(?i)\bschedule\s+([A-Z0-9]+)`)},
}

// CrossReference holds a detected cross-reference within text.
type CrossReference struct {
	FullMatch string `json:"full_match"`
	Target    string `json:"target"`
	Type      string `json:"type"`
	// Value is the target's ordinal value, 0 when it is not a numeral.
	Value  int `json:"value"`
	Offset int `json:"offset"`
}

// DetectCrossReferences scans text and returns all cross-references in
// order of appearance.
func DetectCrossReferences(text string) []CrossReference {
	var refs []CrossReference
	for _, p := range crossRefPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if len(loc) < 4 {
				continue
			}
			// "उपदफा १" is not a reference to दफा १.
			if p.typ == "section" && strings.HasSuffix(text[:loc[0]], "उप") {
				continue
			}
			ref := CrossReference{
				FullMatch: text[loc[0]:loc[1]],
				Target:    text[loc[2]:loc[3]],
				Type:      p.typ,
				Offset:    loc[0],
			}
			if n, ok := numeral.Normalize(ref.Target); ok {
				ref.Value = n.Value
			}
			refs = append(refs, ref)
		}
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Offset < refs[j].Offset })
	return refs
}

// HasCrossReferences reports whether text contains any cross-references.
func HasCrossReferences(text string) bool {
	return len(DetectCrossReferences(text)) > 0
}

// ---------------------------------------------------------------------------
// Definitions and schedules
// ---------------------------------------------------------------------------

var definitionHeadings = []string{"परिभाषा", "शब्दार्थ", "definition"}

var scheduleHeadings = []string{"अनुसूची", "तफसिल", "schedule"}

// IsDefinitionHeading reports whether a Section heading introduces the
// Act's definitions ("परिभाषा", "Definitions").
func IsDefinitionHeading(heading string) bool { return containsAny(heading, definitionHeadings) }

// IsSchedule reports whether a heading names a schedule.
func IsSchedule(heading string) bool { return containsAny(heading, scheduleHeadings) }

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// definedTermPattern matches `"अदालत" भन्नाले ...` and `"Court" means ...`.
var definedTermPattern = regexp.MustCompile(
	`^\s*["“'‘]([^"”'’]+)["”'’]\s*(?:भन्नाले|भन्नाका|(?i:means|shall\s+mean))`,
)

// DefinedTerm returns the quoted term a definition clause defines, or "".
func DefinedTerm(text string) string {
	m := definedTermPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ---------------------------------------------------------------------------
// Language hint
// ---------------------------------------------------------------------------

// Language hints.
const (
	Nepali  = "ne"
	English = "en"
	Mixed   = "mixed"
)

// LanguageHint classifies text by its letters: Nepali when at least 80%
// are Devanagari, English when at least 80% are Latin, mixed otherwise.
// Text without letters is Nepali.
func LanguageHint(text string) string {
	var dev, lat int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Devanagari, r) && (unicode.IsLetter(r) || unicode.IsMark(r)):
			dev++
		case unicode.Is(unicode.Latin, r):
			lat++
		}
	}
	total := dev + lat
	switch {
	case total == 0:
		return Nepali
	case float64(dev) >= 0.8*float64(total):
		return Nepali
	case float64(lat) >= 0.8*float64(total):
		return English
	}
	return Mixed
}
