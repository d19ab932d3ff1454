package marker

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Entry maps one heading keyword to the line kind it introduces.
type Entry struct {
	Keyword string
	Kind    Kind
}

// Lexicon is the declarative keyword table consulted by the Recognizer.
// Entries are kept longest-keyword first so "Sec." never shadows "Section".
type Lexicon struct {
	entries []Entry
}

// DefaultLexicon returns the bilingual keyword table for Nepali and
// English statutes.
func DefaultLexicon() *Lexicon {
	return NewLexicon([]Entry{
		{"भाग", PartHeading},
		{"Part", PartHeading},
		{"परिच्छेद", ChapterHeading},
		{"Chapter", ChapterHeading},
		{"दफा", SectionHeading},
		{"Section", SectionHeading},
		{"Sec.", SectionHeading},
		{"खण्ड", ClauseMarker},
		{"खंड", ClauseMarker},
		{"उपदफा", ClauseMarker},
		{"Khanda", ClauseMarker},
		{"Clause", ClauseMarker},
		{"उपखण्ड", SubClauseMarker},
		{"Sub-clause", SubClauseMarker},
	})
}

// NewLexicon builds a lexicon from entries. Duplicate keywords keep the
// last kind given.
func NewLexicon(entries []Entry) *Lexicon {
	byKw := make(map[string]Kind, len(entries))
	var order []string
	for _, e := range entries {
		kw := strings.TrimSpace(e.Keyword)
		if kw == "" {
			continue
		}
		if _, seen := byKw[kw]; !seen {
			order = append(order, kw)
		}
		byKw[kw] = e.Kind
	}
	sort.SliceStable(order, func(i, j int) bool { return len(order[i]) > len(order[j]) })

	l := &Lexicon{entries: make([]Entry, 0, len(order))}
	for _, kw := range order {
		l.entries = append(l.entries, Entry{Keyword: kw, Kind: byKw[kw]})
	}
	return l
}

// Entries returns a copy of the table in match order.
func (l *Lexicon) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Match returns the entry whose keyword prefixes line, and the remainder
// of the line after the keyword. Latin keywords match case-insensitively.
// The keyword must be followed by whitespace, a dash, a bracket or a digit,
// so "दफामा" does not match "दफा".
func (l *Lexicon) Match(line string) (Entry, string, bool) {
	for _, e := range l.entries {
		n := len(e.Keyword)
		if len(line) < n || !strings.EqualFold(line[:n], e.Keyword) {
			continue
		}
		rest := line[n:]
		if rest != "" && !startsAfterKeyword(rest) {
			continue
		}
		return e, rest, true
	}
	return Entry{}, "", false
}

// lexiconFile is the YAML shape accepted by LoadLexicon.
type lexiconFile struct {
	Part      []string `yaml:"part"`
	Chapter   []string `yaml:"chapter"`
	Section   []string `yaml:"section"`
	Clause    []string `yaml:"clause"`
	SubClause []string `yaml:"subclause"`
}

// LoadLexicon reads additional keywords from a YAML file and merges them
// over the default table.
//
//	part: [Bhag]
//	section: [Dafa]
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon is LoadLexicon over an in-memory document.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}

	entries := DefaultLexicon().Entries()
	add := func(kws []string, k Kind) {
		for _, kw := range kws {
			entries = append(entries, Entry{Keyword: kw, Kind: k})
		}
	}
	add(f.Part, PartHeading)
	add(f.Chapter, ChapterHeading)
	add(f.Section, SectionHeading)
	add(f.Clause, ClauseMarker)
	add(f.SubClause, SubClauseMarker)
	return NewLexicon(entries), nil
}
