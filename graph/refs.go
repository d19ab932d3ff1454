// Package graph resolves the cross references inside an Act ("दफा ३
// बमोजिम", "Section 12") to citation paths and walks the resulting graph.
package graph

import (
	"strings"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/numeral"
	"github.com/brunobiangulo/vidhi/store"
	"github.com/brunobiangulo/vidhi/structure"
)

// Reference types, as reported by chunker.DetectCrossReferences.
const (
	RefSection    = "section"
	RefSubsection = "subsection"
	RefClause     = "clause"
	RefChapter    = "chapter"
	RefSchedule   = "schedule"
)

// scopeGap is the most bytes allowed between a section reference and a
// following clause reference for the clause to belong to that section, as
// in "दफा ५ को खण्ड (क)".
const scopeGap = 16

const (
	famDigit = iota + 1
	famLetter
)

// key identifies a structural node by label and ordinal.
type key struct {
	label string
	fam   int
	value int
}

// index maps ordinals to the citation paths present in an Act.
type index struct {
	top       map[key]string            // sections and chapters
	children  map[string]map[key]string // section path -> clauses
	schedules map[int]string
}

func buildIndex(chunks []chunker.Chunk) *index {
	idx := &index{
		top:       make(map[key]string),
		children:  make(map[string]map[key]string),
		schedules: make(map[int]string),
	}
	for _, c := range chunks {
		path := strings.TrimSuffix(c.CitationPath, "/Full")
		segs := strings.Split(path, "/")
		for i := 1; i < len(segs); i++ {
			k, ok := parseSegment(segs[i])
			if !ok {
				continue
			}
			prefix := strings.Join(segs[:i+1], "/")
			switch k.label {
			case structure.Section.Label(), structure.Chapter.Label():
				k.fam = 0
				if _, seen := idx.top[k]; !seen {
					idx.top[k] = prefix
				}
			case structure.Clause.Label():
				parent := strings.Join(segs[:i], "/")
				m := idx.children[parent]
				if m == nil {
					m = make(map[key]string)
					idx.children[parent] = m
				}
				if _, seen := m[k]; !seen {
					m[k] = prefix
				}
			}
		}
		if c.IsSchedule {
			for _, r := range chunker.DetectCrossReferences(c.Heading) {
				if r.Type == RefSchedule && r.Value > 0 {
					if _, seen := idx.schedules[r.Value]; !seen {
						idx.schedules[r.Value] = c.CitationPath
					}
				}
			}
		}
	}
	return idx
}

// parseSegment reads "Dapha १४", "Khanda (ग)" or "Dapha ५#2". Collision
// suffixes are dropped so a duplicated section still resolves.
func parseSegment(seg string) (key, bool) {
	if i := strings.LastIndex(seg, "#"); i >= 0 {
		seg = seg[:i]
	}
	label, tok, ok := strings.Cut(seg, " ")
	if !ok {
		return key{}, false
	}
	n, ok := numeral.Normalize(tok)
	if !ok {
		if n, ok = numeral.NormalizeRoman(tok); !ok {
			return key{}, false
		}
	}
	return key{label: label, fam: family(n.Kind), value: n.Value}, true
}

func family(k numeral.Kind) int {
	switch k {
	case numeral.DevanagariDigit, numeral.LatinDigit:
		return famDigit
	case numeral.DevanagariLetter, numeral.LatinLetter:
		return famLetter
	}
	return 0
}

// enclosingSection returns the prefix of path ending at its Section
// segment, or "" when path is not inside a Section.
func enclosingSection(path string) string {
	segs := strings.Split(strings.TrimSuffix(path, "/Full"), "/")
	for i := len(segs) - 1; i > 0; i-- {
		if k, ok := parseSegment(segs[i]); ok && k.label == structure.Section.Label() {
			return strings.Join(segs[:i+1], "/")
		}
	}
	return ""
}

// Resolve maps the detected cross references of chunks to citation paths
// of the same Act. References that match nothing are kept unresolved.
// Comprehensive chunks repeat their children's text and are skipped.
func Resolve(actID string, chunks []chunker.Chunk) []store.Reference {
	idx := buildIndex(chunks)
	var refs []store.Reference
	for _, c := range chunks {
		if c.Comprehensive || len(c.CrossReferences) == 0 {
			continue
		}
		section := enclosingSection(c.CitationPath)
		seen := make(map[string]bool)
		lastSection, lastEnd := "", -1

		for _, cr := range c.CrossReferences {
			to := ""
			switch cr.Type {
			case RefSection:
				to = idx.top[key{label: structure.Section.Label(), value: cr.Value}]
				lastSection, lastEnd = to, cr.Offset+len(cr.FullMatch)
			case RefChapter:
				to = idx.top[key{label: structure.Chapter.Label(), value: cr.Value}]
			case RefClause, RefSubsection:
				scope := section
				if lastEnd >= 0 && cr.Offset-lastEnd <= scopeGap {
					scope = lastSection
				}
				fam := famLetter
				if cr.Type == RefSubsection {
					fam = famDigit
				}
				to = idx.children[scope][key{label: structure.Clause.Label(), fam: fam, value: cr.Value}]
			case RefSchedule:
				to = idx.schedules[cr.Value]
			}
			if cr.Value == 0 {
				to = ""
			}
			if to == c.CitationPath {
				continue
			}
			k := cr.FullMatch + "\x00" + to
			if seen[k] {
				continue
			}
			seen[k] = true
			refs = append(refs, store.Reference{
				ActID:    actID,
				From:     c.CitationPath,
				To:       to,
				Type:     cr.Type,
				Text:     cr.FullMatch,
				Resolved: to != "",
			})
		}
	}
	return refs
}
