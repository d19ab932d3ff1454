package chunker

import (
	"strings"

	"github.com/brunobiangulo/vidhi/numeral"
	"github.com/brunobiangulo/vidhi/structure"
)

// keywords per numbering script, used for human-readable citations.
var keywords = map[structure.Kind][2]string{
	structure.Part:    {"भाग", "Part"},
	structure.Chapter: {"परिच्छेद", "Chapter"},
	structure.Section: {"दफा", "Section"},
}

func devanagari(n numeral.Numeral) bool {
	return n.Kind == numeral.DevanagariDigit || n.Kind == numeral.DevanagariLetter
}

func keyword(n *structure.Node) string {
	kw, ok := keywords[n.Kind]
	if !ok {
		return ""
	}
	if devanagari(n.Ordinal) {
		return kw[0]
	}
	return kw[1]
}

// ancestry returns n's ancestors from the top level down, n included.
func ancestry(n *structure.Node) []*structure.Node {
	var out []*structure.Node
	for cur := n; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// headerLine renders "दफा ३: उजुरी" for keyword levels and "(क) body"
// for bracketed ones.
func headerLine(n *structure.Node, withBody bool) string {
	if kw := keyword(n); kw != "" {
		line := kw + " " + n.Ordinal.String()
		if h := strings.TrimSpace(n.Heading); h != "" {
			line += ": " + h
		}
		if withBody && strings.TrimSpace(n.Body) != "" {
			line += "\n" + strings.TrimSpace(n.Body)
		}
		return line
	}
	return "(" + n.Ordinal.String() + ") " + strings.TrimSpace(n.Text())
}

// contextText is the node's text preceded by the headings of everything
// above it, so a clause reads with its Section title attached:
//
//	परिच्छेद १: प्रारम्भिक
//	दफा २: परिभाषा
//	(क) "अदालत" भन्नाले जिल्ला अदालत सम्झनु पर्छ।
//
// Bracketed ancestors contribute their own text since a sub-clause is
// usually the continuation of its clause's sentence.
func contextText(n *structure.Node) string {
	chain := ancestry(n)
	lines := make([]string, 0, len(chain))
	for i, a := range chain {
		lines = append(lines, headerLine(a, i == len(chain)-1))
	}
	return strings.Join(lines, "\n")
}

// humanCitation renders "घरेलु हिंसा ऐन, २०६६, दफा २(क)". Levels above the
// nearest Section are dropped once a Section is present, as in printed
// citations.
func humanCitation(title string, n *structure.Node) string {
	var b strings.Builder
	chain := ancestry(n)
	start := 0
	for i, a := range chain {
		if a.Kind == structure.Section {
			start = i
		}
	}
	for _, a := range chain[start:] {
		if kw := keyword(a); kw != "" {
			if b.Len() > 0 {
				b.WriteString(", ")
			}
			b.WriteString(kw + " " + a.Ordinal.String())
			continue
		}
		b.WriteString("(" + a.Ordinal.String() + ")")
	}
	if title == "" {
		return b.String()
	}
	return title + ", " + b.String()
}

// fullSuffix marks the citation of a comprehensive Section chunk.
func fullSuffix(sec *structure.Node) string {
	if devanagari(sec.Ordinal) {
		return " (पूर्ण)"
	}
	return " (full)"
}
