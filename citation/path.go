// Package citation assigns citation paths to a structured Act, checks the
// tree's invariants and produces its health report.
package citation

import (
	"strings"

	"github.com/brunobiangulo/vidhi/numeral"
	"github.com/brunobiangulo/vidhi/structure"
)

// Root is the first segment of every path.
const Root = "Act"

// Segment is one (kind, ordinal) step of a path.
type Segment struct {
	Kind    structure.Kind  `json:"kind"`
	Ordinal numeral.Numeral `json:"ordinal"`
}

func (s Segment) String() string {
	n := structure.Node{Kind: s.Kind, Ordinal: s.Ordinal}
	return n.Segment()
}

// Path is the ordered list of segments from the Act down to a node.
type Path []Segment

// String renders the canonical form, e.g. "Act/Part 2/Dapha 14/Khanda (ग)".
func (p Path) String() string {
	var b strings.Builder
	b.WriteString(Root)
	for _, s := range p {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// PathOf follows parent links from n up to the Act. It does not apply
// collision suffixes; use Report.Paths for the assigned path.
func PathOf(n *structure.Node) Path {
	var p Path
	seen := make(map[*structure.Node]bool)
	for cur := n; cur != nil && !seen[cur]; cur = cur.Parent {
		seen[cur] = true
		p = append(p, Segment{Kind: cur.Kind, Ordinal: cur.Ordinal})
	}
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
	return p
}
