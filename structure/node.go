// Package structure turns a stream of classified statute lines into the
// Act > Part > Chapter > Section > Clause > SubClause tree.
package structure

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/vidhi/numeral"
)

// Kind is the structural level of a Node.
type Kind int

const (
	// ActRoot is the bottom of the structurer's stack. It never appears
	// as a Node in a finished Act; its children become Act.Children.
	ActRoot Kind = iota
	Part
	Chapter
	Section
	Clause
	SubClause
)

// rule is one row of the kind dispatch table.
type rule struct {
	name    string
	label   string
	parents []Kind
	// bracketed ordinals render as "(ग)" in citations.
	bracketed bool
}

var rules = map[Kind]rule{
	ActRoot:   {name: "act", label: "Act"},
	Part:      {name: "part", label: "Part", parents: []Kind{ActRoot}},
	Chapter:   {name: "chapter", label: "Chapter", parents: []Kind{ActRoot, Part}},
	Section:   {name: "section", label: "Dapha", parents: []Kind{ActRoot, Part, Chapter}},
	Clause:    {name: "clause", label: "Khanda", parents: []Kind{Section}, bracketed: true},
	SubClause: {name: "subclause", label: "Upakhanda", parents: []Kind{Clause}, bracketed: true},
}

func (k Kind) String() string {
	if r, ok := rules[k]; ok {
		return r.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, r := range rules {
		if r.name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown node kind %q", b)
}

// Label is the citation label for the kind ("Dapha" for a Section).
func (k Kind) Label() string { return rules[k].label }

// CanParent reports whether a node of kind parent may hold a child of kind k.
func (k Kind) CanParent(parent Kind) bool {
	for _, p := range rules[k].parents {
		if p == parent {
			return true
		}
	}
	return false
}

// Provenance records where a page's text came from.
type Provenance string

const (
	ProvenanceDigital Provenance = "digital"
	ProvenanceOCR     Provenance = "ocr"
	ProvenanceFailed  Provenance = "failed"
)

// Node is one structural unit of an Act.
type Node struct {
	Kind       Kind            `json:"kind"`
	Ordinal    numeral.Numeral `json:"ordinal"`
	Heading    string          `json:"heading,omitempty"`
	Body       string          `json:"body,omitempty"`
	Children   []*Node         `json:"children,omitempty"`
	Page       int             `json:"page"`
	Provenance Provenance      `json:"provenance"`
	Confidence float64         `json:"confidence"`

	// Parent is nil for top-level nodes.
	Parent *Node `json:"-"`

	frozen bool
}

// Frozen reports whether the node has been closed by the structurer.
func (n *Node) Frozen() bool { return n.frozen }

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Segment renders the node's citation segment, e.g. "Dapha १४" or
// "Khanda (ग)". The ordinal keeps its source numeral system.
func (n *Node) Segment() string {
	ord := numeral.Render(n.Ordinal)
	if rules[n.Kind].bracketed {
		ord = "(" + ord + ")"
	}
	return n.Kind.Label() + " " + ord
}

// Text returns the heading and body joined for display.
func (n *Node) Text() string {
	switch {
	case n.Heading == "":
		return n.Body
	case n.Body == "":
		return n.Heading
	}
	return n.Heading + "\n" + n.Body
}

func (n *Node) appendBody(text string, confidence float64) {
	if text == "" {
		return
	}
	if n.Body == "" {
		n.Body = text
	} else {
		n.Body += "\n" + text
	}
	if confidence < n.Confidence {
		n.Confidence = confidence
	}
}

func (n *Node) freeze() { n.frozen = true }

// lastOfKind returns the most recent child of the given kind.
func (n *Node) lastOfKind(k Kind) *Node {
	for i := len(n.Children) - 1; i >= 0; i-- {
		if n.Children[i].Kind == k {
			return n.Children[i]
		}
	}
	return nil
}

// Walk visits nodes and their descendants in document order. Returning false
// from fn skips the node's children.
func Walk(nodes []*Node, fn func(n *Node, depth int) bool) {
	var visit func(ns []*Node, depth int)
	visit = func(ns []*Node, depth int) {
		for _, n := range ns {
			if fn(n, depth) {
				visit(n.Children, depth+1)
			}
		}
	}
	visit(nodes, 0)
}

// Dump renders a compact outline of the tree, one node per line. It is
// used in logs and tests.
func Dump(nodes []*Node) string {
	var b strings.Builder
	Walk(nodes, func(n *Node, depth int) bool {
		fmt.Fprintf(&b, "%s%s", strings.Repeat("  ", depth), n.Segment())
		if n.Heading != "" {
			fmt.Fprintf(&b, " [%s]", n.Heading)
		}
		if n.Body != "" {
			fmt.Fprintf(&b, " %q", n.Body)
		}
		b.WriteByte('\n')
		return true
	})
	return b.String()
}
