package structure

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/brunobiangulo/vidhi/marker"
	"github.com/brunobiangulo/vidhi/numeral"
)

// Line is a classified line together with where it came from.
type Line struct {
	marker.ClassifiedLine
	Page       int
	Provenance Provenance
	Confidence float64
}

// ClassifyPage splits one page of text into lines and classifies each.
func ClassifyPage(r *marker.Recognizer, text string, page int, prov Provenance, confidence float64) []Line {
	classified := r.ClassifyAll(text)
	out := make([]Line, 0, len(classified))
	for _, cl := range classified {
		out = append(out, Line{ClassifiedLine: cl, Page: page, Provenance: prov, Confidence: confidence})
	}
	return out
}

// Structurer builds the node tree of one Act from classified lines. A
// Structurer holds no per-Act state and may be shared, but a single Build
// call is single-threaded.
type Structurer struct {
	logger *slog.Logger
}

// New returns a Structurer. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Structurer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Structurer{logger: logger}
}

// Build replaces act's tree, preamble and issues with the result of
// structuring lines. Problems are recorded as issues on act; Build never
// fails. The same input always yields the same tree.
func (s *Structurer) Build(act *Act, lines []Line) {
	act.Children = nil
	act.Preamble = ""
	act.Issues = nil
	act.Partial = false

	for _, p := range act.Pages {
		if p.Provenance != ProvenanceFailed {
			continue
		}
		act.Partial = true
		act.record(Issue{
			Kind:    ExtractionFailure,
			Code:    CodePageGap,
			Message: fmt.Sprintf("page %d yielded no text", p.Index),
			Page:    p.Index,
		})
	}

	b := &builder{act: act, logger: s.logger}
	b.root = &Node{Kind: ActRoot, Confidence: 1}
	b.stack = []*Node{b.root}

	for _, l := range lines {
		b.feed(l)
	}
	b.popTo(0)
	b.root.freeze()

	act.Children = b.root.Children
	for _, n := range act.Children {
		n.Parent = nil
	}
	act.Preamble = strings.Join(b.preamble, "\n")

	s.logger.Debug("structure: built act",
		"source_id", act.SourceID,
		"lines", len(lines),
		"nodes", act.NodeCount(),
		"issues", len(act.Issues),
		"partial", act.Partial)
}

// builder is the pushdown machine for one Build call. stack[0] is the
// Act root and is never popped.
type builder struct {
	act      *Act
	logger   *slog.Logger
	root     *Node
	stack    []*Node
	preamble []string
}

func (b *builder) top() *Node { return b.stack[len(b.stack)-1] }

func (b *builder) feed(l Line) {
	switch l.Kind {
	case marker.NoMarker:
	case marker.PartHeading:
		b.open(Part, l)
	case marker.ChapterHeading:
		b.open(Chapter, l)
	case marker.SectionHeading:
		b.open(Section, l)
	case marker.ClauseMarker:
		b.open(Clause, l)
	case marker.SubClauseMarker:
		b.open(SubClause, l)
	case marker.BracketedMarker:
		b.bracketed(l)
	default:
		b.continuation(l.Heading, l)
	}
}

func (b *builder) continuation(text string, l Line) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	top := b.top()
	if top == b.root {
		b.preamble = append(b.preamble, text)
		return
	}
	top.appendBody(text, l.Confidence)
}

// open attaches a node of kind under the nearest open node that may hold
// it, closing everything above that node.
func (b *builder) open(kind Kind, l Line) {
	for i := len(b.stack) - 1; i >= 0; i-- {
		if kind.CanParent(b.stack[i].Kind) {
			b.attach(i, kind, l)
			return
		}
	}

	top := b.top()
	var node *Node
	if top != b.root {
		node = top
	}
	b.anomaly(Issue{
		Code:    CodeOrphanMarker,
		Message: fmt.Sprintf("%s marker %q has no open parent (inside %s)", kind, strings.TrimSpace(l.Raw), top.Kind),
		Page:    l.Page,
		Node:    node,
	})
	b.continuation(l.Raw, l)
}

// bracketed resolves a "(x)" marker against the open nodes. An open
// Clause or SubClause numbered in the same family (digits, letters,
// roman) takes the marker as its next sibling. Otherwise the marker opens
// a Clause under a Section or a SubClause under a Clause; anywhere else
// it is plain text.
func (b *builder) bracketed(l Line) {
	l.Numeral = b.romanOrdinal(l.Numeral)
	fam := l.Numeral.Kind.Family()
	for i := len(b.stack) - 1; i > 0; i-- {
		n := b.stack[i]
		if n.Kind != Clause && n.Kind != SubClause {
			break
		}
		if n.Ordinal.Kind.Family() == fam {
			b.attach(i-1, n.Kind, l)
			return
		}
	}

	switch b.top().Kind {
	case Section:
		b.attach(len(b.stack)-1, Clause, l)
	case Clause:
		b.attach(len(b.stack)-1, SubClause, l)
	default:
		b.continuation(l.Raw, l)
	}
}

// romanOrdinal reads a single-letter marker ("i", "v", "x") as a roman
// numeral when the open enumeration calls for one: it continues an open
// roman run, it is "i" nested under a lettered node that it does not
// continue ("(i)" after "(a)" but not after "(h)"), or it is "i" opening
// a Section's first clause.
func (b *builder) romanOrdinal(n numeral.Numeral) numeral.Numeral {
	if n.Kind != numeral.LatinLetter {
		return n
	}
	r, ok := numeral.NormalizeRoman(n.Token)
	if !ok {
		return n
	}
	for i := len(b.stack) - 1; i > 0; i-- {
		open := b.stack[i]
		if open.Kind != Clause && open.Kind != SubClause {
			break
		}
		switch open.Ordinal.Kind.Family() {
		case numeral.Roman.Family():
			if r.Value == open.Ordinal.Value+1 {
				return r
			}
		case numeral.LatinLetter.Family():
			if r.Value == 1 && n.Value != open.Ordinal.Value+1 {
				return r
			}
			return n
		}
	}
	// "(i)" opening a Section's enumeration: letters start at "a".
	if r.Value == 1 && b.top().Kind == Section {
		return r
	}
	return n
}

func (b *builder) attach(parentIdx int, kind Kind, l Line) {
	b.popTo(parentIdx)
	parent := b.stack[parentIdx]

	n := &Node{
		Kind:       kind,
		Ordinal:    l.Numeral,
		Page:       l.Page,
		Provenance: l.Provenance,
		Confidence: l.Confidence,
		Parent:     parent,
	}
	if rules[kind].bracketed {
		n.Body = l.Heading
	} else {
		n.Heading = l.Heading
	}

	if prev := parent.lastOfKind(kind); prev != nil && !prev.Ordinal.Less(n.Ordinal) {
		code, what := CodeNonMonotonic, "does not follow"
		if prev.Ordinal.Equal(n.Ordinal) {
			code, what = CodeDuplicate, "repeats"
		}
		b.anomaly(Issue{
			Code:    code,
			Message: fmt.Sprintf("%s %s %s", n.Segment(), what, prev.Segment()),
			Page:    l.Page,
			Node:    n,
		})
	}

	parent.Children = append(parent.Children, n)
	b.stack = append(b.stack, n)
}

// popTo closes every node above stack index i.
func (b *builder) popTo(i int) {
	for len(b.stack)-1 > i {
		b.top().freeze()
		b.stack = b.stack[:len(b.stack)-1]
	}
}

func (b *builder) anomaly(is Issue) {
	is.Kind = StructuralAnomaly
	b.act.record(is)
	b.logger.Debug("structure: anomaly",
		"source_id", b.act.SourceID,
		"code", is.Code,
		"page", is.Page,
		"message", is.Message)
}
