package structure

import "time"

// IssueKind is the recoverable error taxonomy. Issues are recorded on the
// Act; none of them stops structuring.
type IssueKind string

const (
	ExtractionFailure IssueKind = "extraction_failure"
	StructuralAnomaly IssueKind = "structural_anomaly"
	ValidationFailure IssueKind = "validation_failure"
)

// Issue codes.
const (
	CodeNonMonotonic  = "non_monotonic_ordinal"
	CodeDuplicate     = "duplicate_ordinal"
	CodeOrphanMarker  = "orphan_marker"
	CodePageGap       = "page_gap"
	CodeEmptyLeaf     = "empty_leaf"
	CodePathCollision = "path_collision"
	CodeCycle         = "cycle"
)

// Issue is one recorded problem.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Page    int       `json:"page,omitempty"`
	// Path is filled in by the citation builder once paths exist.
	Path string `json:"path,omitempty"`

	Node *Node `json:"-"`
}

// Page summarizes how one page's text was obtained.
type Page struct {
	Index        int        `json:"index"`
	Provenance   Provenance `json:"provenance"`
	Confidence   float64    `json:"confidence"`
	OCRAttempted bool       `json:"ocr_attempted"`
}

// Act is the root of a structured statute.
type Act struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Date     string    `json:"date,omitempty"`
	SourceID string    `json:"source_id"`
	Preamble string    `json:"preamble,omitempty"`
	Children []*Node   `json:"children"`
	Issues   []Issue   `json:"issues,omitempty"`
	Pages    []Page    `json:"pages"`
	Partial  bool      `json:"partial"`
	Created  time.Time `json:"created"`
}

// NodeCount returns the number of structural nodes in the Act.
func (a *Act) NodeCount() int {
	n := 0
	Walk(a.Children, func(*Node, int) bool { n++; return true })
	return n
}

// Anomalies returns the issues of kind StructuralAnomaly.
func (a *Act) Anomalies() []Issue {
	var out []Issue
	for _, is := range a.Issues {
		if is.Kind == StructuralAnomaly {
			out = append(out, is)
		}
	}
	return out
}

// Release drops the tree once chunks have been handed off. Metadata and
// issues stay for reporting.
func (a *Act) Release() {
	a.Children = nil
	for i := range a.Issues {
		a.Issues[i].Node = nil
	}
}

func (a *Act) record(is Issue) { a.Issues = append(a.Issues, is) }
