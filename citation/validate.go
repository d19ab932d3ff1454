package citation

import (
	"fmt"
	"strings"

	"github.com/brunobiangulo/vidhi/structure"
)

// Status is the overall health verdict of an Act.
type Status string

const (
	Clean       Status = "clean"
	NeedsReview Status = "needs_review"
)

// Stats counts what the Act contains.
type Stats struct {
	Nodes       int `json:"nodes"`
	Parts       int `json:"parts"`
	Chapters    int `json:"chapters"`
	Sections    int `json:"sections"`
	Clauses     int `json:"clauses"`
	SubClauses  int `json:"subclauses"`
	Pages       int `json:"pages"`
	OCRPages    int `json:"ocr_pages"`
	FailedPages int `json:"failed_pages"`
}

// Report is the health report of one Act.
type Report struct {
	ActID          string            `json:"act_id"`
	AnomalyCount   int               `json:"anomaly_count"`
	EmptyLeafCount int               `json:"empty_leaf_count"`
	OCRFraction    float64           `json:"ocr_fraction"`
	Status         Status            `json:"status"`
	Issues         []structure.Issue `json:"issues,omitempty"`
	Stats          Stats             `json:"stats"`

	// Paths holds the assigned, collision-free path of every node.
	Paths map[*structure.Node]string `json:"-"`
}

// Options tune validation.
type Options struct {
	// ReviewAnomalyRatio is the anomalies-per-node ratio above which the
	// Act needs review.
	ReviewAnomalyRatio float64
}

// Validate assigns paths to every node of act and checks the tree. The
// Act is not modified except that the Path of its recorded issues is
// filled in. Calling Validate twice yields the same report.
func Validate(act *structure.Act, opts Options) *Report {
	v := &validator{
		act:     act,
		paths:   make(map[*structure.Node]string),
		counts:  make(map[string]int),
		visited: make(map[*structure.Node]bool),
	}
	v.walk(act.Children, Root)

	r := &Report{ActID: act.ID, Paths: v.paths, Stats: v.stats}

	for i := range act.Issues {
		is := &act.Issues[i]
		if is.Node != nil {
			is.Path = v.paths[is.Node]
		} else if is.Kind == structure.StructuralAnomaly {
			is.Path = Root
		}
	}
	r.Issues = append(r.Issues, act.Issues...)
	r.Issues = append(r.Issues, v.issues...)

	for _, is := range r.Issues {
		if is.Kind != structure.StructuralAnomaly {
			continue
		}
		r.AnomalyCount++
		if is.Code == structure.CodeEmptyLeaf {
			r.EmptyLeafCount++
		}
	}

	r.Stats.Pages = len(act.Pages)
	for _, p := range act.Pages {
		if p.OCRAttempted || p.Provenance == structure.ProvenanceOCR {
			r.Stats.OCRPages++
		}
		if p.Provenance == structure.ProvenanceFailed {
			r.Stats.FailedPages++
		}
	}
	if r.Stats.Pages > 0 {
		r.OCRFraction = float64(r.Stats.OCRPages) / float64(r.Stats.Pages)
	}

	r.Status = Clean
	ratio := float64(r.AnomalyCount) / float64(max(r.Stats.Nodes, 1))
	if act.Partial || ratio > opts.ReviewAnomalyRatio {
		r.Status = NeedsReview
	}
	return r
}

type validator struct {
	act     *structure.Act
	paths   map[*structure.Node]string
	counts  map[string]int
	visited map[*structure.Node]bool
	issues  []structure.Issue
	stats   Stats
}

func (v *validator) walk(nodes []*structure.Node, prefix string) {
	for _, n := range nodes {
		if v.visited[n] {
			v.issues = append(v.issues, structure.Issue{
				Kind:    structure.ValidationFailure,
				Code:    structure.CodeCycle,
				Message: fmt.Sprintf("%s reached twice under %s", n.Segment(), prefix),
				Page:    n.Page,
				Path:    v.paths[n],
			})
			continue
		}
		v.visited[n] = true
		v.count(n)

		// Collisions compare ordinal values, so "Dapha 5" and "Dapha ५"
		// under one parent are the same citation. Bracketed levels also
		// compare the family: "(1)" and "(a)" are different enumerations.
		base := prefix + "/" + n.Segment()
		path := base
		fam := 0
		if n.Kind == structure.Clause || n.Kind == structure.SubClause {
			fam = n.Ordinal.Kind.Family()
		}
		slot := fmt.Sprintf("%s/%d:%d:%d", prefix, n.Kind, fam, n.Ordinal.Value)
		v.counts[slot]++
		if k := v.counts[slot]; k > 1 {
			path = fmt.Sprintf("%s#%d", base, k)
			v.issues = append(v.issues, structure.Issue{
				Kind:    structure.ValidationFailure,
				Code:    structure.CodePathCollision,
				Message: fmt.Sprintf("%s repeats an assigned citation, using %s", base, path),
				Page:    n.Page,
				Path:    path,
				Node:    n,
			})
		}
		v.paths[n] = path

		if n.IsLeaf() && strings.TrimSpace(n.Text()) == "" {
			v.issues = append(v.issues, structure.Issue{
				Kind:    structure.StructuralAnomaly,
				Code:    structure.CodeEmptyLeaf,
				Message: fmt.Sprintf("%s has no text", n.Segment()),
				Page:    n.Page,
				Path:    path,
				Node:    n,
			})
		}

		v.walk(n.Children, path)
	}
}

func (v *validator) count(n *structure.Node) {
	v.stats.Nodes++
	switch n.Kind {
	case structure.Part:
		v.stats.Parts++
	case structure.Chapter:
		v.stats.Chapters++
	case structure.Section:
		v.stats.Sections++
	case structure.Clause:
		v.stats.Clauses++
	case structure.SubClause:
		v.stats.SubClauses++
	}
}
