package citation

import (
	"testing"

	"github.com/brunobiangulo/vidhi/marker"
	"github.com/brunobiangulo/vidhi/numeral"
	"github.com/brunobiangulo/vidhi/structure"
)

func structured(t *testing.T, text string, pages ...structure.Page) *structure.Act {
	t.Helper()
	if len(pages) == 0 {
		pages = []structure.Page{{Index: 1, Provenance: structure.ProvenanceDigital, Confidence: 1}}
	}
	act := &structure.Act{ID: "act-1", Pages: pages}
	r := marker.NewRecognizer(nil, true)
	structure.New(nil).Build(act, structure.ClassifyPage(r, text, 1, structure.ProvenanceDigital, 1))
	return act
}

func codes(issues []structure.Issue) map[string]int {
	m := make(map[string]int)
	for _, is := range issues {
		m[is.Code]++
	}
	return m
}

// ---------------------------------------------------------------------------
// Paths
// ---------------------------------------------------------------------------

func TestCanonicalPath(t *testing.T) {
	act := structured(t, "भाग २ सामान्य\nदफा १४ परिभाषा\n(क) एक\n(ख) दुई\n(ग) तीन")
	r := Validate(act, Options{ReviewAnomalyRatio: 0.05})

	clause := act.Children[0].Children[0].Children[2]
	want := "Act/Part २/Dapha १४/Khanda (ग)"
	if got := r.Paths[clause]; got != want {
		t.Errorf("path = %q, want %q", got, want)
	}
	if got := PathOf(clause).String(); got != want {
		t.Errorf("PathOf = %q, want %q", got, want)
	}
	if r.Status != Clean {
		t.Errorf("status = %s, want clean (issues %v)", r.Status, codes(r.Issues))
	}
}

func TestLatinPathKeepsLatinDigits(t *testing.T) {
	act := structured(t, "Part 2\nSection 14 Definitions\n(a) one")
	r := Validate(act, Options{ReviewAnomalyRatio: 1})
	clause := act.Children[0].Children[0].Children[0]
	if got := r.Paths[clause]; got != "Act/Part 2/Dapha 14/Khanda (a)" {
		t.Errorf("path = %q", got)
	}
}

func TestPathsAreUnique(t *testing.T) {
	act := structured(t, "दफा ४\nपाठ\nदफा ५\nपहिलो\nदफा ५\nदोस्रो\n(क) खण्ड")
	r := Validate(act, Options{ReviewAnomalyRatio: 1})

	seen := make(map[string]bool)
	for _, p := range r.Paths {
		if seen[p] {
			t.Errorf("duplicate path %q", p)
		}
		seen[p] = true
	}

	dup := act.Children[2]
	if got := r.Paths[dup]; got != "Act/Dapha ५#2" {
		t.Errorf("duplicate path = %q, want suffix #2", got)
	}
	if got := r.Paths[dup.Children[0]]; got != "Act/Dapha ५#2/Khanda (क)" {
		t.Errorf("child of duplicate = %q", got)
	}
	if got := r.Paths[act.Children[1]]; got != "Act/Dapha ५" {
		t.Errorf("first occurrence = %q, want plain path", got)
	}

	c := codes(r.Issues)
	if c[structure.CodeDuplicate] != 1 || c[structure.CodePathCollision] != 1 {
		t.Errorf("issues = %v", c)
	}
	if r.AnomalyCount != 1 {
		t.Errorf("anomaly count = %d, want 1", r.AnomalyCount)
	}
	for _, is := range r.Issues {
		if is.Code == structure.CodeDuplicate && is.Path != "Act/Dapha ५#2" {
			t.Errorf("duplicate issue path = %q", is.Path)
		}
	}
}

func TestCollisionAcrossNumeralSystems(t *testing.T) {
	act := structured(t, "दफा ४\nपाठ\nदफा 5\nपहिलो\nदफा ५\nदोस्रो")
	r := Validate(act, Options{ReviewAnomalyRatio: 1})

	if got := r.Paths[act.Children[1]]; got != "Act/Dapha 5" {
		t.Errorf("first occurrence = %q", got)
	}
	if got := r.Paths[act.Children[2]]; got != "Act/Dapha ५#2" {
		t.Errorf("second occurrence = %q, want suffix #2", got)
	}
	if c := codes(r.Issues); c[structure.CodePathCollision] != 1 || c[structure.CodeDuplicate] != 1 {
		t.Errorf("issues = %v", c)
	}
}

func TestBracketFamiliesDoNotCollide(t *testing.T) {
	sec := &structure.Node{Kind: structure.Section, Ordinal: numeral.Numeral{Kind: numeral.LatinDigit, Value: 1, Token: "1"}, Heading: "x"}
	digit := &structure.Node{Kind: structure.Clause, Ordinal: numeral.Numeral{Kind: numeral.LatinDigit, Value: 1, Token: "1"}, Body: "one", Parent: sec}
	letter := &structure.Node{Kind: structure.Clause, Ordinal: numeral.Numeral{Kind: numeral.LatinLetter, Value: 1, Token: "a"}, Body: "a", Parent: sec}
	sec.Children = []*structure.Node{digit, letter}
	act := &structure.Act{ID: "act-1", Children: []*structure.Node{sec}}

	r := Validate(act, Options{ReviewAnomalyRatio: 1})
	if got := r.Paths[letter]; got != "Act/Dapha 1/Khanda (a)" {
		t.Errorf("letter clause = %q", got)
	}
	if c := codes(r.Issues); c[structure.CodePathCollision] != 0 {
		t.Errorf("issues = %v", c)
	}
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestEmptyLeaf(t *testing.T) {
	act := structured(t, "दफा १\nदफा २ नाम\nपाठ")
	r := Validate(act, Options{ReviewAnomalyRatio: 0.05})
	if r.EmptyLeafCount != 1 || r.AnomalyCount != 1 {
		t.Errorf("empty=%d anomalies=%d, want 1/1", r.EmptyLeafCount, r.AnomalyCount)
	}
	// One anomaly over two nodes is above 5%.
	if r.Status != NeedsReview {
		t.Errorf("status = %s, want needs_review", r.Status)
	}
}

func TestOCRFractionAndPartial(t *testing.T) {
	act := structured(t, "दफा १ नाम\nपाठ",
		structure.Page{Index: 1, Provenance: structure.ProvenanceDigital, Confidence: 1},
		structure.Page{Index: 2, Provenance: structure.ProvenanceFailed, OCRAttempted: true},
		structure.Page{Index: 3, Provenance: structure.ProvenanceOCR, Confidence: 0.8, OCRAttempted: true},
		structure.Page{Index: 4, Provenance: structure.ProvenanceDigital, Confidence: 1},
	)
	r := Validate(act, Options{ReviewAnomalyRatio: 0.5})

	if r.OCRFraction != 0.5 {
		t.Errorf("ocr fraction = %v, want 0.5", r.OCRFraction)
	}
	if r.Stats.FailedPages != 1 {
		t.Errorf("failed pages = %d", r.Stats.FailedPages)
	}
	if r.Status != NeedsReview {
		t.Error("partial act should need review")
	}
	if r.AnomalyCount != 0 {
		t.Errorf("page gap must not count as anomaly, got %d", r.AnomalyCount)
	}
}

func TestValidateIsRepeatable(t *testing.T) {
	act := structured(t, "दफा ५\nक\nदफा ५\nख\nदफा ६")
	a := Validate(act, Options{ReviewAnomalyRatio: 0.05})
	b := Validate(act, Options{ReviewAnomalyRatio: 0.05})
	if len(a.Issues) != len(b.Issues) || a.AnomalyCount != b.AnomalyCount || a.Status != b.Status {
		t.Errorf("reports differ: %+v vs %+v", a, b)
	}
	if len(act.Issues) != 1 {
		t.Errorf("act issues grew to %d", len(act.Issues))
	}
}

func TestCycleDetected(t *testing.T) {
	sec := &structure.Node{Kind: structure.Section, Ordinal: numeral.Numeral{Kind: numeral.LatinDigit, Value: 1, Token: "1"}, Body: "x"}
	clause := &structure.Node{Kind: structure.Clause, Ordinal: numeral.Numeral{Kind: numeral.LatinLetter, Value: 1, Token: "a"}, Body: "y", Parent: sec}
	sec.Children = []*structure.Node{clause}
	clause.Children = []*structure.Node{sec}

	act := &structure.Act{ID: "cyclic", Children: []*structure.Node{sec}}
	r := Validate(act, Options{ReviewAnomalyRatio: 1})
	if codes(r.Issues)[structure.CodeCycle] != 1 {
		t.Errorf("issues = %v, want one cycle", codes(r.Issues))
	}
	if r.Stats.Nodes != 2 {
		t.Errorf("nodes = %d, want 2", r.Stats.Nodes)
	}
}
