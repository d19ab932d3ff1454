package structure

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/vidhi/marker"
)

// buildText structures a single digital page of text.
func buildText(t *testing.T, text string) *Act {
	t.Helper()
	r := marker.NewRecognizer(nil, true)
	act := &Act{SourceID: "test", Pages: []Page{{Index: 1, Provenance: ProvenanceDigital, Confidence: 1}}}
	New(nil).Build(act, ClassifyPage(r, text, 1, ProvenanceDigital, 1))
	return act
}

func issueCodes(act *Act) []string {
	var out []string
	for _, is := range act.Issues {
		out = append(out, is.Code)
	}
	return out
}

// ---------------------------------------------------------------------------
// Basic hierarchy
// ---------------------------------------------------------------------------

func TestClausesUnderSection(t *testing.T) {
	act := buildText(t, "दफा १ परिभाषा\n(क) \"अदालत\" भन्नाले जिल्ला अदालत सम्झनु पर्छ।\n(ख) \"सरकार\" भन्नाले नेपाल सरकार सम्झनु पर्छ।")

	if len(act.Children) != 1 {
		t.Fatalf("top-level nodes = %d, want 1\n%s", len(act.Children), Dump(act.Children))
	}
	sec := act.Children[0]
	if sec.Kind != Section || sec.Heading != "परिभाषा" {
		t.Errorf("section = %s %q", sec.Kind, sec.Heading)
	}
	if len(sec.Children) != 2 {
		t.Fatalf("clauses = %d, want 2\n%s", len(sec.Children), Dump(act.Children))
	}
	for i, c := range sec.Children {
		if c.Kind != Clause {
			t.Errorf("child %d kind = %s, want clause", i, c.Kind)
		}
		if c.Parent != sec {
			t.Errorf("child %d parent mismatch", i)
		}
	}
	if sec.Children[1].Segment() != "Khanda (ख)" {
		t.Errorf("segment = %q", sec.Children[1].Segment())
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestNestedSubClauses(t *testing.T) {
	act := buildText(t, strings.Join([]string{
		"दफा २ अनुमति",
		"(१) कसैले पनि अनुमति नलिई",
		"(क) उद्योग सञ्चालन गर्न,",
		"(ख) कारोबार गर्न,",
		"पाउने छैन।",
		"(२) उपदफा (१) बमोजिमको अनुमति",
	}, "\n"))

	sec := act.Children[0]
	if len(sec.Children) != 2 {
		t.Fatalf("clauses = %d, want 2\n%s", len(sec.Children), Dump(act.Children))
	}
	first := sec.Children[0]
	if len(first.Children) != 2 || first.Children[0].Kind != SubClause {
		t.Fatalf("subclauses under (१):\n%s", Dump(act.Children))
	}
	if got := first.Children[1].Body; got != "कारोबार गर्न,\nपाउने छैन।" {
		t.Errorf("subclause body = %q", got)
	}
	if got := sec.Children[1].Body; got != "उपदफा (१) बमोजिमको अनुमति" {
		t.Errorf("second clause body = %q", got)
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestRomanSubClauses(t *testing.T) {
	act := buildText(t, strings.Join([]string{
		"Section 3 Offences",
		"(a) driving without a licence;",
		"(i) a vehicle;",
		"(ii) a bicycle;",
		"(b) driving under influence.",
	}, "\n"))

	sec := act.Children[0]
	if len(sec.Children) != 2 {
		t.Fatalf("clauses = %d, want 2\n%s", len(sec.Children), Dump(act.Children))
	}
	a := sec.Children[0]
	if len(a.Children) != 2 {
		t.Fatalf("subclauses under (a) = %d, want 2\n%s", len(a.Children), Dump(act.Children))
	}
	for i, want := range []string{"Upakhanda (i)", "Upakhanda (ii)"} {
		if got := a.Children[i].Segment(); got != want {
			t.Errorf("subclause %d = %q, want %q", i, got, want)
		}
	}
	if a.Children[0].Body != "a vehicle;" {
		t.Errorf("(i) body = %q", a.Children[0].Body)
	}
	if got := sec.Children[1].Segment(); got != "Khanda (b)" {
		t.Errorf("second clause = %q", got)
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestRomanClausesUnderSection(t *testing.T) {
	act := buildText(t, "Section 4 Penalty\n(i) a fine;\n(ii) imprisonment;\n(iii) both.")
	sec := act.Children[0]
	if len(sec.Children) != 3 {
		t.Fatalf("clauses = %d, want 3\n%s", len(sec.Children), Dump(act.Children))
	}
	if got := sec.Children[2].Segment(); got != "Khanda (iii)" {
		t.Errorf("third clause = %q", got)
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestLetterIAfterH(t *testing.T) {
	act := buildText(t, strings.Join([]string{
		"Section 1 Definitions",
		"(g) seven;",
		"(h) eight;",
		"(i) nine;",
		"(j) ten.",
	}, "\n"))

	sec := act.Children[0]
	if len(sec.Children) != 4 {
		t.Fatalf("clauses = %d, want 4\n%s", len(sec.Children), Dump(act.Children))
	}
	if got := sec.Children[2].Segment(); got != "Khanda (i)" {
		t.Errorf("third clause = %q", got)
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestPartChapterSection(t *testing.T) {
	act := buildText(t, strings.Join([]string{
		"भाग १ प्रारम्भिक",
		"परिच्छेद १ सामान्य",
		"दफा १ नाम",
		"यो ऐनको नाम ...",
		"परिच्छेद २ अपराध",
		"दफा २ सजाय",
		"भाग २ विविध",
		"दफा ३ नियम बनाउने अधिकार",
	}, "\n"))

	if len(act.Children) != 2 {
		t.Fatalf("parts = %d, want 2\n%s", len(act.Children), Dump(act.Children))
	}
	p1 := act.Children[0]
	if len(p1.Children) != 2 || p1.Children[1].Kind != Chapter {
		t.Fatalf("part 1:\n%s", Dump(act.Children))
	}
	p2 := act.Children[1]
	if len(p2.Children) != 1 || p2.Children[0].Kind != Section {
		t.Errorf("part 2 should hold a section directly:\n%s", Dump(act.Children))
	}
	if p1.Parent != nil {
		t.Error("top-level node should have nil parent")
	}
}

func TestPreamble(t *testing.T) {
	act := buildText(t, "औद्योगिक व्यवसाय ऐन, २०७६\nप्रस्तावना: उद्योगको विकास गर्न\nदफा १ नाम")
	if act.Preamble != "औद्योगिक व्यवसाय ऐन, २०७६\nप्रस्तावना: उद्योगको विकास गर्न" {
		t.Errorf("preamble = %q", act.Preamble)
	}
}

// ---------------------------------------------------------------------------
// Continuation and orphans
// ---------------------------------------------------------------------------

func TestBracketUnderPartIsContinuation(t *testing.T) {
	act := buildText(t, "भाग २ सामान्य व्यवस्था\n(३) यो व्यवस्था लागू हुने छ।")
	part := act.Children[0]
	if len(part.Children) != 0 {
		t.Fatalf("part should have no children:\n%s", Dump(act.Children))
	}
	if part.Body != "(३) यो व्यवस्था लागू हुने छ।" {
		t.Errorf("part body = %q", part.Body)
	}
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

func TestBracketInProseIsContinuation(t *testing.T) {
	act := buildText(t, "दफा ४ दण्ड\nयो ऐनको दफा (३) बमोजिम सजाय हुनेछ।")
	sec := act.Children[0]
	if len(sec.Children) != 0 || !strings.Contains(sec.Body, "(३)") {
		t.Errorf("prose bracket should stay in body:\n%s", Dump(act.Children))
	}
}

func TestOrphanClauseKeyword(t *testing.T) {
	act := buildText(t, "परिच्छेद १ सामान्य\nखण्ड (क) थप व्यवस्था")
	ch := act.Children[0]
	if len(ch.Children) != 0 {
		t.Fatalf("chapter should have no children:\n%s", Dump(act.Children))
	}
	if ch.Body != "खण्ड (क) थप व्यवस्था" {
		t.Errorf("orphan text should be kept, body = %q", ch.Body)
	}
	codes := issueCodes(act)
	if len(codes) != 1 || codes[0] != CodeOrphanMarker {
		t.Errorf("issues = %v, want one orphan_marker", codes)
	}
	if act.Issues[0].Node != ch {
		t.Error("orphan issue should point at the open chapter")
	}
}

// ---------------------------------------------------------------------------
// Ordinal anomalies
// ---------------------------------------------------------------------------

func TestDuplicateSection(t *testing.T) {
	act := buildText(t, "दफा ४ क\nपाठ\nदफा ५ ख\nपाठ\nदफा ५ ग\nपाठ")
	if len(act.Children) != 3 {
		t.Fatalf("sections = %d, want 3 (duplicate kept)", len(act.Children))
	}
	codes := issueCodes(act)
	if len(codes) != 1 || codes[0] != CodeDuplicate {
		t.Fatalf("issues = %v, want exactly one duplicate_ordinal", codes)
	}
	if act.Issues[0].Node != act.Children[2] {
		t.Error("duplicate issue should point at the second दफा ५")
	}
}

func TestNonMonotonicRecordsOneAnomaly(t *testing.T) {
	act := buildText(t, "दफा ३\nक\nदफा २\nख\nदफा ४\nग")
	codes := issueCodes(act)
	if len(codes) != 1 || codes[0] != CodeNonMonotonic {
		t.Errorf("issues = %v, want exactly one non_monotonic_ordinal", codes)
	}
	if len(act.Children) != 3 {
		t.Errorf("sections = %d, want 3", len(act.Children))
	}
}

func TestNumeralSystemMayChange(t *testing.T) {
	act := buildText(t, "दफा १\nक\nSection 2\nख")
	if len(act.Issues) != 0 {
		t.Errorf("issues = %v, want none", issueCodes(act))
	}
}

// ---------------------------------------------------------------------------
// Pages, lifecycle, determinism
// ---------------------------------------------------------------------------

func TestPageGap(t *testing.T) {
	r := marker.NewRecognizer(nil, true)
	act := &Act{Pages: []Page{
		{Index: 1, Provenance: ProvenanceDigital, Confidence: 1},
		{Index: 2, Provenance: ProvenanceFailed, OCRAttempted: true},
	}}
	New(nil).Build(act, ClassifyPage(r, "दफा १\nपाठ", 1, ProvenanceDigital, 1))

	if !act.Partial {
		t.Error("act should be partial")
	}
	if len(act.Issues) != 1 || act.Issues[0].Kind != ExtractionFailure || act.Issues[0].Page != 2 {
		t.Errorf("issues = %+v", act.Issues)
	}
	if len(act.Anomalies()) != 0 {
		t.Error("page gap is not a structural anomaly")
	}
}

func TestConfidenceIsMinimumOfLines(t *testing.T) {
	r := marker.NewRecognizer(nil, true)
	var lines []Line
	lines = append(lines, ClassifyPage(r, "दफा १\nपहिलो", 1, ProvenanceDigital, 1)...)
	lines = append(lines, ClassifyPage(r, "दोस्रो", 2, ProvenanceOCR, 0.7)...)
	act := &Act{}
	New(nil).Build(act, lines)

	sec := act.Children[0]
	if sec.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7", sec.Confidence)
	}
	if sec.Page != 1 || sec.Provenance != ProvenanceDigital {
		t.Errorf("node origin = page %d %s", sec.Page, sec.Provenance)
	}
}

func TestAllNodesFrozen(t *testing.T) {
	act := buildText(t, "भाग १\nदफा १\n(क) a\n(ख) b")
	Walk(act.Children, func(n *Node, _ int) bool {
		if !n.Frozen() {
			t.Errorf("%s not frozen", n.Segment())
		}
		return true
	})
}

func TestBuildIsIdempotent(t *testing.T) {
	text := "प्रस्तावना\nभाग १\nदफा १\n(क) a\n(ख) b\nदफा १\n(३) c"
	r := marker.NewRecognizer(nil, true)
	lines := ClassifyPage(r, text, 1, ProvenanceDigital, 1)

	act := &Act{}
	s := New(nil)
	s.Build(act, lines)
	first, firstIssues := Dump(act.Children), strings.Join(issueCodes(act), ",")

	s.Build(act, lines)
	if got := Dump(act.Children); got != first {
		t.Errorf("second build differs:\n%s\nvs\n%s", got, first)
	}
	if got := strings.Join(issueCodes(act), ","); got != firstIssues {
		t.Errorf("issues differ: %s vs %s", got, firstIssues)
	}
}

func TestKindText(t *testing.T) {
	var k Kind
	if err := k.UnmarshalText([]byte("subclause")); err != nil || k != SubClause {
		t.Errorf("UnmarshalText = %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("article")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
