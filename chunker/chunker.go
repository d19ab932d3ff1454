// Package chunker turns a validated Act into citation-addressed chunks
// ready for hand-off to an embedder or a database.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/structure"
)

// Chunk kinds beyond the structural node kinds.
const (
	KindPreamble      = "preamble"
	KindComprehensive = "comprehensive"
)

// PreamblePath is the citation path of the preamble chunk.
const PreamblePath = citation.Root + "/Preamble"

// Chunk is one retrievable unit of an Act.
type Chunk struct {
	ActID        string               `json:"act_id"`
	CitationPath string               `json:"citation_path"`
	Text         string               `json:"text"`
	LanguageHint string               `json:"language_hint"`
	Provenance   structure.Provenance `json:"provenance"`
	Confidence   float64              `json:"confidence"`

	// ContextText is Text preceded by the headings of the enclosing
	// levels; Citation is the printed form, "<act title>, दफा ३(क)".
	ContextText string `json:"context_text,omitempty"`
	Citation    string `json:"citation,omitempty"`

	Kind            string           `json:"kind"`
	Page            int              `json:"page"`
	Heading         string           `json:"heading,omitempty"`
	CrossReferences []CrossReference `json:"cross_references,omitempty"`
	IsDefinition    bool             `json:"is_definition,omitempty"`
	DefinedTerm     string           `json:"defined_term,omitempty"`
	IsSchedule      bool             `json:"is_schedule,omitempty"`
	Comprehensive   bool             `json:"comprehensive,omitempty"`
	Position        int              `json:"position"`
	TokenCount      int              `json:"token_count"`
	ContentHash     string           `json:"content_hash"`
}

// Config controls chunk building.
type Config struct {
	// MaxTokens caps the estimated size of a comprehensive Section chunk.
	// Larger Sections are only available as their per-node chunks.
	MaxTokens int
	// SkipComprehensive disables the per-Section comprehensive chunk.
	SkipComprehensive bool
}

// Chunker builds chunks from validated Acts.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration.
// Zero-value fields are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	return &Chunker{cfg: cfg}
}

// Build emits chunks for act in document order: the preamble first, then
// one chunk per node that carries text. A Section with children is
// followed by a comprehensive chunk holding the whole Section.
func (c *Chunker) Build(act *structure.Act, report *citation.Report) []Chunk {
	var chunks []Chunk
	add := func(ch Chunk) {
		ch.ActID = act.ID
		ch.Position = len(chunks)
		ch.LanguageHint = LanguageHint(ch.Text)
		ch.TokenCount = estimateTokens(ch.Text)
		ch.ContentHash = contentHash(ch.Text)
		ch.CrossReferences = DetectCrossReferences(ch.Text)
		if ch.ContextText == "" {
			ch.ContextText = ch.Text
		}
		chunks = append(chunks, ch)
	}

	title := strings.TrimSpace(act.Title)
	if title == "" {
		title = act.SourceID
	}

	if pre := strings.TrimSpace(act.Preamble); pre != "" {
		ch := Chunk{
			CitationPath: PreamblePath,
			Text:         pre,
			Kind:         KindPreamble,
			Citation:     title,
			Provenance:   structure.ProvenanceDigital,
			Confidence:   1,
		}
		if len(act.Pages) > 0 {
			first := act.Pages[0]
			ch.Page, ch.Provenance, ch.Confidence = first.Index, first.Provenance, first.Confidence
		}
		add(ch)
	}

	structure.Walk(act.Children, func(n *structure.Node, _ int) bool {
		path := report.Paths[n]
		if path == "" {
			path = citation.PathOf(n).String()
		}
		def := definitionSection(n)

		if hasOwnText(n) {
			ch := Chunk{
				CitationPath: path,
				Text:         strings.TrimSpace(n.Text()),
				ContextText:  contextText(n),
				Citation:     humanCitation(title, n),
				Provenance:   n.Provenance,
				Confidence:   n.Confidence,
				Kind:         n.Kind.String(),
				Page:         n.Page,
				Heading:      n.Heading,
				IsDefinition: def,
				IsSchedule:   IsSchedule(n.Heading),
			}
			if def {
				ch.DefinedTerm = DefinedTerm(n.Body)
			}
			add(ch)
		}

		if n.Kind == structure.Section && !n.IsLeaf() && !c.cfg.SkipComprehensive {
			text, conf, prov := comprehensive(n)
			if estimateTokens(text) <= c.cfg.MaxTokens {
				add(Chunk{
					CitationPath:  path + "/Full",
					Text:          text,
					ContextText:   comprehensiveContext(n),
					Citation:      humanCitation(title, n) + fullSuffix(n),
					Provenance:    prov,
					Confidence:    conf,
					Kind:          KindComprehensive,
					Page:          n.Page,
					Heading:       n.Heading,
					IsDefinition:  def,
					Comprehensive: true,
				})
			}
		}
		return true
	})
	return chunks
}

// hasOwnText reports whether n gets its own chunk. A node with a body
// always does; a heading-only node only when it is a leaf.
func hasOwnText(n *structure.Node) bool {
	if strings.TrimSpace(n.Body) != "" {
		return true
	}
	return n.IsLeaf() && strings.TrimSpace(n.Heading) != ""
}

// comprehensive renders a Section and all its descendants as one text,
// each descendant prefixed with its bracketed ordinal. The confidence is
// the lowest in the subtree; provenance is OCR if any part came from OCR.
func comprehensive(sec *structure.Node) (string, float64, structure.Provenance) {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(sec.Text()))
	conf, prov := sec.Confidence, sec.Provenance

	structure.Walk(sec.Children, func(n *structure.Node, depth int) bool {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString("(" + n.Ordinal.String() + ") ")
		b.WriteString(strings.TrimSpace(n.Text()))
		if n.Confidence < conf {
			conf = n.Confidence
		}
		if n.Provenance == structure.ProvenanceOCR {
			prov = structure.ProvenanceOCR
		}
		return true
	})
	return b.String(), conf, prov
}

// comprehensiveContext is the whole Section under the headings of the
// levels above it.
func comprehensiveContext(sec *structure.Node) string {
	var b strings.Builder
	b.WriteString(contextText(sec))
	structure.Walk(sec.Children, func(n *structure.Node, depth int) bool {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(headerLine(n, true))
		return true
	})
	return b.String()
}

// definitionSection reports whether n is, or sits inside, a Section whose
// heading marks it as the definitions Section.
func definitionSection(n *structure.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Kind == structure.Section {
			return IsDefinitionHeading(cur.Heading)
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// estimateTokens approximates the token count of text using a simple
// word-based heuristic: tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

// contentHash returns the SHA-256 hex digest of text.
func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
