// Package export writes review workbooks for human audit of structured
// Acts.
package export

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/vidhi/chunker"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/store"
	"github.com/brunobiangulo/vidhi/structure"
)

// Entry is one Act in a review workbook.
type Entry struct {
	ActID          string
	SourceID       string
	Title          string
	Status         citation.Status
	Partial        bool
	Nodes          int
	Pages          int
	AnomalyCount   int
	EmptyLeafCount int
	OCRFraction    float64
	Chunks         []chunker.Chunk
	Issues         []structure.Issue
}

// FromResult builds an entry from a freshly structured Act.
func FromResult(act *structure.Act, chunks []chunker.Chunk, rep *citation.Report) Entry {
	return Entry{
		ActID:          act.ID,
		SourceID:       act.SourceID,
		Title:          act.Title,
		Status:         rep.Status,
		Partial:        act.Partial,
		Nodes:          rep.Stats.Nodes,
		Pages:          len(act.Pages),
		AnomalyCount:   rep.AnomalyCount,
		EmptyLeafCount: rep.EmptyLeafCount,
		OCRFraction:    rep.OCRFraction,
		Chunks:         chunks,
		Issues:         rep.Issues,
	}
}

// FromStored builds an entry from rows read back from the store.
func FromStored(a store.ActRow, chunks []store.StoredChunk, issues []structure.Issue) Entry {
	e := Entry{
		ActID:          a.ID,
		SourceID:       a.SourceID,
		Title:          a.Title,
		Status:         a.Status,
		Partial:        a.Partial,
		Nodes:          a.NodeCount,
		Pages:          a.PageCount,
		AnomalyCount:   a.AnomalyCount,
		EmptyLeafCount: a.EmptyLeafCount,
		OCRFraction:    a.OCRFraction,
		Issues:         issues,
	}
	for _, c := range chunks {
		e.Chunks = append(e.Chunks, c.Chunk)
	}
	return e
}

const (
	sheetActs   = "Acts"
	sheetChunks = "Chunks"
	sheetIssues = "Issues"
)

// maxCellText keeps chunk text below the xlsx cell limit of 32767 chars.
const maxCellText = 32000

// WriteReviewWorkbook writes entries as an xlsx workbook with one sheet of
// health reports, one of chunks and one of issues.
func WriteReviewWorkbook(w io.Writer, entries []Entry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetActs); err != nil {
		return err
	}
	for _, s := range []string{sheetChunks, sheetIssues} {
		if _, err := f.NewSheet(s); err != nil {
			return err
		}
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	acts := newSheet(f, sheetActs, bold,
		"Act ID", "Source", "Title", "Status", "Partial", "Nodes", "Pages",
		"Anomalies", "Empty leaves", "OCR fraction")
	chunks := newSheet(f, sheetChunks, bold,
		"Act ID", "Citation path", "Kind", "Page", "Provenance", "Confidence",
		"Language", "Definition", "Cross references", "Text", "Citation")
	issues := newSheet(f, sheetIssues, bold,
		"Act ID", "Title", "Kind", "Code", "Page", "Citation path", "Message")

	nChunks, nIssues := 0, 0
	for _, e := range entries {
		acts.add(e.ActID, e.SourceID, e.Title, string(e.Status), e.Partial, e.Nodes, e.Pages,
			e.AnomalyCount, e.EmptyLeafCount, e.OCRFraction)
		for _, c := range e.Chunks {
			chunks.add(e.ActID, c.CitationPath, c.Kind, c.Page, string(c.Provenance), c.Confidence,
				c.LanguageHint, c.DefinedTerm, len(c.CrossReferences), truncate(c.Text, maxCellText), c.Citation)
			nChunks++
		}
		for _, is := range e.Issues {
			issues.add(e.ActID, e.Title, string(is.Kind), is.Code, is.Page, is.Path, is.Message)
			nIssues++
		}
	}
	for _, s := range []*sheet{acts, chunks, issues} {
		if s.err != nil {
			return fmt.Errorf("xlsx %s: %w", s.name, s.err)
		}
	}

	_ = f.SetColWidth(sheetActs, "A", "A", 38)
	_ = f.SetColWidth(sheetActs, "C", "C", 40)
	_ = f.SetColWidth(sheetChunks, "B", "B", 48)
	_ = f.SetColWidth(sheetChunks, "J", "J", 80)
	_ = f.SetColWidth(sheetChunks, "K", "K", 40)
	_ = f.SetColWidth(sheetIssues, "F", "G", 48)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	logger.Info("export: workbook written", "acts", len(entries), "chunks", nChunks,
		"issues", nIssues, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// sheet appends rows to one worksheet, keeping the first error.
type sheet struct {
	f    *excelize.File
	name string
	row  int
	err  error
}

func newSheet(f *excelize.File, name string, headerStyle int, headers ...string) *sheet {
	s := &sheet{f: f, name: name, row: 1}
	vals := make([]any, len(headers))
	for i, h := range headers {
		vals[i] = h
	}
	s.add(vals...)
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil && s.err == nil {
		s.err = err
	}
	if err := f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil && s.err == nil {
		s.err = err
	}
	return s
}

func (s *sheet) add(vals ...any) {
	if s.err != nil {
		return
	}
	cell, _ := excelize.CoordinatesToCellName(1, s.row)
	s.err = s.f.SetSheetRow(s.name, cell, &vals)
	s.row++
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
