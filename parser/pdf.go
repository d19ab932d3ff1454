package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/brunobiangulo/vidhi/ocr"
)

// PDFLoader reads an Act PDF into page records. Page images are not
// rendered up front; each record's Render rasterizes its page only if the
// selector routes it to OCR.
type PDFLoader struct {
	Rasterizer      *ocr.Rasterizer // nil disables rendering
	MinDigitalChars int
	Logger          *slog.Logger
}

// Load opens the PDF at path and returns one record per page, indexed
// from 1. Pages whose text cannot be extracted are returned without a
// digital layer rather than skipped.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]PageRecord, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	recs := make([]PageRecord, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := PageRecord{Index: i}
		if l.Rasterizer != nil {
			n := i
			rec.Render = func(ctx context.Context) ([]byte, error) {
				return l.Rasterizer.Page(ctx, path, n)
			}
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			logger.Debug("parser: empty page object", "page", i)
			recs = append(recs, rec)
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			logger.Debug("parser: text extraction failed", "page", i, "error", err)
			recs = append(recs, rec)
			continue
		}
		text = strings.TrimSpace(text)
		if text != "" {
			rec.HasDigitalTextLayer = true
			rec.DigitalText = text
			cov := glyphCoverage(page, l.MinDigitalChars)
			rec.GlyphCoverage = &cov
		}
		recs = append(recs, rec)
	}

	logger.Info("parser: pdf loaded", "path", path, "pages", total)
	return recs, nil
}

// glyphCoverage is the share of drawn glyph area whose glyphs decode to
// printable text, scaled down for pages carrying only a few glyphs such
// as a stamp or a page number over a scanned image.
func glyphCoverage(page pdf.Page, minChars int) (cov float64) {
	if minChars <= 0 {
		minChars = DefaultMinDigitalChars
	}
	// Malformed content streams panic inside the pdf package.
	defer func() {
		if recover() != nil {
			cov = 0
		}
	}()

	var drawn, extractable float64
	glyphs := 0
	for _, t := range page.Content().Text {
		area := t.W * t.FontSize
		if area <= 0 {
			area = t.FontSize * t.FontSize / 2
		}
		if area <= 0 || (t.S != "" && strings.TrimSpace(t.S) == "") {
			continue
		}
		drawn += area
		if t.S != "" && PrintableRatio(t.S) == 1 {
			extractable += area
			glyphs++
		}
	}
	if drawn == 0 {
		return 0
	}
	return clamp01(extractable / drawn * min(1, float64(glyphs)/float64(minChars)))
}
