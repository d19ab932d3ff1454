// Package parser turns the raw pages of one Act into ordered page text.
// Each page is read from its digital text layer when the layer covers
// enough of the page, and from OCR otherwise.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/brunobiangulo/vidhi/ocr"
	"github.com/brunobiangulo/vidhi/structure"
)

var (
	ErrInvalidPageRecord  = errors.New("vidhi: invalid page record")
	ErrDuplicatePageIndex = errors.New("vidhi: duplicate page index")
)

// PageRecord is one page as delivered by ingestion.
type PageRecord struct {
	Index               int    `json:"page_index"`
	HasDigitalTextLayer bool   `json:"has_digital_text_layer"`
	DigitalText         string `json:"digital_text,omitempty"`
	// GlyphCoverage is the fraction of the drawable area covered by
	// extractable glyphs. Nil means unknown; it is then estimated from
	// the text.
	GlyphCoverage *float64 `json:"glyph_coverage,omitempty"`
	Image         []byte   `json:"-"`
	ImagePath     string   `json:"page_image,omitempty"`

	// Render produces the page image on demand when Image and ImagePath
	// are empty. PDFLoader sets it to rasterize the page.
	Render func(ctx context.Context) ([]byte, error) `json:"-"`
}

// image returns the page image, loading or rendering it if needed.
func (r *PageRecord) image(ctx context.Context) ([]byte, error) {
	switch {
	case len(r.Image) > 0:
		return r.Image, nil
	case r.ImagePath != "":
		b, err := os.ReadFile(r.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("reading page image: %w", err)
		}
		return b, nil
	case r.Render != nil:
		return r.Render(ctx)
	}
	return nil, ocr.ErrNoImage
}

// PageText is the selected text of one page.
//
// Confidence is 1 for a digital layer taken on its own merits and the
// engine's mean confidence for OCR. A digital layer used only because OCR
// failed is below the coverage or quality gate, so it is not reported at
// 1: its confidence is the layer's printable ratio and a warning says so.
type PageText struct {
	Index        int                  `json:"page_index"`
	Text         string               `json:"text"`
	Provenance   structure.Provenance `json:"provenance"`
	Confidence   float64              `json:"confidence"`
	OCRAttempted bool                 `json:"ocr_attempted"`
	Coverage     float64              `json:"coverage"`
	Warnings     []string             `json:"warnings,omitempty"`
}

// Page returns the page summary kept on the Act.
func (p PageText) Page() structure.Page {
	return structure.Page{
		Index:        p.Index,
		Provenance:   p.Provenance,
		Confidence:   p.Confidence,
		OCRAttempted: p.OCRAttempted,
	}
}

// ValidateRecords checks the page-record contract: non-negative indices,
// no duplicates, and a coverage in [0, 1] when one is given.
func ValidateRecords(recs []PageRecord) error {
	seen := make(map[int]bool, len(recs))
	for i, r := range recs {
		if r.Index < 0 {
			return fmt.Errorf("record %d: page_index %d: %w", i, r.Index, ErrInvalidPageRecord)
		}
		if seen[r.Index] {
			return fmt.Errorf("page_index %d: %w", r.Index, ErrDuplicatePageIndex)
		}
		seen[r.Index] = true
		if c := r.GlyphCoverage; c != nil && (*c < 0 || *c > 1) {
			return fmt.Errorf("page %d: glyph_coverage %v out of range: %w", r.Index, *c, ErrInvalidPageRecord)
		}
	}
	return nil
}
