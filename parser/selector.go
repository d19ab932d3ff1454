package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/vidhi/ocr"
	"github.com/brunobiangulo/vidhi/structure"
)

const (
	DefaultThreshold   = 0.85
	DefaultOCRTimeout  = 2 * time.Minute
	DefaultPageWorkers = 4
)

// Selector picks the text source for each page.
type Selector struct {
	// Threshold is the glyph coverage above which the digital layer is
	// taken as is.
	Threshold float64
	// OCR recognizes pages whose digital layer is missing or too thin.
	// Nil disables OCR.
	OCR ocr.Engine
	// Limiter, when set, is the process-wide OCR slot. Rendering and
	// recognition of a page both happen inside the slot, and Timeout
	// starts once the slot is held. If OCR is nil the limiter's engine
	// is used.
	Limiter         *ocr.Limiter
	Timeout         time.Duration
	MinDigitalChars int
	Logger          *slog.Logger
}

func (s *Selector) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Selector) engine() ocr.Engine {
	if s.OCR != nil {
		return s.OCR
	}
	if s.Limiter != nil {
		return s.Limiter.Engine()
	}
	return nil
}

// Select returns the text of one page. It never fails: a page that
// yields nothing from either source comes back empty with
// ProvenanceFailed.
func (s *Selector) Select(ctx context.Context, rec PageRecord) PageText {
	threshold := s.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	q := Assess(rec, s.MinDigitalChars)
	pt := PageText{Index: rec.Index, Coverage: q.Coverage}

	var digital string
	if rec.HasDigitalTextLayer {
		digital = Clean(rec.DigitalText)
	}
	if digital != "" && q.Coverage > threshold && q.Usable() {
		pt.Text = digital
		pt.Provenance = structure.ProvenanceDigital
		pt.Confidence = 1
		return pt
	}

	log := s.logger().With("page", rec.Index)
	if eng := s.engine(); eng != nil {
		pt.OCRAttempted = true
		start := time.Now()
		res, err := s.recognize(ctx, eng, &rec)
		text := Clean(res.Text)
		switch {
		case err != nil:
			log.Warn("select: ocr failed", "coverage", q.Coverage, "error", err)
			pt.Warnings = append(pt.Warnings, "ocr: "+err.Error())
		case text == "":
			log.Warn("select: ocr returned no text", "coverage", q.Coverage)
			pt.Warnings = append(pt.Warnings, "ocr: no text")
		default:
			log.Debug("select: page recognized", "coverage", q.Coverage,
				"confidence", res.Confidence, "elapsed", time.Since(start).Round(time.Millisecond))
			pt.Text = text
			pt.Provenance = structure.ProvenanceOCR
			pt.Confidence = clamp01(res.Confidence)
			return pt
		}
	} else {
		pt.Warnings = append(pt.Warnings, "ocr: no engine configured")
	}

	if digital != "" {
		log.Info("select: falling back to digital layer", "coverage", q.Coverage, "printable", q.PrintableRatio)
		pt.Text = digital
		pt.Provenance = structure.ProvenanceDigital
		pt.Confidence = q.PrintableRatio
		pt.Warnings = append(pt.Warnings, fmt.Sprintf("digital: fallback layer, confidence %.2f from printable ratio", q.PrintableRatio))
		return pt
	}

	log.Warn("select: page failed", "ocr_attempted", pt.OCRAttempted)
	pt.Provenance = structure.ProvenanceFailed
	return pt
}

// recognize renders and recognizes one page within the OCR slot and the
// per-page timeout.
func (s *Selector) recognize(ctx context.Context, eng ocr.Engine, rec *PageRecord) (ocr.Result, error) {
	if s.Limiter != nil {
		if err := s.Limiter.Acquire(ctx); err != nil {
			return ocr.Result{}, err
		}
		defer s.Limiter.Release()
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultOCRTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}

	img, err := rec.image(ctx)
	if err != nil {
		return ocr.Result{}, err
	}

	// Engines that ignore ctx must not hold the page past its deadline.
	type outcome struct {
		res ocr.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := eng.Recognize(ctx, img)
		done <- outcome{res, err}
	}()
	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return ocr.Result{}, fmt.Errorf("ocr timed out after %s: %w", timeout, ctx.Err())
	}
}

// SelectAll selects every page with up to workers pages in flight and
// returns the results ordered by page index. Pages not started before ctx
// ends come back Failed.
func (s *Selector) SelectAll(ctx context.Context, recs []PageRecord, workers int) []PageText {
	if workers <= 0 {
		workers = DefaultPageWorkers
	}
	out := make([]PageText, len(recs))
	start := time.Now()
	var completed atomic.Int32

	var g errgroup.Group
	g.SetLimit(workers)
	for i, rec := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				out[i] = PageText{
					Index:      rec.Index,
					Provenance: structure.ProvenanceFailed,
					Warnings:   []string{"select: " + err.Error()},
				}
				return nil
			}
			out[i] = s.Select(ctx, rec)
			n := completed.Add(1)
			s.logger().Debug("select: page done", "progress", fmt.Sprintf("%d/%d", n, len(recs)),
				"page", rec.Index, "provenance", out[i].Provenance)
			return nil
		})
	}
	g.Wait()

	sort.SliceStable(out, func(a, b int) bool { return out[a].Index < out[b].Index })
	s.logger().Debug("select: pages done", "pages", len(out), "elapsed", time.Since(start).Round(time.Millisecond))
	return out
}
