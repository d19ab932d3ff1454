package parser

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunobiangulo/vidhi/ocr"
	"github.com/brunobiangulo/vidhi/structure"
)

const digitalPage = "दफा १. संक्षिप्त नाम र प्रारम्भ\n(१) यो ऐनको नाम \"नमूना ऐन, २०८०\" रहेको छ ।"

// countingEngine returns text and records how often it was called.
type countingEngine struct {
	calls atomic.Int32
	text  string
	conf  float64
	err   error
	delay time.Duration
}

func (e *countingEngine) Recognize(ctx context.Context, img []byte) (ocr.Result, error) {
	e.calls.Add(1)
	if len(img) == 0 {
		return ocr.Result{}, ocr.ErrNoImage
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ocr.Result{}, ctx.Err()
		}
	}
	if e.err != nil {
		return ocr.Result{}, e.err
	}
	return ocr.Result{Text: e.text, Confidence: e.conf}, nil
}

// ---------------------------------------------------------------------------
// Select
// ---------------------------------------------------------------------------

func TestSelectDigital(t *testing.T) {
	eng := &countingEngine{text: "ocr"}
	s := &Selector{OCR: eng}

	pt := s.Select(context.Background(), PageRecord{
		Index: 4, HasDigitalTextLayer: true, DigitalText: digitalPage, GlyphCoverage: ptr(0.95),
	})
	if pt.Provenance != structure.ProvenanceDigital || pt.Confidence != 1 || pt.OCRAttempted {
		t.Errorf("page = %+v", pt)
	}
	if pt.Text != digitalPage || pt.Index != 4 {
		t.Errorf("text = %q", pt.Text)
	}
	if eng.calls.Load() != 0 {
		t.Error("OCR called for a well-covered page")
	}
}

func TestSelectThresholdIsExclusive(t *testing.T) {
	eng := &countingEngine{text: "दफा २.", conf: 0.7}
	s := &Selector{OCR: eng, Threshold: 0.85}
	pt := s.Select(context.Background(), PageRecord{
		Index: 1, HasDigitalTextLayer: true, DigitalText: digitalPage, GlyphCoverage: ptr(0.85), Image: []byte("img"),
	})
	if pt.Provenance != structure.ProvenanceOCR {
		t.Errorf("coverage equal to the threshold should go to OCR, got %s", pt.Provenance)
	}
}

func TestSelectOCR(t *testing.T) {
	eng := &countingEngine{text: "दफा २. परिभाषा", conf: 0.72}
	rendered := 0
	s := &Selector{OCR: eng}

	pt := s.Select(context.Background(), PageRecord{
		Index: 2,
		Render: func(context.Context) ([]byte, error) {
			rendered++
			return []byte("png"), nil
		},
	})
	if pt.Provenance != structure.ProvenanceOCR || pt.Confidence != 0.72 || !pt.OCRAttempted {
		t.Errorf("page = %+v", pt)
	}
	if pt.Text != "दफा २. परिभाषा" || rendered != 1 {
		t.Errorf("text = %q rendered = %d", pt.Text, rendered)
	}
}

func TestSelectRenderOnlyWhenNeeded(t *testing.T) {
	s := &Selector{OCR: &countingEngine{text: "x"}}
	s.Select(context.Background(), PageRecord{
		HasDigitalTextLayer: true, DigitalText: digitalPage, GlyphCoverage: ptr(1),
		Render: func(context.Context) ([]byte, error) {
			t.Error("rendered a digital page")
			return nil, nil
		},
	})
}

func TestSelectFallsBackToDigital(t *testing.T) {
	s := &Selector{OCR: &countingEngine{err: errors.New("engine down")}}
	pt := s.Select(context.Background(), PageRecord{
		Index: 3, HasDigitalTextLayer: true, DigitalText: digitalPage, GlyphCoverage: ptr(0.4), Image: []byte("img"),
	})
	if pt.Provenance != structure.ProvenanceDigital || pt.Text != digitalPage {
		t.Fatalf("page = %+v", pt)
	}
	if pt.Confidence != 1 || !pt.OCRAttempted || len(pt.Warnings) == 0 {
		t.Errorf("page = %+v", pt)
	}
}

func TestSelectFallbackConfidenceIsPrintableRatio(t *testing.T) {
	// One private-use rune in ten: printable ratio 0.9, above the quality
	// gate but under the coverage threshold.
	text := "abcdefghi\ue000"
	s := &Selector{OCR: &countingEngine{err: errors.New("engine down")}}
	pt := s.Select(context.Background(), PageRecord{
		Index: 1, HasDigitalTextLayer: true, DigitalText: text, GlyphCoverage: ptr(0.2), Image: []byte("img"),
	})
	if pt.Provenance != structure.ProvenanceDigital {
		t.Fatalf("page = %+v", pt)
	}
	if want := PrintableRatio(text); !approx(pt.Confidence, want) || pt.Confidence >= 1 {
		t.Errorf("confidence = %v, want printable ratio %v", pt.Confidence, want)
	}
	found := false
	for _, w := range pt.Warnings {
		if strings.HasPrefix(w, "digital: fallback") {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v", pt.Warnings)
	}
}

func TestSelectFailed(t *testing.T) {
	tests := []struct {
		name string
		sel  *Selector
		rec  PageRecord
	}{
		{"ocr error", &Selector{OCR: &countingEngine{err: errors.New("boom")}}, PageRecord{Index: 5, Image: []byte("img")}},
		{"no image", &Selector{OCR: &countingEngine{text: "x"}}, PageRecord{Index: 5}},
		{"empty ocr", &Selector{OCR: &countingEngine{text: "  \n"}}, PageRecord{Index: 5, Image: []byte("img")}},
		{"no engine", &Selector{}, PageRecord{Index: 5, Image: []byte("img")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pt := tt.sel.Select(context.Background(), tt.rec)
			if pt.Provenance != structure.ProvenanceFailed || pt.Text != "" || pt.Confidence != 0 {
				t.Errorf("page = %+v", pt)
			}
			if pt.Index != 5 || len(pt.Warnings) == 0 {
				t.Errorf("page = %+v", pt)
			}
		})
	}
}

func TestSelectTimeoutDegradesPage(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	stuck := ocr.EngineFunc(func(context.Context, []byte) (ocr.Result, error) {
		<-block // ignores ctx
		return ocr.Result{Text: "late"}, nil
	})
	s := &Selector{OCR: stuck, Timeout: 20 * time.Millisecond}

	start := time.Now()
	pt := s.Select(context.Background(), PageRecord{Index: 1, Image: []byte("img")})
	if pt.Provenance != structure.ProvenanceFailed {
		t.Errorf("provenance = %s, want failed", pt.Provenance)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("select took %s", elapsed)
	}
	if len(pt.Warnings) == 0 || !strings.Contains(pt.Warnings[0], "timed out") {
		t.Errorf("warnings = %v", pt.Warnings)
	}
}

func TestSelectEstimatedCoverage(t *testing.T) {
	eng := &countingEngine{text: "ocr text", conf: 0.9}
	s := &Selector{OCR: eng, MinDigitalChars: 50}

	// A stamp-sized layer is not trusted without a measured coverage.
	pt := s.Select(context.Background(), PageRecord{HasDigitalTextLayer: true, DigitalText: "१२३", Image: []byte("i")})
	if pt.Provenance != structure.ProvenanceOCR {
		t.Errorf("short layer: provenance = %s", pt.Provenance)
	}
	pt = s.Select(context.Background(), PageRecord{HasDigitalTextLayer: true, DigitalText: digitalPage})
	if pt.Provenance != structure.ProvenanceDigital {
		t.Errorf("full layer: provenance = %s", pt.Provenance)
	}
}

// ---------------------------------------------------------------------------
// SelectAll
// ---------------------------------------------------------------------------

func TestSelectAllSortsByIndex(t *testing.T) {
	eng := ocr.EngineFunc(func(_ context.Context, img []byte) (ocr.Result, error) {
		n, _ := strconv.Atoi(string(img))
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return ocr.Result{Text: "पाना " + string(img), Confidence: 0.8}, nil
	})
	s := &Selector{OCR: eng}

	var recs []PageRecord
	for _, i := range []int{7, 2, 9, 1, 5, 3} {
		recs = append(recs, PageRecord{Index: i, Image: []byte(strconv.Itoa(i))})
	}
	out := s.SelectAll(context.Background(), recs, 3)

	want := []int{1, 2, 3, 5, 7, 9}
	if len(out) != len(want) {
		t.Fatalf("got %d pages", len(out))
	}
	for i, pt := range out {
		if pt.Index != want[i] || pt.Text != "पाना "+strconv.Itoa(want[i]) {
			t.Errorf("out[%d] = %+v", i, pt)
		}
	}
}

func TestSelectAllTimeoutStartsInsideSlot(t *testing.T) {
	eng := &countingEngine{text: "x", conf: 1, delay: 20 * time.Millisecond}
	s := &Selector{Limiter: ocr.NewLimiter(eng, 1), Timeout: 200 * time.Millisecond}

	var recs []PageRecord
	for i := 0; i < 8; i++ {
		recs = append(recs, PageRecord{Index: i, Image: []byte("img")})
	}
	// Eight pages through one slot take longer than one timeout; none may
	// time out while waiting for the slot.
	for _, pt := range s.SelectAll(context.Background(), recs, 8) {
		if pt.Provenance != structure.ProvenanceOCR {
			t.Errorf("page %d: %+v", pt.Index, pt)
		}
	}
	if n := eng.calls.Load(); n != 8 {
		t.Errorf("calls = %d", n)
	}
}

func TestSelectAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Selector{OCR: &countingEngine{text: "x"}}
	out := s.SelectAll(ctx, []PageRecord{{Index: 1, Image: []byte("i")}, {Index: 0, Image: []byte("i")}}, 1)
	for _, pt := range out {
		if pt.Provenance != structure.ProvenanceFailed {
			t.Errorf("page %d: %+v", pt.Index, pt)
		}
	}
	if out[0].Index != 0 {
		t.Errorf("not sorted: %+v", out)
	}
}

func TestSelectAllBoundsWorkers(t *testing.T) {
	var inFlight, peak atomic.Int32
	eng := ocr.EngineFunc(func(context.Context, []byte) (ocr.Result, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return ocr.Result{Text: "x", Confidence: 1}, nil
	})
	s := &Selector{OCR: eng}

	var recs []PageRecord
	for i := 0; i < 12; i++ {
		recs = append(recs, PageRecord{Index: i, Image: []byte("img")})
	}
	out := s.SelectAll(context.Background(), recs, 2)
	if len(out) != 12 {
		t.Fatalf("got %d pages", len(out))
	}
	if p := peak.Load(); p > 2 {
		t.Errorf("peak pages in flight = %d, want <= 2", p)
	}
}
