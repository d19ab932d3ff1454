package ocr

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brunobiangulo/vidhi/llm"
)

// stubRunner records calls and returns canned output.
type stubRunner struct {
	mu     sync.Mutex
	calls  [][]string
	stdout []byte
	err    error
	// onRun runs before returning, with the call's arguments.
	onRun func(name string, args []string)
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]string{name}, args...))
	s.mu.Unlock()
	if s.onRun != nil {
		s.onRun(name, args)
	}
	if s.err != nil {
		return nil, []byte("boom"), s.err
	}
	return s.stdout, nil, nil
}

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t0\t0\t100\t10\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t0\t0\t10\t10\t96.5\tदफा\n" +
	"5\t1\t1\t1\t1\t2\t12\t0\t10\t10\t93.5\t३\n" +
	"5\t1\t1\t1\t2\t1\t0\t12\t10\t10\t80\t(क)\n" +
	"5\t1\t1\t1\t2\t2\t12\t12\t10\t10\t-1\t \n" +
	"5\t1\t1\t1\t2\t3\t24\t12\t10\t10\t70\tपाठ\n"

// ---------------------------------------------------------------------------
// Tesseract
// ---------------------------------------------------------------------------

func TestParseTSV(t *testing.T) {
	text, conf := ParseTSV(sampleTSV)
	if text != "दफा ३\n(क) पाठ" {
		t.Errorf("text = %q", text)
	}
	if want := 0.85; conf < want-1e-9 || conf > want+1e-9 {
		t.Errorf("conf = %v, want %v", conf, want)
	}
}

func TestParseTSVEmpty(t *testing.T) {
	text, conf := ParseTSV("level\tpage_num\n")
	if text != "" || conf != 0 {
		t.Errorf("got %q %v", text, conf)
	}
}

func TestTesseractRecognize(t *testing.T) {
	r := &stubRunner{stdout: []byte(sampleTSV)}
	r.onRun = func(_ string, args []string) {
		if _, err := os.Stat(args[0]); err != nil {
			t.Errorf("image file missing during run: %v", err)
		}
	}
	tess := NewTesseract(TesseractConfig{PSM: 6, TempDir: t.TempDir()}, r, nil)

	res, err := tess.Recognize(context.Background(), []byte("\x89PNG fake"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "दफा ३\n(क) पाठ" {
		t.Errorf("text = %q", res.Text)
	}

	call := strings.Join(r.calls[0], " ")
	for _, want := range []string{"tesseract ", " stdout -l nep+eng", "--psm 6", " tsv"} {
		if !strings.Contains(call, want) {
			t.Errorf("call %q missing %q", call, want)
		}
	}
	if _, err := os.Stat(r.calls[0][1]); !os.IsNotExist(err) {
		t.Error("temp image not removed")
	}
}

func TestTesseractErrors(t *testing.T) {
	tess := NewTesseract(TesseractConfig{TempDir: t.TempDir()}, &stubRunner{err: errors.New("exit 1")}, nil)
	if _, err := tess.Recognize(context.Background(), nil); !errors.Is(err, ErrNoImage) {
		t.Errorf("nil image err = %v", err)
	}
	_, err := tess.Recognize(context.Background(), []byte("img"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("err = %v, want stderr included", err)
	}
}

// ---------------------------------------------------------------------------
// Rasterizer
// ---------------------------------------------------------------------------

func TestRasterizerPage(t *testing.T) {
	r := &stubRunner{}
	r.onRun = func(_ string, args []string) {
		prefix := args[len(args)-1]
		if err := os.WriteFile(prefix+".png", []byte("png-bytes"), 0o644); err != nil {
			t.Error(err)
		}
	}
	rz := &Rasterizer{DPI: 150, TempDir: t.TempDir(), Runner: r}
	img, err := rz.Page(context.Background(), "act.pdf", 3)
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	if string(img) != "png-bytes" {
		t.Errorf("img = %q", img)
	}
	call := strings.Join(r.calls[0], " ")
	if !strings.HasPrefix(call, "pdftoppm -r 150 -f 3 -l 3 -png -singlefile act.pdf ") {
		t.Errorf("call = %q", call)
	}
}

// ---------------------------------------------------------------------------
// Limiter
// ---------------------------------------------------------------------------

func TestLimiterCapsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	eng := EngineFunc(func(ctx context.Context, _ []byte) (Result, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return Result{Text: "ok", Confidence: 1}, nil
	})
	lim := NewLimiter(eng, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := lim.Recognize(context.Background(), []byte("x")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", p)
	}
}

func TestLimiterHonoursContext(t *testing.T) {
	block := make(chan struct{})
	eng := EngineFunc(func(ctx context.Context, _ []byte) (Result, error) {
		<-block
		return Result{}, nil
	})
	lim := NewLimiter(eng, 1)

	done := make(chan struct{})
	go func() {
		lim.Recognize(context.Background(), nil)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := lim.Recognize(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	close(block)
	<-done
}

// ---------------------------------------------------------------------------
// Vision
// ---------------------------------------------------------------------------

type fakeVision struct {
	req  llm.VisionChatRequest
	resp string
	err  error
}

func (f *fakeVision) ChatWithImages(_ context.Context, req llm.VisionChatRequest) (*llm.ChatResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.resp}, nil
}

func TestVisionRecognize(t *testing.T) {
	fv := &fakeVision{resp: "```text\nदफा १\n(क)  पाठ\n```"}
	v := NewVision(fv, "m", 0)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	res, err := v.Recognize(context.Background(), png)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if res.Text != "दफा १\n(क) पाठ" || res.Confidence != 0.8 {
		t.Errorf("res = %+v", res)
	}
	url := fv.req.Messages[0].Content[1].ImageURL.URL
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("image url = %q", url[:30])
	}
}

func TestVisionEmptyIsError(t *testing.T) {
	v := NewVision(&fakeVision{resp: "   "}, "m", 0.9)
	if _, err := v.Recognize(context.Background(), []byte("img")); err == nil {
		t.Error("expected error for empty transcription")
	}
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	in := "दफा  ३\r\n\t(क)\tपाठ   \n-----\n\n\n\nअर्को\f"
	want := "दफा ३\n (क) पाठ\n\nअर्को"
	if got := Normalize(in); got != want {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}
