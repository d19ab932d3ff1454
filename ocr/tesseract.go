package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// TesseractConfig configures the Tesseract engine.
type TesseractConfig struct {
	Binary      string // binary name or absolute path; if empty -> "tesseract"
	Lang        string // default "nep+eng"
	TessdataDir string
	PSM         int // page segmentation mode; 0 leaves the default
	OEM         int // 1 = LSTM; 0 leaves the default
	TempDir     string
}

// Tesseract runs the tesseract binary in TSV mode so one call yields both
// the text and per-word confidences.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
	logger *slog.Logger
}

// NewTesseract returns a Tesseract engine. A nil runner uses ExecRunner.
func NewTesseract(cfg TesseractConfig, runner Runner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "nep+eng"
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Recognize(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, ErrNoImage
	}

	f, err := os.CreateTemp(t.cfg.TempDir, "vidhi-page-*.png")
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)
	if _, err := f.Write(image); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("tesseract: writing image: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("tesseract: writing image: %w", err)
	}

	// tesseract <file> stdout -l <lang> [--psm N] [--oem N] tsv
	args := []string{path, "stdout", "-l", t.cfg.Lang}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	text, conf := ParseTSV(string(out))
	text = Normalize(text)
	t.logger.Debug("ocr: tesseract page", "chars", len([]rune(text)), "confidence", conf)
	return Result{Text: text, Confidence: conf}, nil
}

// TSV column indexes (tesseract 4 and 5).
const (
	tsvLevel = 0
	tsvBlock = 2
	tsvPar   = 3
	tsvLine  = 4
	tsvConf  = 10
	tsvText  = 11
	tsvCols  = 12
)

// ParseTSV rebuilds the page text from tesseract TSV output, one output
// line per recognized line, and returns the mean word confidence in 0..1.
func ParseTSV(tsv string) (string, float64) {
	var b strings.Builder
	var sum float64
	var n int
	lastKey := ""

	for i, ln := range strings.Split(tsv, "\n") {
		if i == 0 || ln == "" {
			continue // header
		}
		cols := strings.Split(strings.TrimRight(ln, "\r"), "\t")
		if len(cols) < tsvCols || cols[tsvLevel] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[tsvText])
		conf, err := strconv.ParseFloat(cols[tsvConf], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}
		sum += conf
		n++

		key := cols[tsvBlock] + "." + cols[tsvPar] + "." + cols[tsvLine]
		switch {
		case lastKey == "":
		case key != lastKey:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		lastKey = key
		b.WriteString(word)
	}

	if n == 0 {
		return b.String(), 0
	}
	return b.String(), sum / float64(n) / 100.0
}
