package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Rasterizer renders single PDF pages to PNG with pdftoppm.
type Rasterizer struct {
	Binary  string // if empty -> "pdftoppm"
	DPI     int    // default 300
	TempDir string
	Runner  Runner
}

// Page renders page (1-based) of the PDF at path and returns the PNG.
func (r *Rasterizer) Page(ctx context.Context, path string, page int) ([]byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "pdftoppm"
	}
	dpi := r.DPI
	if dpi <= 0 {
		dpi = 300
	}
	runner := r.Runner
	if runner == nil {
		runner = ExecRunner{}
	}

	dir, err := os.MkdirTemp(r.TempDir, "vidhi-pp-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	// pdftoppm -r 300 -f N -l N -png -singlefile <in.pdf> <tmp/page>
	_, errb, err := runner.Run(ctx, bin, "-r", strconv.Itoa(dpi), "-f", n, "-l", n, "-png", "-singlefile", path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d produced no image: %w", page, err)
	}
	return img, nil
}
