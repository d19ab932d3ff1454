// Command eval measures structuring accuracy against gold Acts.
//
// Built-in sample Acts:
//
//	go run ./cmd/eval
//
// Gold dataset with manifests and PDFs, OCR through tesseract:
//
//	go run ./cmd/eval \
//	  --dataset ./testdata/gold/acts.yaml \
//	  --config vidhi.yaml \
//	  --min-f1 0.95
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/brunobiangulo/vidhi"
	"github.com/brunobiangulo/vidhi/eval"
)

func main() {
	var (
		datasetPath = flag.String("dataset", "", "Path to dataset file (YAML or JSON; default: built-in sample Acts)")
		configPath  = flag.String("config", "", "Path to vidhi config file")
		dbPath      = flag.String("db", "", "Persist structured Acts to this SQLite database (default: no store)")
		ocrBackend  = flag.String("ocr", "", "Override OCR backend: tesseract, vision, none")
		minF1       = flag.Float64("min-f1", eval.DefaultMinF1, "Path F1 a case needs to pass")
		outputFile  = flag.String("output", "", "Path to write JSON report (default: inside run directory)")
	)
	flag.Parse()

	runDir := createRunDir()
	logFile := setupLogTee(runDir)
	defer logFile.Close()

	cfg, err := vidhi.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg.SkipStore = *dbPath == ""
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *ocrBackend != "" {
		cfg.OCR.Backend = *ocrBackend
	}
	// Gold runs must not push to a shared Postgres.
	cfg.Postgres.DSN = ""

	ds := eval.SampleDataset()
	if *datasetPath != "" {
		if ds, err = eval.LoadDataset(*datasetPath); err != nil {
			log.Fatalf("loading dataset: %v", err)
		}
	}

	meta := map[string]interface{}{
		"dataset":     ds.Name,
		"tests":       len(ds.Tests),
		"ocr_backend": cfg.OCR.Backend,
		"min_f1":      *minF1,
		"git_commit":  gitCommit(),
		"go_version":  runtime.Version(),
		"started_at":  time.Now().Format(time.RFC3339),
	}

	engine, err := vidhi.New(cfg, vidhi.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ev := eval.NewEvaluator(engine, slog.Default())
	ev.SetMinF1(*minF1)

	fmt.Fprintf(os.Stderr, "\nRunning %s (%d tests)...\n", ds.Name, len(ds.Tests))
	start := time.Now()
	report, err := ev.Run(ctx, ds)
	if err != nil {
		log.Fatalf("running %s: %v", ds.Name, err)
	}
	fmt.Println(eval.FormatReport(report))

	meta["eval_elapsed"] = time.Since(start).Round(time.Millisecond).String()
	writeJSON(filepath.Join(runDir, "metadata.json"), meta)

	reportPath := filepath.Join(runDir, "eval-report.json")
	writeJSON(reportPath, report)
	fmt.Fprintf(os.Stderr, "Eval report written to: %s\n", reportPath)
	if *outputFile != "" {
		writeJSON(*outputFile, report)
		fmt.Fprintf(os.Stderr, "JSON report also written to: %s\n", *outputFile)
	}
	fmt.Fprintf(os.Stderr, "\nRun directory: %s\n", runDir)

	if report.Failed > 0 {
		engine.Close()
		logFile.Close()
		os.Exit(1)
	}
}

func createRunDir() string {
	ts := time.Now().Format("2006-01-02_15-04-05")
	dir := filepath.Join("evals", "runs", ts)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Fatalf("creating run directory: %v", err)
	}
	return dir
}

// setupLogTee configures slog to write to both stderr and eval.log in the run dir.
func setupLogTee(runDir string) *os.File {
	logPath := filepath.Join(runDir, "eval.log")
	f, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("creating log file: %v", err)
	}
	w := io.MultiWriter(os.Stderr, f)
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	return f
}

// gitCommit returns the current git HEAD short hash, or "unknown".
func gitCommit() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// writeJSON marshals v to indented JSON and writes it to path.
func writeJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshaling JSON for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Fatalf("writing %s: %v", path, err)
	}
}
