// Package eval measures how well the structurer recovers gold Act trees:
// citation path precision and recall, health status agreement and title
// extraction.
package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/vidhi"
)

// DefaultMinF1 is the path F1 a case needs to pass.
const DefaultMinF1 = 0.9

// Evaluator runs evaluation datasets against a vidhi engine.
type Evaluator struct {
	engine vidhi.Engine
	logger *slog.Logger
	minF1  float64
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(engine vidhi.Engine, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{engine: engine, logger: logger, minF1: DefaultMinF1}
}

// SetMinF1 changes the pass threshold.
func (e *Evaluator) SetMinF1(v float64) { e.minF1 = v }

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                      `json:"dataset"`
	TotalTests      int                         `json:"total_tests"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	Metrics         AggregateMetrics            `json:"metrics"`
	CategoryMetrics map[string]AggregateMetrics `json:"category_metrics,omitempty"`
	Results         []TestResult                `json:"results"`
	RunTime         time.Duration               `json:"run_time"`
}

// AggregateMetrics holds averaged metrics across all tests.
type AggregateMetrics struct {
	AvgPrecision    float64 `json:"avg_precision"`
	AvgRecall       float64 `json:"avg_recall"`
	AvgF1           float64 `json:"avg_f1"`
	StatusAccuracy  float64 `json:"status_accuracy"`
	TitleAccuracy   float64 `json:"title_accuracy"`
	AvgAnomalyRatio float64 `json:"avg_anomaly_ratio"`
	AvgOCRFraction  float64 `json:"avg_ocr_fraction"`
}

// TestResult holds the result of a single case.
type TestResult struct {
	Name           string   `json:"name"`
	Category       string   `json:"category,omitempty"`
	ActID          string   `json:"act_id,omitempty"`
	Status         string   `json:"status,omitempty"`
	ExpectedStatus string   `json:"expected_status,omitempty"`
	StatusMatch    bool     `json:"status_match"`
	Title          string   `json:"title,omitempty"`
	TitleMatch     bool     `json:"title_match"`
	Precision      float64  `json:"precision"`
	Recall         float64  `json:"recall"`
	F1             float64  `json:"f1"`
	Missing        []string `json:"missing,omitempty"`
	Unexpected     []string `json:"unexpected,omitempty"`
	AnomalyCount   int      `json:"anomaly_count"`
	AnomalyRatio   float64  `json:"anomaly_ratio"`
	OCRFraction    float64  `json:"ocr_fraction"`
	Passed         bool     `json:"passed"`
	Error          string   `json:"error,omitempty"`
	ElapsedMs      int64    `json:"elapsed_ms"`
}

// Run executes a dataset against the engine. Cases are structured one at
// a time so per-case timing is meaningful.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		TotalTests:      len(dataset.Tests),
		CategoryMetrics: make(map[string]AggregateMetrics),
	}

	catCounts := make(map[string]int)
	catSums := make(map[string]AggregateMetrics)
	metricsCount := 0

	for i, test := range dataset.Tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := e.runTest(ctx, test)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			status = "ERROR"
		}
		e.logger.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"f1", fmt.Sprintf("%.2f", result.F1),
			"health", result.Status,
			"elapsed_ms", result.ElapsedMs,
			"case", test.Name)

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		// Errors would contribute all zeros and depress the averages.
		if result.Error != "" {
			continue
		}
		metricsCount++
		add(&report.Metrics, result)
		if test.Category != "" {
			catCounts[test.Category]++
			sum := catSums[test.Category]
			add(&sum, result)
			catSums[test.Category] = sum
		}
	}

	average(&report.Metrics, metricsCount)
	for cat, count := range catCounts {
		sum := catSums[cat]
		average(&sum, count)
		report.CategoryMetrics[cat] = sum
	}

	report.RunTime = time.Since(start)
	return report, nil
}

func add(m *AggregateMetrics, r TestResult) {
	m.AvgPrecision += r.Precision
	m.AvgRecall += r.Recall
	m.AvgF1 += r.F1
	if r.StatusMatch {
		m.StatusAccuracy++
	}
	if r.TitleMatch {
		m.TitleAccuracy++
	}
	m.AvgAnomalyRatio += r.AnomalyRatio
	m.AvgOCRFraction += r.OCRFraction
}

func average(m *AggregateMetrics, count int) {
	if count == 0 {
		return
	}
	n := float64(count)
	m.AvgPrecision /= n
	m.AvgRecall /= n
	m.AvgF1 /= n
	m.StatusAccuracy /= n
	m.TitleAccuracy /= n
	m.AvgAnomalyRatio /= n
	m.AvgOCRFraction /= n
}

func (e *Evaluator) runTest(ctx context.Context, test Case) (result TestResult) {
	testStart := time.Now()
	result = TestResult{
		Name:           test.Name,
		Category:       test.Category,
		ExpectedStatus: string(test.ExpectedStatus),
	}
	defer func() { result.ElapsedMs = time.Since(testStart).Milliseconds() }()

	var res *vidhi.Result
	var err error
	if test.PDF != "" {
		res, err = e.engine.IngestPDF(ctx, test.PDF, "")
	} else {
		var in vidhi.ActInput
		if in, err = test.input(); err == nil {
			res, err = e.engine.Structure(ctx, in)
		}
	}
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.ActID = res.Act.ID
	result.Title = res.Act.Title
	result.Status = string(res.Report.Status)
	result.AnomalyCount = res.Report.AnomalyCount
	result.AnomalyRatio = anomalyRatio(res.Report)
	result.OCRFraction = res.Report.OCRFraction

	result.Precision, result.Recall, result.Missing, result.Unexpected =
		pathScores(producedPaths(res.Chunks), test.ExpectedPaths)
	result.F1 = f1(result.Precision, result.Recall)

	result.StatusMatch = test.ExpectedStatus == "" || res.Report.Status == test.ExpectedStatus
	result.TitleMatch = test.ExpectedTitle == "" || res.Act.Title == test.ExpectedTitle
	result.Passed = result.F1 >= e.minF1 && result.StatusMatch && result.TitleMatch
	return result
}

// FormatReport renders a report as plain text.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Path Precision:   %.2f\n", r.Metrics.AvgPrecision)
	fmt.Fprintf(&b, "  Path Recall:      %.2f\n", r.Metrics.AvgRecall)
	fmt.Fprintf(&b, "  Path F1:          %.2f\n", r.Metrics.AvgF1)
	fmt.Fprintf(&b, "  Status Accuracy:  %.2f\n", r.Metrics.StatusAccuracy)
	fmt.Fprintf(&b, "  Title Accuracy:   %.2f\n", r.Metrics.TitleAccuracy)
	fmt.Fprintf(&b, "  Anomaly Ratio:    %.3f\n", r.Metrics.AvgAnomalyRatio)
	fmt.Fprintf(&b, "  OCR Fraction:     %.2f\n\n", r.Metrics.AvgOCRFraction)

	// Per-category breakdown (sorted for deterministic output)
	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s]\n", cat)
			fmt.Fprintf(&b, "    P=%.2f R=%.2f F1=%.2f Status=%.2f Title=%.2f Anom=%.3f\n",
				m.AvgPrecision, m.AvgRecall, m.AvgF1, m.StatusAccuracy, m.TitleAccuracy, m.AvgAnomalyRatio)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintf(&b, "Results:\n")
	for _, res := range r.Results {
		mark := "PASS"
		switch {
		case res.Error != "":
			mark = "ERR "
		case !res.Passed:
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "  [%s] %-30s F1=%.2f status=%s", mark, res.Name, res.F1, res.Status)
		if !res.StatusMatch && res.Error == "" {
			fmt.Fprintf(&b, " (want %s)", res.ExpectedStatus)
		}
		fmt.Fprintln(&b)
		if res.Error != "" {
			fmt.Fprintf(&b, "         error: %s\n", res.Error)
		}
		for _, p := range res.Missing {
			fmt.Fprintf(&b, "         - %s\n", p)
		}
		for _, p := range res.Unexpected {
			fmt.Fprintf(&b, "         + %s\n", p)
		}
	}
	return b.String()
}
