package eval

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/vidhi"
	"github.com/brunobiangulo/vidhi/citation"
	"github.com/brunobiangulo/vidhi/parser"
)

// Categories used by the sample dataset.
const (
	CategoryDigital = "digital"
	CategoryPartial = "partial"
	CategoryEnglish = "english"
)

// Dataset is a collection of gold Acts for evaluation.
type Dataset struct {
	Name  string `json:"name" yaml:"name"`
	Tests []Case `json:"tests" yaml:"tests"`
}

// Case is one Act with its expected structure. Exactly one of Manifest,
// PDF or Input supplies the pages.
type Case struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category,omitempty" yaml:"category"`
	Manifest string `json:"manifest,omitempty" yaml:"manifest"`
	PDF      string `json:"pdf,omitempty" yaml:"pdf"`

	Input *vidhi.ActInput `json:"-" yaml:"-"`

	// ExpectedPaths lists every citation path of the gold tree, chapters
	// and sections included, without the preamble.
	ExpectedPaths  []string        `json:"expected_paths" yaml:"expected_paths"`
	ExpectedStatus citation.Status `json:"expected_status,omitempty" yaml:"expected_status"`
	ExpectedTitle  string          `json:"expected_title,omitempty" yaml:"expected_title"`
}

// LoadDataset reads a YAML or JSON dataset file. Manifest and PDF paths
// are relative to the dataset file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("reading dataset: %w", err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("parsing dataset %s: %w", path, err)
	}
	if ds.Name == "" {
		ds.Name = filepath.Base(path)
	}

	dir := filepath.Dir(path)
	for i := range ds.Tests {
		tc := &ds.Tests[i]
		if tc.Name == "" {
			tc.Name = fmt.Sprintf("case-%d", i+1)
		}
		switch {
		case tc.Manifest != "" && tc.PDF != "":
			return ds, fmt.Errorf("%s: manifest and pdf are exclusive", tc.Name)
		case tc.Manifest == "" && tc.PDF == "":
			return ds, fmt.Errorf("%s: manifest or pdf is required", tc.Name)
		}
		if tc.Manifest != "" && !filepath.IsAbs(tc.Manifest) {
			tc.Manifest = filepath.Join(dir, tc.Manifest)
		}
		if tc.PDF != "" && !filepath.IsAbs(tc.PDF) {
			tc.PDF = filepath.Join(dir, tc.PDF)
		}
		if err := checkStatus(tc.ExpectedStatus); err != nil {
			return ds, fmt.Errorf("%s: %w", tc.Name, err)
		}
	}
	return ds, nil
}

func checkStatus(s citation.Status) error {
	switch s {
	case "", citation.Clean, citation.NeedsReview:
		return nil
	}
	return fmt.Errorf("unknown expected_status %q", s)
}

// input returns the page records of a manifest or inline case.
func (c Case) input() (vidhi.ActInput, error) {
	if c.Input != nil {
		return *c.Input, nil
	}
	if c.Manifest == "" {
		return vidhi.ActInput{}, errors.New("case has no manifest")
	}
	f, err := os.Open(c.Manifest)
	if err != nil {
		return vidhi.ActInput{}, err
	}
	defer f.Close()
	m, err := parser.LoadManifest(f, filepath.Dir(c.Manifest))
	if err != nil {
		return vidhi.ActInput{}, fmt.Errorf("%s: %w", c.Manifest, err)
	}
	return vidhi.ActInput{SourceID: m.SourceID, Title: m.Title, Date: m.Date, Pages: m.Pages}, nil
}

func digitalPage(index int, text string) parser.PageRecord {
	cov := 0.97
	return parser.PageRecord{Index: index, HasDigitalTextLayer: true, DigitalText: text, GlyphCoverage: &cov}
}

// SampleDataset returns a small built-in dataset of synthetic Acts.
func SampleDataset() Dataset {
	return Dataset{
		Name: "Sample Acts",
		Tests: []Case{
			{
				Name:     "gharelu-hinsa",
				Category: CategoryDigital,
				Input: &vidhi.ActInput{SourceID: "sample-gharelu-hinsa", Pages: []parser.PageRecord{
					digitalPage(1, "घरेलु हिंसा ऐन, २०६६\nप्रस्तावना: घरेलु हिंसा रोक्न वाञ्छनीय भएकोले।\nपरिच्छेद १ प्रारम्भिक\nदफा १ संक्षिप्त नाम\nयो ऐनको नाम \"घरेलु हिंसा ऐन, २०६६\" रहेको छ।"),
					digitalPage(2, "दफा २ परिभाषा\n(क) \"अदालत\" भन्नाले जिल्ला अदालत सम्झनु पर्छ।\n(ख) \"पीडित\" भन्नाले दफा ३ बमोजिम हिंसा भएको व्यक्ति सम्झनु पर्छ।"),
					digitalPage(3, "दफा ३ उजुरी\nपीडितले प्रहरी कार्यालयमा उजुरी दिन सक्नेछ।"),
				}},
				ExpectedPaths: []string{
					"Act/Chapter १",
					"Act/Chapter १/Dapha १",
					"Act/Chapter १/Dapha २",
					"Act/Chapter १/Dapha २/Khanda (क)",
					"Act/Chapter १/Dapha २/Khanda (ख)",
					"Act/Chapter १/Dapha ३",
				},
				ExpectedStatus: citation.Clean,
				ExpectedTitle:  "घरेलु हिंसा ऐन, २०६६",
			},
			{
				Name:     "missing-page",
				Category: CategoryPartial,
				Input: &vidhi.ActInput{SourceID: "sample-missing-page", Pages: []parser.PageRecord{
					digitalPage(1, "सार्वजनिक खरिद ऐन, २०६३\nदफा १ संक्षिप्त नाम\nयो ऐनको नाम सार्वजनिक खरिद ऐन रहेको छ।"),
					{Index: 2, HasDigitalTextLayer: false},
					digitalPage(3, "दफा ३ खरिद विधि\nखरिद प्रतिस्पर्धाबाट गरिनेछ।"),
				}},
				ExpectedPaths:  []string{"Act/Dapha १", "Act/Dapha ३"},
				ExpectedStatus: citation.NeedsReview,
			},
			{
				Name:     "english-act",
				Category: CategoryEnglish,
				Input: &vidhi.ActInput{SourceID: "sample-english-act", Pages: []parser.PageRecord{
					digitalPage(1, "The Muluki Civil Code, 2074\nChapter 1 Preliminary\nSection 1 Short title\nThis Act may be called the Muluki Civil Code.\nSection 2 Definitions\n(a) \"Court\" means a district court.\n(b) \"Person\" includes a body corporate."),
				}},
				ExpectedPaths: []string{
					"Act/Chapter 1",
					"Act/Chapter 1/Dapha 1",
					"Act/Chapter 1/Dapha 2",
					"Act/Chapter 1/Dapha 2/Khanda (a)",
					"Act/Chapter 1/Dapha 2/Khanda (b)",
				},
				ExpectedStatus: citation.Clean,
				ExpectedTitle:  "The Muluki Civil Code, 2074",
			},
		},
	}
}
