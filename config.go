package vidhi

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the structuring engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.vidhi/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "vidhi".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.vidhi/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// SkipStore runs the pipeline without opening SQLite. Results are only
	// returned to the caller (and sent to Postgres if configured).
	SkipStore bool `json:"skip_store" yaml:"skip_store"`

	// SkipReferences disables storing the cross-reference graph.
	SkipReferences bool `json:"skip_references" yaml:"skip_references"`

	// Postgres hand-off; empty DSN disables it.
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`

	// OCR backend and the vision LLM it may use.
	OCR    OCRConfig `json:"ocr" yaml:"ocr"`
	Vision LLMConfig `json:"vision" yaml:"vision"`

	// Text source selection
	CoverageThreshold float64       `json:"coverage_threshold" yaml:"coverage_threshold"` // digital layer must be strictly above this
	MinDigitalChars   int           `json:"min_digital_chars" yaml:"min_digital_chars"`
	PageWorkers       int           `json:"page_workers" yaml:"page_workers"`
	OCRConcurrency    int           `json:"ocr_concurrency" yaml:"ocr_concurrency"` // process-wide cap on running OCR calls
	OCRTimeout        time.Duration `json:"ocr_timeout" yaml:"ocr_timeout"`

	// ActWorkers bounds how many Acts StructureAll runs at once.
	ActWorkers int `json:"act_workers" yaml:"act_workers"`

	// Marker recognition
	Lexicon          string `json:"lexicon" yaml:"lexicon"` // optional YAML file of extra keywords
	NumberedSections bool   `json:"numbered_sections" yaml:"numbered_sections"`

	// Health report
	ReviewAnomalyRatio float64 `json:"review_anomaly_ratio" yaml:"review_anomaly_ratio"`

	// Chunking
	MaxChunkTokens    int  `json:"max_chunk_tokens" yaml:"max_chunk_tokens"`
	SkipComprehensive bool `json:"skip_comprehensive" yaml:"skip_comprehensive"`

	// KeepTree keeps the node tree on returned Acts instead of releasing it
	// after chunks are emitted.
	KeepTree bool `json:"keep_tree" yaml:"keep_tree"`

	// Embedding dimensions of the vec_chunks slot (must match the model
	// that fills it).
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openai, openrouter, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// OCRConfig selects and configures the OCR backend.
type OCRConfig struct {
	Backend        string  `json:"backend" yaml:"backend"` // tesseract, vision, none
	Binary         string  `json:"binary" yaml:"binary"`
	PdftoppmBinary string  `json:"pdftoppm_binary" yaml:"pdftoppm_binary"`
	Lang           string  `json:"lang" yaml:"lang"`
	DPI            int     `json:"dpi" yaml:"dpi"`
	TessdataDir    string  `json:"tessdata_dir" yaml:"tessdata_dir"`
	PSM            int     `json:"psm" yaml:"psm"`
	OEM            int     `json:"oem" yaml:"oem"`
	TempDir        string  `json:"temp_dir" yaml:"temp_dir"`
	Confidence     float64 `json:"confidence" yaml:"confidence"` // vision backend only
}

// PostgresConfig configures the legal_chunks hand-off.
type PostgresConfig struct {
	DSN          string `json:"dsn" yaml:"dsn"`
	EnsureSchema bool   `json:"ensure_schema" yaml:"ensure_schema"`
}

// OCR backends.
const (
	BackendTesseract = "tesseract"
	BackendVision    = "vision"
	BackendNone      = "none"
)

// DefaultConfig returns a Config with local Tesseract OCR and the
// database in ~/.vidhi/vidhi.db.
func DefaultConfig() Config {
	return Config{
		DBName:     "vidhi",
		StorageDir: "home",
		OCR: OCRConfig{
			Backend:        BackendTesseract,
			Binary:         "tesseract",
			PdftoppmBinary: "pdftoppm",
			Lang:           "nep+eng",
			DPI:            300,
			OEM:            1,
		},
		Vision: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2-vision",
			BaseURL:  "http://localhost:11434",
		},
		CoverageThreshold:  0.85,
		MinDigitalChars:    50,
		PageWorkers:        4,
		OCRConcurrency:     2,
		OCRTimeout:         2 * time.Minute,
		ActWorkers:         2,
		NumberedSections:   true,
		ReviewAnomalyRatio: 0.05,
		MaxChunkTokens:     1024,
		EmbeddingDim:       768,
	}
}

// LoadConfig reads a YAML config over DefaultConfig and applies VIDHI_*
// environment overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := map[string]*string{
		"VIDHI_DB_PATH":         &c.DBPath,
		"VIDHI_POSTGRES_DSN":    &c.Postgres.DSN,
		"VIDHI_OCR_BACKEND":     &c.OCR.Backend,
		"VIDHI_OCR_LANG":        &c.OCR.Lang,
		"VIDHI_TESSDATA_DIR":    &c.OCR.TessdataDir,
		"VIDHI_VISION_PROVIDER": &c.Vision.Provider,
		"VIDHI_VISION_MODEL":    &c.Vision.Model,
		"VIDHI_VISION_BASE_URL": &c.Vision.BaseURL,
		"VIDHI_VISION_API_KEY":  &c.Vision.APIKey,
		"VIDHI_LEXICON":         &c.Lexicon,
	}
	for key, dst := range str {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"VIDHI_PAGE_WORKERS":    &c.PageWorkers,
		"VIDHI_OCR_CONCURRENCY": &c.OCRConcurrency,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, key, v)
			}
			*dst = n
		}
	}

	if v := getenv("VIDHI_OCR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: VIDHI_OCR_TIMEOUT=%q", ErrInvalidConfig, v)
		}
		c.OCRTimeout = d
	}
	if v := getenv("VIDHI_COVERAGE_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: VIDHI_COVERAGE_THRESHOLD=%q", ErrInvalidConfig, v)
		}
		c.CoverageThreshold = f
	}
	return nil
}

// Validate reports the first out-of-range field.
func (c *Config) Validate() error {
	bad := func(field string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalidConfig, field, v)
	}
	switch {
	case c.CoverageThreshold <= 0 || c.CoverageThreshold > 1:
		return bad("coverage_threshold", c.CoverageThreshold)
	case c.MinDigitalChars < 0:
		return bad("min_digital_chars", c.MinDigitalChars)
	case c.PageWorkers < 1:
		return bad("page_workers", c.PageWorkers)
	case c.OCRConcurrency < 1:
		return bad("ocr_concurrency", c.OCRConcurrency)
	case c.OCRTimeout <= 0:
		return bad("ocr_timeout", c.OCRTimeout)
	case c.ActWorkers < 1:
		return bad("act_workers", c.ActWorkers)
	case c.ReviewAnomalyRatio < 0 || c.ReviewAnomalyRatio > 1:
		return bad("review_anomaly_ratio", c.ReviewAnomalyRatio)
	case c.MaxChunkTokens < 0:
		return bad("max_chunk_tokens", c.MaxChunkTokens)
	case c.EmbeddingDim < 1:
		return bad("embedding_dim", c.EmbeddingDim)
	case c.OCR.DPI < 0:
		return bad("ocr.dpi", c.OCR.DPI)
	}
	switch c.OCR.Backend {
	case BackendTesseract, BackendVision, BackendNone:
	default:
		return bad("ocr.backend", c.OCR.Backend)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "vidhi"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".vidhi", name+".db")
	}
}
