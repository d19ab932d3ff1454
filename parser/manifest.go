package parser

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Manifest describes one Act's pages as produced by ingestion.
type Manifest struct {
	SourceID string       `json:"source_id"`
	Title    string       `json:"title,omitempty"`
	Date     string       `json:"date,omitempty"`
	Pages    []PageRecord `json:"pages"`
}

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["source_id", "pages"],
  "properties": {
    "source_id": {"type": "string", "minLength": 1},
    "title": {"type": "string"},
    "date": {"type": "string"},
    "pages": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["page_index", "has_digital_text_layer"],
        "properties": {
          "page_index": {"type": "integer", "minimum": 0},
          "has_digital_text_layer": {"type": "boolean"},
          "digital_text": {"type": ["string", "null"]},
          "glyph_coverage": {"type": ["number", "null"], "minimum": 0, "maximum": 1},
          "page_image": {"type": "string"}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("manifest.json", strings.NewReader(manifestSchema)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("manifest.json")
	})
	return schema, schemaErr
}

// LoadManifest reads and validates a manifest. Relative page_image paths
// resolve against baseDir; a page_image may also be a base64 data URL.
func LoadManifest(r io.Reader, baseDir string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := validateManifest(data); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}
	for i := range m.Pages {
		p := &m.Pages[i]
		if p.ImagePath == "" {
			continue
		}
		if strings.HasPrefix(p.ImagePath, "data:") {
			img, err := decodeDataURL(p.ImagePath)
			if err != nil {
				return nil, fmt.Errorf("page %d: %v: %w", p.Index, err, ErrInvalidPageRecord)
			}
			p.Image, p.ImagePath = img, ""
			continue
		}
		if !filepath.IsAbs(p.ImagePath) && baseDir != "" {
			p.ImagePath = filepath.Join(baseDir, p.ImagePath)
		}
	}
	if err := ValidateRecords(m.Pages); err != nil {
		return nil, err
	}
	return &m, nil
}

func validateManifest(data []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("manifest is not JSON: %v: %w", err, ErrInvalidPageRecord)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("manifest does not match schema: %v: %w", err, ErrInvalidPageRecord)
	}
	return nil
}

// decodeDataURL decodes "data:<mime>;base64,<payload>".
func decodeDataURL(s string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("page_image: unsupported data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}
