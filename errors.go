package vidhi

import (
	"errors"

	"github.com/brunobiangulo/vidhi/parser"
	"github.com/brunobiangulo/vidhi/store"
)

var (
	// ErrInvalidPageRecord is returned when a page record breaks the input
	// contract. Nothing is structured.
	ErrInvalidPageRecord = parser.ErrInvalidPageRecord

	// ErrDuplicatePageIndex is returned when two page records share an index.
	ErrDuplicatePageIndex = parser.ErrDuplicatePageIndex

	// ErrEmptyAct is returned for an Act with no page records.
	ErrEmptyAct = errors.New("vidhi: act has no pages")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("vidhi: invalid configuration")

	// ErrOCRUnavailable is returned when the configured OCR backend cannot be
	// constructed.
	ErrOCRUnavailable = errors.New("vidhi: ocr backend unavailable")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = store.ErrStoreClosed

	// ErrActNotFound is returned when an act ID does not exist.
	ErrActNotFound = store.ErrActNotFound
)
