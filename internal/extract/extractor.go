// Package extract turns uploaded document bytes into ordered text segments.
package extract

import (
	"fmt"

	"github.com/hyperjump/ragdocs/internal/models"
)

// Extractor extracts text segments from document bytes.
// A segment is a unit the chunker never merges across, such as a PDF page.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the text segments of content interpreted as contentType.
// PDF yields one segment per page; every other type yields a single segment.
// Returns an error if the content cannot be decoded or the type is unsupported.
func (e *Extractor) Extract(content []byte, contentType models.ContentType) ([]string, error) {
	switch contentType {
	case models.ContentTypePDF:
		return extractPDF(content)
	case models.ContentTypeDOCX:
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	case models.ContentTypeMarkdown, models.ContentTypeText:
		text, err := extractPlain(content)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	default:
		return nil, fmt.Errorf("unsupported content type %q", contentType)
	}
}
