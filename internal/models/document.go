// Package models defines core data structures for documents, sessions and chat messages.
package models

import (
	"strings"
	"time"
)

// ContentType is the normalized type of an uploaded document.
type ContentType string

const (
	ContentTypePDF      ContentType = "pdf"
	ContentTypeMarkdown ContentType = "md"
	ContentTypeDOCX     ContentType = "docx"
	ContentTypeText     ContentType = "txt"
)

// mimeTypes maps accepted upload MIME types to content types.
var mimeTypes = map[string]ContentType{
	"application/pdf": ContentTypePDF,
	"text/markdown":   ContentTypeMarkdown,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ContentTypeDOCX,
	"text/plain": ContentTypeText,
}

// ContentTypeFromMIME returns the content type for an upload MIME type.
// Parameters such as "; charset=utf-8" are ignored.
func ContentTypeFromMIME(mime string) (ContentType, bool) {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	ct, ok := mimeTypes[strings.ToLower(strings.TrimSpace(mime))]
	return ct, ok
}

// Extension returns the file extension (with leading dot) used for blob keys.
func (c ContentType) Extension() string {
	switch c {
	case ContentTypePDF:
		return ".pdf"
	case ContentTypeMarkdown:
		return ".md"
	case ContentTypeDOCX:
		return ".docx"
	default:
		return ".txt"
	}
}

// Document is an uploaded file owned by one user.
// Indexed is set once its chunks have been written to the vector index.
type Document struct {
	ID          int64       `json:"id" db:"id"`
	UserID      int64       `json:"user_id" db:"user_id"`
	StorageKey  string      `json:"key" db:"storage_key"`
	URL         string      `json:"url" db:"url"`
	Title       string      `json:"title" db:"title"`
	ContentType ContentType `json:"content_type" db:"content_type"`
	Indexed     bool        `json:"indexed" db:"indexed"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}
