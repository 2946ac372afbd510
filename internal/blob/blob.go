// Package blob stores uploaded document bytes by key.
package blob

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get when no object exists for the key.
var ErrNotFound = errors.New("blob not found")

// Store puts and fetches document bytes by key.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// URL returns the public location of key, or "" when the store has none.
	URL(key string) string
}

// NewKey returns a fresh upload key that keeps the extension of filename,
// e.g. "uploads/3f0c...e1.pdf".
func NewKey(filename string) string {
	return "uploads/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

func joinURL(base, key string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + key
}
