package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/llm"
	"github.com/hyperjump/ragdocs/internal/vector"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

// ErrNoTitle is returned when no title could be derived from the document.
var ErrNoTitle = errors.New("no title generated")

// Titler derives a short session title from a sample of a document's chunks.
type Titler struct {
	index  vector.Index
	model  llm.ChatModel
	sample int
	logger *zap.Logger
}

// NewTitler creates a titler.
func NewTitler(index vector.Index, model llm.ChatModel, opts ...Option) *Titler {
	o := buildOptions(opts)
	return &Titler{index: index, model: model, sample: o.sample, logger: o.logger}
}

// Title samples the document's chunks, joins them with a space and asks the model
// for a title. Surrounding whitespace and quotes are trimmed.
func (t *Titler) Title(ctx context.Context, docID string) (string, error) {
	records, err := t.index.Get(ctx, vector.DocFilter(docID), t.sample)
	if err != nil {
		return "", fmt.Errorf("sampling chunks: %w", err)
	}
	if len(records) == 0 {
		return "", ErrNoTitle
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	out, err := t.model.Invoke(ctx, buildTitlePrompt(strings.Join(texts, " ")))
	if err != nil {
		return "", fmt.Errorf("generating title: %w", err)
	}
	title := utils.TrimQuotes(out)
	if title == "" {
		return "", ErrNoTitle
	}
	t.logger.Debug("Title generated", zap.String("doc_id", docID), zap.String("title", title))
	return title, nil
}
