package rag

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/embedding"
	"github.com/hyperjump/ragdocs/internal/llm"
	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/vector"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

// Query is one question about one document.
type Query struct {
	Text  string
	DocID string
	// History is the previous turn, oldest first. May be empty.
	History []models.HistoryMessage
	// SessionMemory is an advisory summary of the session. May be empty.
	SessionMemory string
}

// Generator answers questions from a document's indexed chunks.
type Generator struct {
	embedder embedding.Embedder
	index    vector.Index
	model    llm.ChatModel
	topK     int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewGenerator creates an answer generator.
func NewGenerator(embedder embedding.Embedder, index vector.Index, model llm.ChatModel, opts ...Option) *Generator {
	o := buildOptions(opts)
	return &Generator{
		embedder: embedder,
		index:    index,
		model:    model,
		topK:     o.topK,
		logger:   o.logger,
		metrics:  o.metrics,
	}
}

// Answer retrieves the closest chunks of q.DocID and asks the model to answer from them.
// A blank question is invalid_query. Every later failure is answer_failed wrapping the
// stage's own tagged error, so callers can match either kind.
func (g *Generator) Answer(ctx context.Context, q Query) (string, error) {
	question := strings.TrimSpace(q.Text)
	if question == "" {
		return "", apperr.InvalidQuery("query must not be empty")
	}

	start := time.Now()
	answer, err := g.answer(ctx, question, q)
	if err != nil {
		err = apperr.Answer(err)
		g.logger.Error("Answer generation failed",
			zap.String("doc_id", q.DocID),
			zap.String("kind", string(apperr.KindOf(err))),
			zap.Error(err))
	}
	g.metrics.ObserveAnswer(start, err)
	return answer, err
}

func (g *Generator) answer(ctx context.Context, question string, q Query) (string, error) {
	vec, err := embedding.EmbedQuery(ctx, g.embedder, question)
	if err != nil {
		return "", err
	}

	matches, err := g.index.Query(ctx, vec, g.topK, vector.DocFilter(q.DocID))
	if err != nil {
		return "", asVectorStore("query", err)
	}
	if len(matches) == 0 {
		g.logger.Warn("No chunks retrieved", zap.String("doc_id", q.DocID))
	}
	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Text
	}

	messages := BuildPrompt(question, docs, q.History, q.SessionMemory)
	g.logger.Debug("Invoking model",
		zap.String("doc_id", q.DocID),
		zap.String("question", utils.Truncate(question, 80)),
		zap.Int("chunks", len(docs)),
		zap.Int("history", len(q.History)),
		zap.Int("messages", len(messages)))

	out, err := g.model.Invoke(ctx, messages)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", apperr.EmptyResponse()
	}
	return out, nil
}
