// Package keyword provides full-text search over chat messages.
package keyword

import (
	"context"

	"github.com/hyperjump/ragdocs/internal/models"
)

// SearchOptions optional parameters for chat search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score of messages containing the query as a phrase.
	// Values > 1 rank adjacent-term matches higher (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// ChatIndex indexes chat messages per user and session.
type ChatIndex interface {
	// IndexChats adds messages owned by userID. Re-indexing a message overwrites it.
	IndexChats(ctx context.Context, userID int64, chats []*models.ChatMessage) error
	// Search returns userID's messages matching query, best first.
	Search(ctx context.Context, userID int64, query string, limit int, opts *SearchOptions) ([]*Hit, error)
	// DeleteSession removes every message of the session.
	DeleteSession(ctx context.Context, sessionToken string) error
	Close() error
	// DocCount returns the total number of messages in the index.
	DocCount() (uint64, error)
}

// Hit is a single chat search result.
type Hit struct {
	ChatID       string      `json:"chat_id"`
	SessionToken string      `json:"session_id"`
	Role         models.Role `json:"role"`
	Message      string      `json:"message"`
	Score        float64     `json:"score"`
}
