// Package memory supplies the short-term conversational context of a session.
package memory

import (
	"context"
	"fmt"

	"github.com/hyperjump/ragdocs/internal/models"
)

// turnRows is the size of the window read for the last turn.
const turnRows = 2

// ChatReader returns a session's most recent chats ordered by (created_at desc, id desc).
type ChatReader interface {
	RecentChats(ctx context.Context, token string, limit int) ([]*models.ChatMessage, error)
}

// Memory reads the last turn of a session.
type Memory struct {
	chats ChatReader
}

// New returns a Memory over chats.
func New(chats ChatReader) *Memory {
	return &Memory{chats: chats}
}

// LastTurn returns the previous exchange of a session in chronological order, or nil
// when the window does not hold exactly one user message followed by one assistant reply.
func (m *Memory) LastTurn(ctx context.Context, token string) ([]models.HistoryMessage, error) {
	rows, err := m.chats.RecentChats(ctx, token, turnRows)
	if err != nil {
		return nil, fmt.Errorf("read last turn: %w", err)
	}
	return TurnFromRows(rows), nil
}

// TurnFromRows interprets newest-first rows as one (user, assistant) pair.
// Any other shape yields nil; partial turns are never reconstructed.
func TurnFromRows(rows []*models.ChatMessage) []models.HistoryMessage {
	if len(rows) != turnRows {
		return nil
	}
	first, second := rows[1], rows[0]
	if first.Role != models.RoleUser || second.Role != models.RoleAssistant {
		return nil
	}
	return []models.HistoryMessage{
		{Role: models.RoleUser, Content: first.Message},
		{Role: models.RoleAssistant, Content: second.Message},
	}
}
