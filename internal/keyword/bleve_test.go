package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ragdocs/internal/models"
)

func chats(token string, firstID int64, messages ...string) []*models.ChatMessage {
	out := make([]*models.ChatMessage, len(messages))
	for i, m := range messages {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		out[i] = &models.ChatMessage{ID: firstID + int64(i), SessionToken: token, Role: role, Message: m}
	}
	return out
}

func newIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsMessage(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.IndexChats(ctx, 1, chats("s1", 1,
		"What does the report say about Omnisyan?",
		"The report mentions Omnisyan in the findings section.")); err != nil {
		t.Fatalf("IndexChats: %v", err)
	}

	hits, err := idx.Search(ctx, 1, "omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	for _, h := range hits {
		if h.SessionToken != "s1" {
			t.Errorf("hit session = %q, want s1", h.SessionToken)
		}
		if h.Message == "" || h.Role == "" {
			t.Errorf("hit missing stored fields: %+v", h)
		}
	}
}

func TestBleveIndex_SearchIsScopedToUser(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.IndexChats(ctx, 1, chats("s1", 1, "budget for marketing")); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexChats(ctx, 2, chats("s2", 10, "budget for engineering")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, 2, "budget", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ChatID != ChatDocID(10) {
		t.Errorf("hits = %+v, want only chat 10", hits)
	}
}

func TestBleveIndex_FuzzySearch(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.IndexChats(ctx, 1, chats("s1", 1, "quarterly revenue summary")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, 1, "revenu", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("exact search for typo returned %d hits", len(hits))
	}

	hits, err = idx.Search(ctx, 1, "revenu", 10, &SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("fuzzy search returned %d hits, want 1", len(hits))
	}
}

func TestBleveIndex_PhraseBoostRanksAdjacentTermsFirst(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.IndexChats(ctx, 1, []*models.ChatMessage{
		{ID: 1, SessionToken: "s1", Role: models.RoleUser, Message: "the model of risk and the data"},
		{ID: 2, SessionToken: "s1", Role: models.RoleUser, Message: "explain the risk model"},
	}); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, 1, "risk model", 10, &SearchOptions{PhraseBoost: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ChatID != ChatDocID(2) {
		t.Errorf("first hit = %s, want phrase match %s", hits[0].ChatID, ChatDocID(2))
	}
}

func TestBleveIndex_DeleteSession(t *testing.T) {
	idx := newIndex(t)
	ctx := context.Background()
	if err := idx.IndexChats(ctx, 1, chats("s1", 1, "alpha one", "alpha two")); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexChats(ctx, 1, chats("s2", 3, "alpha three")); err != nil {
		t.Fatal(err)
	}

	if err := idx.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("DocCount = %d, want 1", n)
	}
	hits, err := idx.Search(ctx, 1, "alpha", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].SessionToken != "s2" {
		t.Errorf("hits after delete = %+v", hits)
	}
}

func TestBleveIndex_BlankQuery(t *testing.T) {
	hits, err := newIndex(t).Search(context.Background(), 1, "   ", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Errorf("blank query returned %d hits", len(hits))
	}
}

func TestBleveIndex_ReopenKeepsMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chats.bleve")
	ctx := context.Background()

	idx1, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx1.IndexChats(ctx, 1, chats("s1", 1, "uniqueword")); err != nil {
		t.Fatal(err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	idx2, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex (reopen): %v", err)
	}
	defer func() { _ = idx2.Close() }()
	hits, err := idx2.Search(ctx, 1, "uniqueword", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("got %d hits after reopen, want 1", len(hits))
	}
}
