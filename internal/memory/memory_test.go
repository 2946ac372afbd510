package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperjump/ragdocs/internal/models"
)

type fakeChats struct {
	rows  []*models.ChatMessage
	err   error
	limit int
}

func (f *fakeChats) RecentChats(_ context.Context, _ string, limit int) ([]*models.ChatMessage, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > limit {
		return f.rows[:limit], nil
	}
	return f.rows, nil
}

func chat(id int64, role models.Role, msg string) *models.ChatMessage {
	return &models.ChatMessage{ID: id, Role: role, Message: msg}
}

func TestLastTurn(t *testing.T) {
	tests := []struct {
		name string
		rows []*models.ChatMessage
		want []models.HistoryMessage
	}{
		{name: "new session", rows: nil, want: nil},
		{name: "single row", rows: []*models.ChatMessage{chat(1, models.RoleUser, "q")}, want: nil},
		{
			name: "one exchange reversed to chronological",
			rows: []*models.ChatMessage{chat(2, models.RoleAssistant, "a1"), chat(1, models.RoleUser, "q1")},
			want: []models.HistoryMessage{
				{Role: models.RoleUser, Content: "q1"},
				{Role: models.RoleAssistant, Content: "a1"},
			},
		},
		{
			name: "only the latest exchange of many",
			rows: []*models.ChatMessage{
				chat(4, models.RoleAssistant, "a2"), chat(3, models.RoleUser, "q2"),
				chat(2, models.RoleAssistant, "a1"), chat(1, models.RoleUser, "q1"),
			},
			want: []models.HistoryMessage{
				{Role: models.RoleUser, Content: "q2"},
				{Role: models.RoleAssistant, Content: "a2"},
			},
		},
		{
			name: "window that is not a user then assistant pair",
			rows: []*models.ChatMessage{chat(2, models.RoleUser, "q2"), chat(1, models.RoleAssistant, "a1")},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chats := &fakeChats{rows: tt.rows}
			got, err := New(chats).LastTurn(context.Background(), "tok")
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LastTurn = %+v, want %+v", got, tt.want)
			}
			if chats.limit != 2 {
				t.Errorf("read window = %d, want 2", chats.limit)
			}
		})
	}
}

func TestLastTurn_readError(t *testing.T) {
	boom := errors.New("db closed")
	_, err := New(&fakeChats{err: boom}).LastTurn(context.Background(), "tok")
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}
