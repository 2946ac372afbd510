package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Invoke(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/openai/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"The answer."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL + "/v1beta/openai", APIKey: "key", Model: "gemini-2.5-flash", Temperature: 0.2})
	answer, err := c.Invoke(context.Background(), []Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "question?"},
	})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if answer != "The answer." {
		t.Errorf("answer = %q", answer)
	}
	if got.Model != "gemini-2.5-flash" || len(got.Messages) != 2 || got.Messages[1].Role != RoleUser {
		t.Errorf("unexpected request: %+v", got)
	}
	if got.Temperature != 0.2 {
		t.Errorf("temperature = %v", got.Temperature)
	}
}

func TestClient_InvokeErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "http error", status: http.StatusInternalServerError, body: `{"error":"down"}`},
		{name: "malformed body", status: http.StatusOK, body: `not json`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`, wantErr: ErrNoChoices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewClient(Options{BaseURL: srv.URL}).Invoke(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_rateLimitHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, RequestsPerSecond: 0.01})
	if _, err := c.Invoke(context.Background(), nil); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Invoke(ctx, nil); err == nil {
		t.Error("second call should fail waiting for the limiter")
	}
}

func TestChatModelFunc(t *testing.T) {
	var m ChatModel = ChatModelFunc(func(_ context.Context, msgs []Message) (string, error) {
		return msgs[len(msgs)-1].Content, nil
	})
	out, _ := m.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "echo"}})
	if out != "echo" {
		t.Errorf("out = %q", out)
	}
}
