package enrich

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragdocs/internal/metrics"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/store"
)

type titlerFunc func(ctx context.Context, docID string) (string, error)

func (f titlerFunc) Title(ctx context.Context, docID string) (string, error) { return f(ctx, docID) }

func fixedTitle(title string) Titler {
	return titlerFunc(func(context.Context, string) (string, error) { return title, nil })
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSession(t *testing.T, s *store.Store) *models.Session {
	t.Helper()
	ctx := context.Background()
	doc := &models.Document{UserID: 1, StorageKey: "uploads/a.txt", Title: "a.txt", ContentType: models.ContentTypeText}
	require.NoError(t, s.CreateDocument(ctx, doc))
	sess := &models.Session{Token: "tok-" + time.Now().Format("150405.000000000"), DocumentID: doc.ID, UserID: 1}
	require.NoError(t, s.CreateSession(ctx, sess))
	return sess
}

func TestMemoryQueue_EnqueueNeverBlocks(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{SessionToken: "a", DocID: "1"}))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, Job{SessionToken: "b", DocID: "1"}) }()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_DequeueAndClose(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Job{SessionToken: "a", DocID: "1"}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", job.SessionToken)

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrQueueClosed)
	assert.ErrorIs(t, q.Enqueue(ctx, Job{SessionToken: "a", DocID: "1"}), ErrQueueClosed)
}

func TestMemoryQueue_RejectsIncompleteJob(t *testing.T) {
	q := NewMemoryQueue(1)
	assert.Error(t, q.Enqueue(context.Background(), Job{DocID: "1"}))
}

func TestDecodeJob(t *testing.T) {
	data, err := encodeJob(Job{SessionToken: "t", DocID: "9"})
	require.NoError(t, err)
	job, err := decodeJob(data)
	require.NoError(t, err)
	assert.Equal(t, Job{SessionToken: "t", DocID: "9"}, job)

	_, err = decodeJob([]byte(`{"session_token":"t"}`))
	assert.Error(t, err)
	_, err = decodeJob([]byte(`not json`))
	assert.Error(t, err)
}

func TestWorker_ProcessUpdatesTitle(t *testing.T) {
	s := openStore(t)
	sess := createSession(t, s)
	w := NewWorker(NewMemoryQueue(1), fixedTitle("Quarterly Report"), s)

	result := w.Process(context.Background(), Job{SessionToken: sess.Token, DocID: "1"})
	assert.Equal(t, metrics.EnrichmentUpdated, result)

	got, err := s.GetSessionByToken(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly Report", got.Title)
}

func TestWorker_DeletedSessionIsNoop(t *testing.T) {
	s := openStore(t)
	sess := createSession(t, s)
	require.NoError(t, s.DeleteSession(context.Background(), sess.Token, sess.UserID))

	called := false
	titler := titlerFunc(func(context.Context, string) (string, error) {
		called = true
		return "x", nil
	})
	result := NewWorker(NewMemoryQueue(1), titler, s).
		Process(context.Background(), Job{SessionToken: sess.Token, DocID: "1"})
	assert.Equal(t, metrics.EnrichmentSkipped, result)
	assert.False(t, called)
}

func TestWorker_SessionDeletedDuringTitling(t *testing.T) {
	s := openStore(t)
	sess := createSession(t, s)
	titler := titlerFunc(func(ctx context.Context, _ string) (string, error) {
		require.NoError(t, s.DeleteSession(ctx, sess.Token, sess.UserID))
		return "Late Title", nil
	})
	result := NewWorker(NewMemoryQueue(1), titler, s).
		Process(context.Background(), Job{SessionToken: sess.Token, DocID: "1"})
	assert.Equal(t, metrics.EnrichmentSkipped, result)

	_, err := s.GetSessionByToken(context.Background(), sess.Token)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestWorker_TitleFailureLeavesDefault(t *testing.T) {
	s := openStore(t)
	sess := createSession(t, s)
	titler := titlerFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model unavailable")
	})
	result := NewWorker(NewMemoryQueue(1), titler, s).
		Process(context.Background(), Job{SessionToken: sess.Token, DocID: "1"})
	assert.Equal(t, metrics.EnrichmentFailed, result)

	got, err := s.GetSessionByToken(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionTitle, got.Title)
}

func TestWorker_SubmitDropsWhenFull(t *testing.T) {
	m := metrics.New()
	q := NewMemoryQueue(1)
	w := NewWorker(q, fixedTitle("t"), openStore(t), WithMetrics(m))
	ctx := context.Background()

	w.Submit(ctx, Job{SessionToken: "a", DocID: "1"})
	w.Submit(ctx, Job{SessionToken: "b", DocID: "1"})
	assert.Equal(t, 1, q.Len())
}

func TestWorker_StartProcessesQueuedJobs(t *testing.T) {
	s := openStore(t)
	sess := createSession(t, s)

	var mu sync.Mutex
	var seen []string
	titler := titlerFunc(func(_ context.Context, docID string) (string, error) {
		mu.Lock()
		seen = append(seen, docID)
		mu.Unlock()
		return "Background Title", nil
	})
	w := NewWorker(NewMemoryQueue(4), titler, s, WithWorkers(2))
	w.Start(context.Background())
	defer w.Stop()

	w.Submit(context.Background(), Job{SessionToken: sess.Token, DocID: "42"})

	require.Eventually(t, func() bool {
		got, err := s.GetSessionByToken(context.Background(), sess.Token)
		return err == nil && got.Title == "Background Title"
	}, 5*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"42"}, seen)
	mu.Unlock()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	w := NewWorker(NewMemoryQueue(1), fixedTitle("t"), openStore(t))
	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

func TestRedisQueue(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	key := "ragdocs:test:" + time.Now().Format("150405.000000000")
	q, err := NewRedisQueue(ctx, url, key, 1)
	require.NoError(t, err)
	defer q.Close()

	require.NoError(t, q.Enqueue(ctx, Job{SessionToken: "a", DocID: "1"}))
	assert.ErrorIs(t, q.Enqueue(ctx, Job{SessionToken: "b", DocID: "1"}), ErrQueueFull)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, Job{SessionToken: "a", DocID: "1"}, job)
}
