package session

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/blob"
	"github.com/hyperjump/ragdocs/internal/chunker"
	"github.com/hyperjump/ragdocs/internal/embedding"
	"github.com/hyperjump/ragdocs/internal/enrich"
	"github.com/hyperjump/ragdocs/internal/keyword"
	"github.com/hyperjump/ragdocs/internal/llm"
	"github.com/hyperjump/ragdocs/internal/loader"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/rag"
	"github.com/hyperjump/ragdocs/internal/store"
	"github.com/hyperjump/ragdocs/internal/vector"
)

const userID int64 = 1

type fakeModel struct {
	mu       sync.Mutex
	reply    string
	messages []llm.Message
}

func (m *fakeModel) Invoke(_ context.Context, messages []llm.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = messages
	return m.reply, nil
}

func (m *fakeModel) prompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	parts := make([]string, len(m.messages))
	for i, msg := range m.messages {
		parts[i] = msg.Content
	}
	return strings.Join(parts, "\n---\n")
}

type recordingQueue struct{ jobs []enrich.Job }

func (q *recordingQueue) Submit(_ context.Context, job enrich.Job) { q.jobs = append(q.jobs, job) }

// failingAppend makes AppendTurn fail.
type failingAppend struct{ *store.Store }

func (failingAppend) AppendTurn(context.Context, string, string, string) ([]*models.ChatMessage, error) {
	return nil, errors.New("disk full")
}

type fixture struct {
	svc    *Service
	store  *store.Store
	index  *vector.MemoryIndex
	model  *fakeModel
	queue  *recordingQueue
	chats  *keyword.BleveIndex
	blobs  *blob.DiskStore
	ingest *rag.Pipeline
	answer *rag.Generator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "ragdocs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	blobs, err := blob.NewDiskStore(filepath.Join(dir, "blobs"), "http://files.local")
	require.NoError(t, err)
	idx, err := vector.NewMemoryIndex(16)
	require.NoError(t, err)
	chats, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = chats.Close() })

	emb := embedding.NewMockEmbedder(16)
	model := &fakeModel{reply: "The answer."}
	f := &fixture{
		store:  st,
		index:  idx,
		model:  model,
		queue:  &recordingQueue{},
		chats:  chats,
		blobs:  blobs,
		ingest: rag.NewPipeline(loader.New(blobs), chunker.New(chunker.WithChunkSize(200)), emb, idx),
		answer: rag.NewGenerator(emb, idx, model),
	}
	f.svc = New(st, blobs, f.ingest, f.answer, WithTitleQueue(f.queue), WithChatIndex(chats))
	return f
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func textUpload(body string) Upload {
	return Upload{Filename: "notes.txt", ContentType: "text/plain", Data: []byte(body)}
}

func (f *fixture) create(t *testing.T) *Created {
	t.Helper()
	c, err := f.svc.CreateSession(context.Background(), userID, textUpload("Paris is the capital of France. The Seine runs through it."))
	require.NoError(t, err)
	return c
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.create(t)
	assert.NotZero(t, c.DocID)
	assert.NotZero(t, c.SessionID)
	assert.NotEmpty(t, c.SessionToken)
	assert.True(t, strings.HasPrefix(c.DocKey, "uploads/"))
	assert.True(t, strings.HasSuffix(c.DocKey, ".txt"))
	assert.Equal(t, "http://files.local/"+c.DocKey, c.DocURL)

	doc, err := f.store.GetDocument(ctx, c.DocID)
	require.NoError(t, err)
	assert.True(t, doc.Indexed)
	assert.Equal(t, "notes.txt", doc.Title)

	sess, err := f.store.GetSession(ctx, c.SessionToken, userID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionTitle, sess.Title)

	n, err := f.index.Count(ctx, vector.DocFilter(itoa(c.DocID)))
	require.NoError(t, err)
	assert.Positive(t, n)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, enrich.Job{SessionToken: c.SessionToken, DocID: itoa(c.DocID)}, f.queue.jobs[0])
}

func TestCreateSession_RejectsUnsupportedType(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateSession(context.Background(), userID,
		Upload{Filename: "sheet.xlsx", ContentType: "application/vnd.ms-excel", Data: []byte("x")})
	assert.Equal(t, apperr.KindInvalidContentType, apperr.KindOf(err))
	assert.Empty(t, f.queue.jobs)

	_, err = f.svc.ListSessions(context.Background(), userID, 0, 0)
	assert.Equal(t, apperr.KindSessionsNotFound, apperr.KindOf(err))
}

func TestCreateSession_BlankDocumentLeavesUnindexedRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateSession(ctx, userID, textUpload("  \n\n  "))
	assert.Equal(t, apperr.KindChunking, apperr.KindOf(err))
	assert.Empty(t, f.queue.jobs)

	sessions, err := f.svc.ListSessions(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	doc, err := f.store.GetDocument(ctx, sessions[0].DocumentID)
	require.NoError(t, err)
	assert.False(t, doc.Indexed)
	assert.Equal(t, 0, f.index.Size())
}

func TestHandleTurn_PersistsTwoRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t)

	answer, err := f.svc.HandleTurn(ctx, c.SessionToken, userID, "What is the capital?")
	require.NoError(t, err)
	assert.Equal(t, "The answer.", answer)
	assert.Contains(t, f.model.prompt(), "Paris is the capital of France.")
	assert.NotContains(t, f.model.prompt(), "[Previous Question")

	chats, err := f.store.ListChats(ctx, c.SessionToken, 10, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	// Newest first.
	assert.Equal(t, models.RoleAssistant, chats[0].Role)
	assert.Equal(t, "The answer.", chats[0].Message)
	assert.Equal(t, models.RoleUser, chats[1].Role)
	assert.Equal(t, "What is the capital?", chats[1].Message)
}

func TestHandleTurn_FeedsBackLastTurnAndMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t)

	_, err := f.svc.HandleTurn(ctx, c.SessionToken, userID, "First question")
	require.NoError(t, err)
	_, err = f.store.UpdateSessionTitle(ctx, c.SessionToken, "French Geography")
	require.NoError(t, err)

	f.model.reply = "Second answer."
	_, err = f.svc.HandleTurn(ctx, c.SessionToken, userID, "Second question")
	require.NoError(t, err)

	prompt := f.model.prompt()
	assert.Contains(t, prompt, "[Previous Question 1]: First question")
	assert.Contains(t, prompt, "[Previous Answer 2]: The answer.")
	assert.Contains(t, prompt, "SESSION MEMORY:\nFrench Geography")
	assert.True(t, strings.HasSuffix(prompt, "[Current Question]: Second question"))

	_, err = f.svc.HandleTurn(ctx, c.SessionToken, userID, "Third question")
	require.NoError(t, err)
	prompt = f.model.prompt()
	assert.Contains(t, prompt, "[Previous Question 1]: Second question")
	assert.NotContains(t, prompt, "First question")
}

func TestHandleTurn_SessionNotFound(t *testing.T) {
	f := newFixture(t)
	c := f.create(t)

	_, err := f.svc.HandleTurn(context.Background(), "missing", userID, "hi")
	assert.Equal(t, apperr.KindSessionNotFound, apperr.KindOf(err))

	_, err = f.svc.HandleTurn(context.Background(), c.SessionToken, userID+1, "hi")
	assert.Equal(t, apperr.KindSessionNotFound, apperr.KindOf(err))
}

func TestHandleTurn_BlankMessage(t *testing.T) {
	f := newFixture(t)
	c := f.create(t)
	_, err := f.svc.HandleTurn(context.Background(), c.SessionToken, userID, " ")
	assert.Equal(t, apperr.KindInvalidQuery, apperr.KindOf(err))
}

func TestHandleTurn_SaveFailureStillReturnsAnswer(t *testing.T) {
	f := newFixture(t)
	c := f.create(t)
	svc := New(failingAppend{f.store}, f.blobs, f.ingest, f.answer)

	answer, err := svc.HandleTurn(context.Background(), c.SessionToken, userID, "What river?")
	assert.Equal(t, "The answer.", answer)
	assert.Equal(t, apperr.KindChatSave, apperr.KindOf(err))

	chats, err := f.store.ListChats(context.Background(), c.SessionToken, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t)
	_, err := f.svc.HandleTurn(ctx, c.SessionToken, userID, "q1")
	require.NoError(t, err)

	detail, err := f.svc.GetSession(ctx, c.SessionToken, userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", detail.Session.DocumentName)
	assert.Equal(t, c.DocURL, detail.Session.DocumentURL)
	assert.Equal(t, c.SessionToken, detail.Session.Token)
	require.Len(t, detail.Chats, 2)
	assert.Equal(t, models.RoleAssistant, detail.Chats[0].Role)

	page, err := f.svc.GetSession(ctx, c.SessionToken, userID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page.Chats, 1)
	assert.Equal(t, models.RoleUser, page.Chats[0].Role)

	_, err = f.svc.GetSession(ctx, c.SessionToken, userID+1, 0, 0)
	assert.Equal(t, apperr.KindSessionNotFound, apperr.KindOf(err))
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(t)
	_, err := f.svc.HandleTurn(ctx, c.SessionToken, userID, "Where is the Seine?")
	require.NoError(t, err)

	hits, err := f.svc.SearchChats(ctx, userID, "seine", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, hits)

	require.NoError(t, f.svc.DeleteSession(ctx, c.SessionToken, userID))

	_, err = f.svc.HandleTurn(ctx, c.SessionToken, userID, "again")
	assert.Equal(t, apperr.KindSessionNotFound, apperr.KindOf(err))
	assert.Equal(t, apperr.KindSessionNotFound, apperr.KindOf(f.svc.DeleteSession(ctx, c.SessionToken, userID)))

	hits, err = f.svc.SearchChats(ctx, userID, "seine", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	// The document and its chunks outlive the session.
	n, err := f.index.Count(ctx, vector.DocFilter(itoa(c.DocID)))
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestSearchChats_BlankQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SearchChats(context.Background(), userID, "", 10)
	assert.Equal(t, apperr.KindInvalidQuery, apperr.KindOf(err))
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		limit, offset       int
		wantLimit, wantOffs int
	}{
		{0, 0, DefaultLimit, 0},
		{5, 3, 5, 3},
		{500, -1, MaxLimit, 0},
	}
	for _, tt := range tests {
		l, o := Paginate(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, l)
		assert.Equal(t, tt.wantOffs, o)
	}
}
