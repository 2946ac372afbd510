// Package session ties uploads, chat turns and session history to the RAG pipeline.
package session

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/blob"
	"github.com/hyperjump/ragdocs/internal/enrich"
	"github.com/hyperjump/ragdocs/internal/keyword"
	"github.com/hyperjump/ragdocs/internal/memory"
	"github.com/hyperjump/ragdocs/internal/models"
	"github.com/hyperjump/ragdocs/internal/rag"
	"github.com/hyperjump/ragdocs/internal/store"
	"github.com/hyperjump/ragdocs/pkg/utils"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Store is the relational storage the service needs.
type Store interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	MarkDocumentIndexed(ctx context.Context, id int64) error
	CreateSession(ctx context.Context, sess *models.Session) error
	GetSession(ctx context.Context, token string, userID int64) (*models.Session, error)
	ListSessions(ctx context.Context, userID int64, limit, offset int) ([]*models.Session, error)
	DeleteSession(ctx context.Context, token string, userID int64) error
	AppendTurn(ctx context.Context, token, userMessage, assistantMessage string) ([]*models.ChatMessage, error)
	ListChats(ctx context.Context, token string, limit, offset int) ([]*models.ChatMessage, error)
	RecentChats(ctx context.Context, token string, limit int) ([]*models.ChatMessage, error)
}

// Ingester indexes a stored document.
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (int, error)
}

// Answerer answers a question about one document.
type Answerer interface {
	Answer(ctx context.Context, q rag.Query) (string, error)
}

// TitleQueue accepts title enrichment jobs without blocking.
type TitleQueue interface {
	Submit(ctx context.Context, job enrich.Job)
}

// Service is the session orchestrator.
type Service struct {
	store    Store
	blobs    blob.Store
	ingester Ingester
	answerer Answerer
	memory   *memory.Memory
	titles   TitleQueue
	chats    keyword.ChatIndex
	logger   *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTitleQueue enables title enrichment for new sessions.
func WithTitleQueue(q TitleQueue) Option {
	return func(s *Service) { s.titles = q }
}

// WithChatIndex enables keyword search over chat messages.
func WithChatIndex(idx keyword.ChatIndex) Option {
	return func(s *Service) { s.chats = idx }
}

// New creates a session service.
func New(st Store, blobs blob.Store, ingester Ingester, answerer Answerer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		blobs:    blobs,
		ingester: ingester,
		answerer: answerer,
		memory:   memory.New(st),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Upload is a document received from a user.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Created describes a new session and its document.
type Created struct {
	DocID        int64  `json:"doc_id"`
	DocKey       string `json:"doc_key"`
	DocURL       string `json:"doc_url"`
	SessionID    int64  `json:"session_id"`
	SessionToken string `json:"session_token"`
}

// CreateSession stores the upload, records the document and a session for it, indexes the
// document and schedules title enrichment. A failure leaves earlier rows in place; the
// document stays unindexed.
func (s *Service) CreateSession(ctx context.Context, userID int64, up Upload) (*Created, error) {
	ct, ok := models.ContentTypeFromMIME(up.ContentType)
	if !ok {
		return nil, apperr.InvalidContentType(up.ContentType)
	}

	key := blob.NewKey(up.Filename)
	if path.Ext(up.Filename) == "" {
		key += ct.Extension()
	}
	if err := s.blobs.Put(ctx, key, up.ContentType, up.Data); err != nil {
		s.logger.Error("Blob upload failed", zap.String("key", key), zap.Error(err))
		return nil, apperr.FileUpload(err)
	}

	doc := &models.Document{
		UserID:      userID,
		StorageKey:  key,
		URL:         s.blobs.URL(key),
		Title:       up.Filename,
		ContentType: ct,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, apperr.DocumentSave(err)
	}

	sess := &models.Session{
		Token:      uuid.NewString(),
		Title:      models.DefaultSessionTitle,
		DocumentID: doc.ID,
		UserID:     userID,
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, apperr.SessionCreation(err)
	}

	docID := strconv.FormatInt(doc.ID, 10)
	if _, err := s.ingester.Ingest(ctx, rag.IngestRequest{
		DocID:       docID,
		StorageKey:  key,
		ContentType: ct,
	}); err != nil {
		return nil, err
	}
	if err := s.store.MarkDocumentIndexed(ctx, doc.ID); err != nil {
		// Chunks are searchable; only the status flag is stale.
		s.logger.Warn("Failed to mark document indexed", zap.Int64("doc_id", doc.ID), zap.Error(err))
	}

	if s.titles != nil {
		s.titles.Submit(ctx, enrich.Job{SessionToken: sess.Token, DocID: docID})
	}

	s.logger.Info("Session created",
		zap.Int64("user_id", userID),
		zap.Int64("doc_id", doc.ID),
		zap.String("session_token", sess.Token))
	return &Created{
		DocID:        doc.ID,
		DocKey:       key,
		DocURL:       doc.URL,
		SessionID:    sess.ID,
		SessionToken: sess.Token,
	}, nil
}

// HandleTurn answers message within the session and records the exchange.
// If the answer was generated but could not be saved, the answer is returned together
// with a chat_save_failed error.
func (s *Service) HandleTurn(ctx context.Context, token string, userID int64, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", apperr.InvalidQuery("message must not be empty")
	}
	sess, err := s.getSession(ctx, token, userID)
	if err != nil {
		return "", err
	}

	history, err := s.memory.LastTurn(ctx, token)
	if err != nil {
		s.logger.Warn("Answering without history", zap.String("session_token", token), zap.Error(err))
		history = nil
	}
	var sessionMemory string
	if sess.Title != models.DefaultSessionTitle {
		sessionMemory = sess.Title
	}

	answer, err := s.answerer.Answer(ctx, rag.Query{
		Text:          message,
		DocID:         strconv.FormatInt(sess.DocumentID, 10),
		History:       history,
		SessionMemory: sessionMemory,
	})
	if err != nil {
		return "", err
	}

	rows, err := s.store.AppendTurn(ctx, token, message, answer)
	if err != nil {
		s.logger.Error("Chat turn not saved",
			zap.String("session_token", token),
			zap.String("kind", string(apperr.KindChatSave)),
			zap.Error(err))
		return answer, apperr.ChatSave(err)
	}
	if s.chats != nil {
		if err := s.chats.IndexChats(ctx, userID, rows); err != nil {
			s.logger.Warn("Chat search index update failed", zap.String("session_token", token), zap.Error(err))
		}
	}
	return answer, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *Service) ListSessions(ctx context.Context, userID int64, limit, offset int) ([]*models.Session, error) {
	limit, offset = Paginate(limit, offset)
	sessions, err := s.store.ListSessions(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, apperr.SessionsNotFound()
	}
	return sessions, nil
}

// Detail is a session with its document and one page of chats.
type Detail struct {
	Session *View                 `json:"session"`
	Chats   []*models.ChatMessage `json:"chats"`
}

// View is a session annotated with its document.
type View struct {
	*models.Session
	DocumentName string `json:"document_name"`
	DocumentURL  string `json:"document_url"`
}

// GetSession returns the session and its chats ordered newest first.
func (s *Service) GetSession(ctx context.Context, token string, userID int64, limit, offset int) (*Detail, error) {
	sess, err := s.getSession(ctx, token, userID)
	if err != nil {
		return nil, err
	}
	view := &View{Session: sess}
	doc, err := s.store.GetDocument(ctx, sess.DocumentID)
	switch {
	case err == nil:
		view.DocumentName = doc.Title
		view.DocumentURL = doc.URL
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	limit, offset = Paginate(limit, offset)
	chats, err := s.store.ListChats(ctx, token, limit, offset)
	if err != nil {
		return nil, err
	}
	if chats == nil {
		chats = []*models.ChatMessage{}
	}
	return &Detail{Session: view, Chats: chats}, nil
}

// DeleteSession removes the session and its chats. The document, its blob and its
// vectors are kept.
func (s *Service) DeleteSession(ctx context.Context, token string, userID int64) error {
	if err := s.store.DeleteSession(ctx, token, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.SessionNotFound(token)
		}
		return err
	}
	if s.chats != nil {
		if err := s.chats.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("Chat search index cleanup failed", zap.String("session_token", token), zap.Error(err))
		}
	}
	s.logger.Info("Session deleted", zap.String("session_token", token), zap.Int64("user_id", userID))
	return nil
}

// SearchChats runs a keyword search over the user's chat messages.
func (s *Service) SearchChats(ctx context.Context, userID int64, query string, limit int) ([]*keyword.Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.InvalidQuery("search query must not be empty")
	}
	if s.chats == nil {
		return []*keyword.Hit{}, nil
	}
	limit, _ = Paginate(limit, 0)
	return s.chats.Search(ctx, userID, query, limit, &keyword.SearchOptions{PhraseBoost: 1.5, FuzzyEnabled: true, Fuzziness: 1})
}

func (s *Service) getSession(ctx context.Context, token string, userID int64) (*models.Session, error) {
	sess, err := s.store.GetSession(ctx, token, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.SessionNotFound(token)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Paginate applies the default limit and clamps both values.
func Paginate(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
