// Package store is the SQLite relational store for documents, sessions and chats.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/ragdocs/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store implements persistence over SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at dbPath and applies pending migrations.
// Parent directories are created if they do not exist.
func Open(dbPath string) (*Store, error) {
	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, "up", 0); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// OpenDB opens the database with WAL, foreign keys and a busy timeout enabled,
// without running migrations.
func OpenDB(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDocument inserts doc and sets its ID and timestamps.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, storage_key, url, title, content_type, indexed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.UserID, doc.StorageKey, doc.URL, doc.Title, string(doc.ContentType), doc.Indexed, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("document id: %w", err)
	}
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// GetDocument returns a document by ID.
func (s *Store) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	var contentType string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, storage_key, url, title, content_type, indexed, created_at, updated_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.UserID, &doc.StorageKey, &doc.URL, &doc.Title, &contentType,
		&doc.Indexed, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	doc.ContentType = models.ContentType(contentType)
	return &doc, nil
}

// MarkDocumentIndexed records that the document's chunks are fully stored in the vector index.
func (s *Store) MarkDocumentIndexed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET indexed = 1, updated_at = ? WHERE id = ?`, s.now(), id)
	if err != nil {
		return fmt.Errorf("mark document indexed: %w", err)
	}
	return requireRow(res, fmt.Sprintf("document %d", id))
}

// CreateSession inserts sess and sets its ID and timestamps. An empty title becomes the default.
func (s *Store) CreateSession(ctx context.Context, sess *models.Session) error {
	if sess.Title == "" {
		sess.Title = models.DefaultSessionTitle
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (token, title, document_id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.Token, sess.Title, sess.DocumentID, sess.UserID, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	sess.ID = id
	sess.CreatedAt = now
	sess.UpdatedAt = now
	return nil
}

const sessionColumns = `id, token, title, document_id, user_id, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*models.Session, error) {
	var sess models.Session
	err := row.Scan(&sess.ID, &sess.Token, &sess.Title, &sess.DocumentID, &sess.UserID,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession returns the session with token owned by userID.
// A session owned by another user is reported as ErrNotFound.
func (s *Store) GetSession(ctx context.Context, token string, userID int64) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = ? AND user_id = ?`, token, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetSessionByToken returns the session with token regardless of owner.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", token, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ListSessions returns userID's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, userID int64, limit, offset int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// UpdateSessionTitle overwrites the title of the session with token.
// It reports false, without error, when the session no longer exists.
func (s *Store) UpdateSessionTitle(ctx context.Context, token, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE token = ?`, title, s.now(), token)
	if err != nil {
		return false, fmt.Errorf("update session title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteSession deletes the session with token owned by userID; its chats cascade.
func (s *Store) DeleteSession(ctx context.Context, token string, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE token = ? AND user_id = ?`, token, userID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return requireRow(res, "session "+token)
}

// AppendTurn stores the user message and the assistant reply in one transaction.
// Both rows share a timestamp; the user row gets the lower id.
func (s *Store) AppendTurn(ctx context.Context, token, userMessage, assistantMessage string) ([]*models.ChatMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	turn := []*models.ChatMessage{
		{SessionToken: token, Role: models.RoleUser, Message: userMessage, CreatedAt: now},
		{SessionToken: token, Role: models.RoleAssistant, Message: assistantMessage, CreatedAt: now},
	}
	for _, msg := range turn {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chats (session_token, role, message, created_at) VALUES (?, ?, ?, ?)`,
			msg.SessionToken, string(msg.Role), msg.Message, msg.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("insert %s chat: %w", msg.Role, err)
		}
		if msg.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("chat id: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return turn, nil
}

// ListChats returns a session's chats ordered by (created_at desc, id desc).
func (s *Store) ListChats(ctx context.Context, token string, limit, offset int) ([]*models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_token, role, message, created_at FROM chats
		 WHERE session_token = ?
		 ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, token, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()
	var out []*models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionToken, &role, &msg.Message, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		msg.Role = models.Role(role)
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// RecentChats returns the limit most recent chats of a session, newest first.
func (s *Store) RecentChats(ctx context.Context, token string, limit int) ([]*models.ChatMessage, error) {
	return s.ListChats(ctx, token, limit, 0)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}
