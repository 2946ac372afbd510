// Package apperr defines the closed set of error kinds surfaced by the ingestion and chat
// pipeline. Each error carries a machine-readable kind, an HTTP status and a human message.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies an error variant. Callers match on Kind, never on wrapping depth.
type Kind string

const (
	KindInvalidQuery       Kind = "invalid_query"
	KindInvalidContentType Kind = "invalid_content_type"
	KindDocumentLoad       Kind = "document_load_failed"
	KindChunking           Kind = "chunking_failed"
	KindEmbedding          Kind = "embedding_failed"
	KindVectorStore        Kind = "vector_store_failed"
	KindEmptyResponse      Kind = "empty_response"
	KindAnswer             Kind = "answer_failed"
	KindSessionNotFound    Kind = "session_not_found"
	KindSessionsNotFound   Kind = "sessions_not_found"
	KindDocumentNotFound   Kind = "document_not_found"
	KindChatsNotFound      Kind = "chats_not_found"
	KindChatSave           Kind = "chat_save_failed"
	KindDocumentSave       Kind = "document_save_failed"
	KindSessionCreation    Kind = "session_creation_failed"
	KindFileUpload         Kind = "file_upload_failed"
	KindUnauthorized       Kind = "unauthorized"
	KindInternal           Kind = "internal"
)

// Error is a tagged pipeline error.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a tagged error.
func New(kind Kind, status int, message string, err error) *Error {
	return &Error{Kind: kind, Status: status, Message: message, Err: err}
}

// KindOf returns the kind of the first tagged error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// StatusOf returns the HTTP status of the first tagged error, or 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the human message of the first tagged error, or err.Error().
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}

func InvalidQuery(reason string) *Error {
	return New(KindInvalidQuery, http.StatusBadRequest, reason, nil)
}

func InvalidContentType(contentType string) *Error {
	if contentType == "" {
		return New(KindInvalidContentType, http.StatusBadRequest, "file must have a content type", nil)
	}
	return New(KindInvalidContentType, http.StatusBadRequest,
		fmt.Sprintf("unsupported content type %q", contentType), nil)
}

func DocumentLoad(key string, err error) *Error {
	return New(KindDocumentLoad, http.StatusNotFound,
		fmt.Sprintf("failed to load document %s, check that the file exists", key), err)
}

func Chunking(key string) *Error {
	return New(KindChunking, http.StatusUnprocessableEntity,
		fmt.Sprintf("failed to process document %s, it may be empty or corrupted", key), nil)
}

func Embedding(reason string, err error) *Error {
	return New(KindEmbedding, http.StatusInternalServerError,
		"failed to generate embeddings: "+reason, err)
}

func VectorStore(reason string, err error) *Error {
	return New(KindVectorStore, http.StatusServiceUnavailable,
		"vector store operation failed: "+reason, err)
}

func EmptyResponse() *Error {
	return New(KindEmptyResponse, http.StatusBadGateway, "language model returned an empty response", nil)
}

func Answer(err error) *Error {
	return New(KindAnswer, http.StatusInternalServerError, "answer generation failed", err)
}

func SessionNotFound(token string) *Error {
	return New(KindSessionNotFound, http.StatusNotFound,
		fmt.Sprintf("session %q not found or access denied", token), nil)
}

func SessionsNotFound() *Error {
	return New(KindSessionsNotFound, http.StatusNotFound, "sessions not found or access denied", nil)
}

func DocumentNotFound(id int64) *Error {
	return New(KindDocumentNotFound, http.StatusNotFound, fmt.Sprintf("document %d not found", id), nil)
}

func ChatsNotFound() *Error {
	return New(KindChatsNotFound, http.StatusNotFound, "no chat messages found for this session", nil)
}

func ChatSave(err error) *Error {
	return New(KindChatSave, http.StatusInternalServerError, "failed to save chat messages", err)
}

func DocumentSave(err error) *Error {
	return New(KindDocumentSave, http.StatusInternalServerError, "failed to save document", err)
}

func SessionCreation(err error) *Error {
	return New(KindSessionCreation, http.StatusInternalServerError, "failed to create session", err)
}

func FileUpload(err error) *Error {
	return New(KindFileUpload, http.StatusInternalServerError, "failed to upload file to storage", err)
}

func Unauthorized(reason string) *Error {
	return New(KindUnauthorized, http.StatusUnauthorized, reason, nil)
}
