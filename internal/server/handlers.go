package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdocs/internal/apperr"
	"github.com/hyperjump/ragdocs/internal/session"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	maxBytes := s.config.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20))
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		s.respondError(w, apperr.New(apperr.KindFileUpload, http.StatusBadRequest, "invalid multipart upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, apperr.New(apperr.KindFileUpload, http.StatusBadRequest, "file is required", err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, apperr.FileUpload(err))
		return
	}

	s.logger.Debug("create session request",
		zap.Int64("user_id", userID),
		zap.String("filename", header.Filename),
		zap.Int("bytes", len(data)))
	created, err := s.sessions.CreateSession(r.Context(), userID, session.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "file uploaded successfully", created)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, apperr.InvalidQuery("invalid request body"))
		return
	}
	if req.SessionID == "" {
		s.respondError(w, apperr.InvalidQuery("session_id is required"))
		return
	}

	answer, err := s.sessions.HandleTurn(r.Context(), req.SessionID, userID, req.Message)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindChatSave && answer != "" {
			// The answer is delivered even though the turn was not recorded.
			s.respondJSON(w, apperr.StatusOf(err), envelope{
				Success: false,
				Data:    map[string]string{"response": answer},
				Error:   &errorBody{Kind: apperr.KindOf(err), Message: apperr.MessageOf(err)},
			})
			return
		}
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "chat message processed successfully", map[string]string{"response": answer})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	limit, offset := pagination(r)
	sessions, err := s.sessions.ListSessions(r.Context(), userID, limit, offset)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "sessions fetched successfully", map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	token := chi.URLParam(r, "token")
	limit, offset := pagination(r)
	detail, err := s.sessions.GetSession(r.Context(), token, userID, limit, offset)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "session fetched successfully", detail)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	token := chi.URLParam(r, "token")
	s.logger.Debug("delete session request", zap.String("session_token", token))
	if err := s.sessions.DeleteSession(r.Context(), token, userID); err != nil {
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "session deleted successfully", map[string]string{"session_token": token})
}

func (s *Server) handleSearchChats(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	limit, _ := pagination(r)
	hits, err := s.sessions.SearchChats(r.Context(), userID, r.URL.Query().Get("q"), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondOK(w, "chats searched successfully", map[string]interface{}{"results": hits})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// pagination reads limit and offset; malformed values fall back to defaults.
func pagination(r *http.Request) (int, int) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return session.Paginate(limit, offset)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondOK(w http.ResponseWriter, message string, data interface{}) {
	s.respondJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)
	kind := apperr.KindOf(err)
	message := apperr.MessageOf(err)
	var tagged *apperr.Error
	if !errors.As(err, &tagged) {
		// Untagged errors carry internal detail.
		s.logger.Error("request failed", zap.Error(err))
		message = "internal server error"
	} else if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	}
	s.respondJSON(w, status, envelope{
		Success: false,
		Error:   &errorBody{Kind: kind, Message: message},
	})
}
