package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/adapter"
	derror "ai-chat-client/internal/error"
	"ai-chat-client/internal/infra/logging"
	"ai-chat-client/internal/infra/metrics"
)

// ===== DTOs =====

type messageDTO struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // epoch seconds
}

type sessionStateDTO struct {
	State          string       `json:"state"` // empty | unsaved | saved
	ConversationID string       `json:"conversation_id,omitempty"`
	Busy           bool         `json:"busy"`
	Messages       []messageDTO `json:"messages"`
	LastError      string       `json:"last_error,omitempty"`
}

type summaryDTO struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	MessageCount int    `json:"message_count"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

func toMessageDTOs(msgs []model.Message) []messageDTO {
	out := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDTO{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp.Unix()})
	}
	return out
}

func toSummaryDTOs(sums []model.ConversationSummary) []summaryDTO {
	out := make([]summaryDTO, 0, len(sums))
	for _, s := range sums {
		out = append(out, summaryDTO{
			ID:           s.ID,
			Title:        s.Title,
			MessageCount: s.MessageCount,
			CreatedAt:    s.CreatedAt.Unix(),
			UpdatedAt:    s.UpdatedAt.Unix(),
		})
	}
	return out
}

// ===== Auth =====

type loginRequest struct {
	UserID string `json:"user_id"`
}

// loginHandler mints a session token. Credential verification happens
// upstream (reverse proxy / identity provider); this service only binds the
// asserted user id to a signed cookie.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	token, err := s.auth.Mint(w, req.UserID)
	if err != nil {
		s.log.Error().Err(err).Msg("token mint failed")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	metrics.IncHTTPRequest("auth_login", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if id, ok := s.resolveIdentity(r); ok {
		s.registry.Drop(id.ClientID, id.OwnerID)
	}
	s.auth.Clear(w)
	metrics.IncHTTPRequest("auth_logout", http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// ===== Model backend =====

func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	models, err := s.ai.ListModels(r.Context())
	if err != nil {
		s.writeError(w, r, "models", err)
		return
	}
	metrics.IncHTTPRequest("models", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

type completionRequest struct {
	Model       string            `json:"model,omitempty"`
	Messages    []adapter.Message `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Reply string `json:"reply"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// completionsHandler is the stateless proxy: one exchange, no session log.
func (s *Server) completionsHandler(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Temperature < 0 || req.Temperature > 2.0 {
		http.Error(w, "temperature must be between 0 and 2", http.StatusBadRequest)
		return
	}
	if req.MaxTokens < 0 || req.MaxTokens > 4096 {
		http.Error(w, "max_tokens must be between 0 and 4096", http.StatusBadRequest)
		return
	}
	modelName := req.Model
	if modelName == "" {
		modelName = s.modelName
	}
	params := s.params
	if req.Temperature > 0 {
		params.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = req.MaxTokens
	}

	reply, usage, err := s.ai.ChatWithUsage(r.Context(), modelName, req.Messages, params)
	if err != nil {
		s.writeError(w, r, "completions", err)
		return
	}

	var resp completionResponse
	resp.Reply = reply
	resp.Usage.PromptTokens = usage.PromptTokens
	resp.Usage.CompletionTokens = usage.CompletionTokens
	resp.Usage.TotalTokens = usage.TotalTokens
	metrics.IncHTTPRequest("completions", http.StatusOK)
	writeJSON(w, http.StatusOK, resp)
}

// ===== Session =====

func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	sess := s.registry.Session(id.ClientID, id.OwnerID)

	dto := sessionStateDTO{
		State:          string(sess.State()),
		ConversationID: sess.ConversationID(),
		Busy:           sess.Busy(),
		Messages:       toMessageDTOs(sess.Messages()),
	}
	if err := sess.LastError(); err != nil {
		dto.LastError = err.Error()
	}
	metrics.IncHTTPRequest("session_state", http.StatusOK)
	writeJSON(w, http.StatusOK, dto)
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) sendMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := callerIdentity(r)
	sess := s.registry.Session(id.ClientID, id.OwnerID)

	reply, err := sess.SendMessage(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, r, "session_send", err)
		return
	}
	metrics.IncHTTPRequest("session_send", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) newChatHandler(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	s.registry.Session(id.ClientID, id.OwnerID).NewChat()
	metrics.IncHTTPRequest("session_new", http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

type saveRequest struct {
	Title string `json:"title"`
}

func (s *Server) saveHandler(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means derived title
	}
	id := callerIdentity(r)
	sess := s.registry.Session(id.ClientID, id.OwnerID)

	convID, err := sess.SaveConversation(r.Context(), req.Title)
	if err != nil {
		s.writeError(w, r, "session_save", err)
		return
	}
	metrics.IncHTTPRequest("session_save", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string]string{"conversation_id": convID})
}

func (s *Server) loadHandler(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	id := callerIdentity(r)
	sess := s.registry.Session(id.ClientID, id.OwnerID)

	r = r.WithContext(logging.WithConversationID(r.Context(), convID))
	if err := sess.LoadConversation(r.Context(), convID); err != nil {
		s.writeError(w, r, "session_load", err)
		return
	}
	metrics.IncHTTPRequest("session_load", http.StatusOK)
	writeJSON(w, http.StatusOK, sessionStateDTO{
		State:          string(sess.State()),
		ConversationID: sess.ConversationID(),
		Messages:       toMessageDTOs(sess.Messages()),
	})
}

// ===== History =====

func (s *Server) historyListHandler(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	hist := s.registry.History(id.OwnerID)

	if err := hist.Refresh(r.Context()); err != nil {
		s.writeError(w, r, "history_list", err)
		return
	}
	metrics.IncHTTPRequest("history_list", http.StatusOK)
	writeJSON(w, http.StatusOK, map[string][]summaryDTO{"data": toSummaryDTOs(hist.Summaries())})
}

type renameRequest struct {
	Title string `json:"title"`
}

func (s *Server) historyRenameHandler(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := callerIdentity(r)
	hist := s.registry.History(id.OwnerID)

	if err := hist.Rename(r.Context(), chi.URLParam(r, "id"), req.Title); err != nil {
		s.writeError(w, r, "history_rename", err)
		return
	}
	metrics.IncHTTPRequest("history_rename", http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) historyDeleteHandler(w http.ResponseWriter, r *http.Request) {
	id := callerIdentity(r)
	hist := s.registry.History(id.OwnerID)

	if err := hist.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, "history_delete", err)
		return
	}
	metrics.IncHTTPRequest("history_delete", http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

// ===== Shared plumbing =====

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, route string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, derror.ErrSessionBusy),
		errors.Is(err, derror.ErrSessionLoading),
		errors.Is(err, derror.ErrStaleResponse):
		status = http.StatusConflict
	case errors.Is(err, derror.ErrEmptyConversation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		logging.With(r.Context(), s.log).Error().Err(err).Str("route", route).Msg("request failed")
	}
	metrics.IncHTTPRequest(route, status)
	http.Error(w, err.Error(), status)
}
