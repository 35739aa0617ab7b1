// File: internal/usecase/session_registry.go
package usecase

import (
	"sync"

	"github.com/rs/zerolog"

	"ai-chat-client/internal/domain/ports/adapter"
	"ai-chat-client/internal/domain/ports/repository"
	"ai-chat-client/internal/infra/metrics"
)

// SessionRegistry hands out one session controller and one history index per
// client. Entries live until Drop (logout) removes them.
type SessionRegistry struct {
	mu        sync.Mutex
	sessions  map[string]*sessionUC
	histories map[string]*historyUC

	convs     repository.ConversationRepository
	tm        repository.TransactionManager
	ai        adapter.AIServiceAdapter
	modelName string
	params    adapter.ChatParams
	logger    *zerolog.Logger
}

func NewSessionRegistry(convs repository.ConversationRepository, tm repository.TransactionManager, ai adapter.AIServiceAdapter, modelName string, params adapter.ChatParams, logger *zerolog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions:  make(map[string]*sessionUC),
		histories: make(map[string]*historyUC),
		convs:     convs,
		tm:        tm,
		ai:        ai,
		modelName: modelName,
		params:    params,
		logger:    logger,
	}
}

// sessionKey binds a session to both the client and the owner it was created
// for, so the same client id under a different identity never resolves to
// someone else's live session.
func sessionKey(clientID, ownerID string) string { return clientID + "\x00" + ownerID }

// Session returns the client's session controller, creating it on first use.
// An empty ownerID yields an anonymous session that can chat but not persist.
func (r *SessionRegistry) Session(clientID, ownerID string) SessionUseCase {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(clientID, ownerID)
	if s, ok := r.sessions[key]; ok {
		return s
	}
	s := NewSessionUseCase(ownerID, r.convs, r.tm, r.ai, r.modelName, r.params, r.logger)
	r.sessions[key] = s
	metrics.SetActiveSessions(len(r.sessions))
	return s
}

// History returns the owner's history index, creating it on first use.
func (r *SessionRegistry) History(ownerID string) HistoryUseCase {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histories[ownerID]; ok {
		return h
	}
	h := NewHistoryUseCase(ownerID, r.convs, r.logger)
	r.histories[ownerID] = h
	return h
}

// Drop discards a client's session and the owner's cached history at logout.
func (r *SessionRegistry) Drop(clientID, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey(clientID, ownerID)
	if s, ok := r.sessions[key]; ok {
		s.NewChat()
		delete(r.sessions, key)
	}
	if h, ok := r.histories[ownerID]; ok {
		h.Clear()
		delete(r.histories, ownerID)
	}
	metrics.SetActiveSessions(len(r.sessions))
}
