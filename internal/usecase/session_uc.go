// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/adapter"
	"ai-chat-client/internal/domain/ports/repository"
	derror "ai-chat-client/internal/error"
	"ai-chat-client/internal/infra/logging"
	"ai-chat-client/internal/infra/metrics"
)

type SessionState string

const (
	StateEmpty   SessionState = "empty"
	StateUnsaved SessionState = "unsaved"
	StateSaved   SessionState = "saved"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase is the single contract the rest of the system calls to drive
// the active conversation.
type SessionUseCase interface {
	SendMessage(ctx context.Context, text string) (reply string, err error)
	NewChat()
	LoadConversation(ctx context.Context, conversationID string) error
	SaveConversation(ctx context.Context, title string) (conversationID string, err error)

	Messages() []model.Message
	State() SessionState
	Busy() bool
	Loading() bool
	ConversationID() string
	LastError() error
}

// sessionUC owns the active message log and its transient busy/error state.
// One instance per client; constructed at startup or login, dropped at logout.
type sessionUC struct {
	mu        sync.Mutex
	ownerID   string // empty for anonymous sessions
	log       *model.MessageLog
	coord     requestCoordinator
	loading   bool
	persisted int // messages already in the durable store
	lastErr   error

	convs     repository.ConversationRepository
	tm        repository.TransactionManager
	ai        adapter.AIServiceAdapter
	modelName string
	params    adapter.ChatParams
	logger    *zerolog.Logger
}

func NewSessionUseCase(ownerID string, convs repository.ConversationRepository, tm repository.TransactionManager, ai adapter.AIServiceAdapter, modelName string, params adapter.ChatParams, logger *zerolog.Logger) *sessionUC {
	return &sessionUC{
		ownerID:   ownerID,
		log:       model.NewMessageLog(),
		convs:     convs,
		tm:        tm,
		ai:        ai,
		modelName: modelName,
		params:    params,
		logger:    logger,
	}
}

// SendMessage appends the user's text optimistically, performs one backend
// exchange with the full history as context, and appends the reply. A failed
// exchange keeps the user message in the log so it stays visible for retry.
func (s *sessionUC) SendMessage(ctx context.Context, text string) (string, error) {
	defer logging.TraceDuration(s.logger, "SessionUC.SendMessage")()

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.IncSessionSend("rejected")
		return "", domain.ErrInvalidArgument
	}

	epoch, ok := s.coord.begin()
	if !ok {
		metrics.IncSessionSend("rejected")
		return "", derror.ErrSessionBusy
	}

	s.mu.Lock()
	s.lastErr = nil
	s.log.Append(model.RoleUser, text)
	history := s.log.Snapshot()
	s.mu.Unlock()

	reply, err := s.ai.Chat(ctx, s.modelName, toAdapterMessages(history), s.params)

	if !s.coord.finish(epoch) {
		// The session moved on (new chat or load) while we were waiting.
		metrics.IncStaleDrop()
		metrics.IncSessionSend("stale")
		s.logger.Debug().Int64("epoch", epoch).Msg("discarding stale backend response")
		return "", derror.ErrStaleResponse
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
		metrics.IncSessionSend("backend_error")
		s.logger.Warn().Err(err).Msg("model backend call failed")
		return "", s.lastErr
	}
	s.log.Append(model.RoleAssistant, reply)
	metrics.IncSessionSend("ok")
	return reply, nil
}

// NewChat resets the session to Empty. Valid from any state; an in-flight
// send is not cancelled but its result will be dropped as stale.
func (s *sessionUC) NewChat() {
	s.coord.invalidate()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Clear()
	s.persisted = 0
	s.lastErr = nil
}

// LoadConversation replaces the log with a stored transcript. On failure the
// session stays in its prior state with last-error set.
func (s *sessionUC) LoadConversation(ctx context.Context, conversationID string) error {
	defer logging.TraceDuration(s.logger, "SessionUC.LoadConversation")()

	if s.ownerID == "" {
		return domain.ErrUnauthenticated
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return derror.ErrSessionLoading
	}
	s.loading = true
	epoch := s.coord.current()
	s.mu.Unlock()

	conv, err := s.convs.FindByID(ctx, nil, s.ownerID, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if epoch != s.coord.current() {
		return derror.ErrStaleResponse
	}
	if err != nil {
		s.lastErr = err
		return err
	}

	// Orphan any in-flight send before the log changes identity.
	s.coord.invalidate()
	s.log.Reset(conv.ID, conv.Messages)
	s.persisted = len(conv.Messages)
	s.lastErr = nil
	return nil
}

// SaveConversation persists the session under its owner. From Unsaved it
// creates the conversation with every message; from Saved it appends only the
// tail not yet persisted, so re-saving an unchanged session writes nothing.
// Serialized behind the same in-flight slot as SendMessage.
func (s *sessionUC) SaveConversation(ctx context.Context, title string) (string, error) {
	defer logging.TraceDuration(s.logger, "SessionUC.SaveConversation")()

	if s.ownerID == "" {
		return "", domain.ErrUnauthenticated
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return "", derror.ErrSessionLoading
	}
	if s.log.Len() == 0 {
		s.mu.Unlock()
		return "", derror.ErrEmptyConversation
	}
	epoch, ok := s.coord.begin()
	if !ok {
		s.mu.Unlock()
		return "", derror.ErrSessionBusy
	}
	convID := s.log.ConversationID()
	snapshot := s.log.Snapshot()
	persisted := s.persisted
	s.mu.Unlock()

	// Header and messages land atomically; a crash mid-save never leaves a
	// conversation without its transcript.
	var id string
	err := s.tm.WithTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(ctx context.Context, tx repository.Tx) error {
		if convID == "" {
			conv := model.NewConversation("", s.ownerID, title, snapshot)
			created, txErr := s.convs.Create(ctx, tx, conv)
			id = created
			return txErr
		}
		id = convID
		if tail := snapshot[persisted:]; len(tail) > 0 {
			return s.convs.AppendMessages(ctx, tx, s.ownerID, convID, tail)
		}
		return nil
	})

	if !s.coord.finish(epoch) {
		return "", derror.ErrStaleResponse
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return "", err
	}
	if convID == "" {
		s.log.Bind(id)
	}
	s.persisted = len(snapshot)
	s.lastErr = nil
	return id, nil
}

func (s *sessionUC) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Snapshot()
}

func (s *sessionUC) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.log.ConversationID() != "":
		return StateSaved
	case s.log.Len() > 0:
		return StateUnsaved
	default:
		return StateEmpty
	}
}

func (s *sessionUC) Busy() bool { return s.coord.isBusy() }

func (s *sessionUC) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *sessionUC) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.ConversationID()
}

func (s *sessionUC) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func toAdapterMessages(messages []model.Message) []adapter.Message {
	out := make([]adapter.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, adapter.Message{Role: m.Role, Content: m.Content})
	}
	return out
}
