// File: internal/usecase/session_uc_test.go
package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-chat-client/internal/domain"
	"ai-chat-client/internal/domain/model"
	"ai-chat-client/internal/domain/ports/adapter"
	derror "ai-chat-client/internal/error"
)

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestSession(ai *fakeAI, repo *memConversationRepo) *sessionUC {
	return NewSessionUseCase("owner-1", repo, &mockTxManager{}, ai, "test-model", adapter.ChatParams{Temperature: 0.7, MaxTokens: 1000}, testLogger())
}

func TestSendMessageRoundTrip(t *testing.T) {
	ai := &fakeAI{replies: []string{"Hi there!"}}
	s := newTestSession(ai, newMemConversationRepo())

	if s.State() != StateEmpty {
		t.Fatalf("fresh session state = %q, want empty", s.State())
	}

	reply, err := s.SendMessage(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply != "Hi there!" {
		t.Errorf("reply = %q", reply)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != model.RoleUser || msgs[0].Content != "Hello" {
		t.Errorf("first message = %+v", msgs[0])
	}
	if msgs[1].Role != model.RoleAssistant || msgs[1].Content != "Hi there!" {
		t.Errorf("second message = %+v", msgs[1])
	}
	if s.State() != StateUnsaved {
		t.Errorf("state after exchange = %q, want unsaved", s.State())
	}
	if s.Busy() {
		t.Error("session still busy after completed exchange")
	}
}

func TestSendMessageBlankInputIsNoOp(t *testing.T) {
	ai := &fakeAI{replies: []string{"nope"}}
	s := newTestSession(ai, newMemConversationRepo())

	if _, err := s.SendMessage(context.Background(), "   "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
	if ai.callCount() != 0 {
		t.Error("backend called for blank input")
	}
	if len(s.Messages()) != 0 {
		t.Error("blank input appended to log")
	}
}

func TestSendMessageWhileBusyIsRejected(t *testing.T) {
	ai := &fakeAI{replies: []string{"slow reply"}, block: make(chan struct{})}
	s := newTestSession(ai, newMemConversationRepo())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.SendMessage(context.Background(), "first")
	}()

	waitUntil(t, s.Busy)

	if _, err := s.SendMessage(context.Background(), "second"); !errors.Is(err, derror.ErrSessionBusy) {
		t.Fatalf("second send err = %v, want ErrSessionBusy", err)
	}

	close(ai.block)
	wg.Wait()

	if ai.callCount() != 1 {
		t.Errorf("backend called %d times, want 1", ai.callCount())
	}
	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log has %d messages, want 2 (second send must not append)", len(msgs))
	}
	if msgs[0].Content != "first" {
		t.Errorf("unexpected first message %q", msgs[0].Content)
	}
}

func TestSendMessageBackendFailureKeepsUserMessage(t *testing.T) {
	ai := &fakeAI{err: errors.New("upstream 503")}
	s := newTestSession(ai, newMemConversationRepo())

	_, err := s.SendMessage(context.Background(), "Hello")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Fatalf("err = %v, want ErrBackendUnavailable", err)
	}

	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Role != model.RoleUser {
		t.Fatalf("log = %+v, want only the user message", msgs)
	}
	if s.LastError() == nil {
		t.Error("last error not recorded")
	}
	if s.Busy() {
		t.Error("session stuck busy after failure")
	}
	if s.State() != StateUnsaved {
		t.Errorf("state = %q, want unsaved", s.State())
	}
}

func TestNewChatDuringInFlightDiscardsStaleReply(t *testing.T) {
	ai := &fakeAI{replies: []string{"late reply"}, block: make(chan struct{})}
	s := newTestSession(ai, newMemConversationRepo())

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "doomed")
		errc <- err
	}()

	waitUntil(t, s.Busy)
	s.NewChat()

	if s.Busy() {
		t.Error("session busy right after NewChat")
	}
	if s.State() != StateEmpty {
		t.Errorf("state = %q, want empty", s.State())
	}

	close(ai.block)
	if err := <-errc; !errors.Is(err, derror.ErrStaleResponse) {
		t.Fatalf("orphaned send err = %v, want ErrStaleResponse", err)
	}
	if n := len(s.Messages()); n != 0 {
		t.Errorf("stale reply appended, log has %d messages", n)
	}
	if s.LastError() != nil {
		t.Errorf("stale discard recorded as error: %v", s.LastError())
	}
}

func TestSendAfterNewChatUsesFreshLog(t *testing.T) {
	ai := &fakeAI{replies: []string{"a", "b"}}
	s := newTestSession(ai, newMemConversationRepo())

	if _, err := s.SendMessage(context.Background(), "one"); err != nil {
		t.Fatal(err)
	}
	s.NewChat()
	if _, err := s.SendMessage(context.Background(), "two"); err != nil {
		t.Fatal(err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Content != "two" {
		t.Fatalf("log after new chat = %+v", msgs)
	}
}

func TestSaveUnsavedCreatesThenAppendIsIdempotent(t *testing.T) {
	ai := &fakeAI{replies: []string{"reply one", "reply two"}}
	repo := newMemConversationRepo()
	s := newTestSession(ai, repo)

	if _, err := s.SendMessage(context.Background(), "Hello"); err != nil {
		t.Fatal(err)
	}

	id, err := s.SaveConversation(context.Background(), "")
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if id == "" {
		t.Fatal("save returned empty id")
	}
	if s.State() != StateSaved {
		t.Errorf("state after save = %q, want saved", s.State())
	}
	if s.ConversationID() != id {
		t.Errorf("session bound to %q, want %q", s.ConversationID(), id)
	}
	if repo.createCalls != 1 {
		t.Errorf("createCalls = %d", repo.createCalls)
	}

	// Re-saving with nothing new must not write.
	if _, err := s.SaveConversation(context.Background(), ""); err != nil {
		t.Fatalf("idempotent save: %v", err)
	}
	if repo.createCalls != 1 || repo.appendCalls != 0 {
		t.Errorf("idempotent save wrote: create=%d append=%d", repo.createCalls, repo.appendCalls)
	}

	// A further exchange then save appends only the tail.
	if _, err := s.SendMessage(context.Background(), "More"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveConversation(context.Background(), ""); err != nil {
		t.Fatalf("tail save: %v", err)
	}
	if repo.appendCalls != 1 {
		t.Errorf("appendCalls = %d, want 1", repo.appendCalls)
	}
	conv, err := repo.FindByID(context.Background(), nil, "owner-1", id)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Messages) != 4 {
		t.Errorf("stored %d messages, want 4", len(conv.Messages))
	}
	if conv.Title != "Hello" {
		t.Errorf("derived title = %q, want %q", conv.Title, "Hello")
	}
}

func TestSaveEmptySessionFails(t *testing.T) {
	s := newTestSession(&fakeAI{}, newMemConversationRepo())
	if _, err := s.SaveConversation(context.Background(), "t"); !errors.Is(err, derror.ErrEmptyConversation) {
		t.Fatalf("err = %v, want ErrEmptyConversation", err)
	}
}

func TestSaveAnonymousSessionFails(t *testing.T) {
	ai := &fakeAI{replies: []string{"ok"}}
	s := NewSessionUseCase("", newMemConversationRepo(), &mockTxManager{}, ai, "test-model", adapter.ChatParams{}, testLogger())
	if _, err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveConversation(context.Background(), "t"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestSaveFailureLeavesSessionUnsaved(t *testing.T) {
	ai := &fakeAI{replies: []string{"ok"}}
	repo := newMemConversationRepo()
	repo.createErr = errors.New("db down")
	s := newTestSession(ai, repo)

	if _, err := s.SendMessage(context.Background(), "hi"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveConversation(context.Background(), ""); err == nil {
		t.Fatal("save succeeded against failing store")
	}
	if s.State() != StateUnsaved {
		t.Errorf("state = %q, want unsaved", s.State())
	}
	if s.LastError() == nil {
		t.Error("failure not recorded")
	}

	// Store recovers; retry saves the same log.
	repo.createErr = nil
	if _, err := s.SaveConversation(context.Background(), ""); err != nil {
		t.Fatalf("retry save: %v", err)
	}
	if s.State() != StateSaved {
		t.Errorf("state after retry = %q, want saved", s.State())
	}
}

func TestLoadConversationReplacesLog(t *testing.T) {
	repo := newMemConversationRepo()
	id, err := repo.Create(context.Background(), nil, model.NewConversation("", "owner-1", "Trip Plan", []model.Message{
		{Role: model.RoleUser, Content: "Plan a trip"},
		{Role: model.RoleAssistant, Content: "Where to?"},
		{Role: model.RoleUser, Content: "Kyoto"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	ai := &fakeAI{replies: []string{"stray"}}
	s := newTestSession(ai, repo)
	if _, err := s.SendMessage(context.Background(), "unrelated"); err != nil {
		t.Fatal(err)
	}

	if err := s.LoadConversation(context.Background(), id); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.State() != StateSaved {
		t.Errorf("state = %q, want saved", s.State())
	}
	if s.ConversationID() != id {
		t.Errorf("bound id = %q", s.ConversationID())
	}
	msgs := s.Messages()
	if len(msgs) != 3 || msgs[2].Content != "Kyoto" {
		t.Fatalf("loaded log = %+v", msgs)
	}

	// Saving immediately after load writes nothing.
	if _, err := s.SaveConversation(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if repo.appendCalls != 0 {
		t.Errorf("load-then-save appended: %d", repo.appendCalls)
	}
}

func TestLoadFailureKeepsCurrentSession(t *testing.T) {
	repo := newMemConversationRepo()
	ai := &fakeAI{replies: []string{"ok"}}
	s := newTestSession(ai, repo)
	if _, err := s.SendMessage(context.Background(), "keep me"); err != nil {
		t.Fatal(err)
	}

	if err := s.LoadConversation(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if s.State() != StateUnsaved {
		t.Errorf("state = %q, want unsaved", s.State())
	}
	if len(s.Messages()) != 2 {
		t.Error("log mutated by failed load")
	}
	if s.LastError() == nil {
		t.Error("failure not recorded")
	}
}

func TestLoadForeignConversationForbidden(t *testing.T) {
	repo := newMemConversationRepo()
	id, err := repo.Create(context.Background(), nil, model.NewConversation("", "someone-else", "theirs", []model.Message{
		{Role: model.RoleUser, Content: "secret"},
	}))
	if err != nil {
		t.Fatal(err)
	}
	s := newTestSession(&fakeAI{}, repo)
	if err := s.LoadConversation(context.Background(), id); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestLoadDuringInFlightOrphansTheSend(t *testing.T) {
	repo := newMemConversationRepo()
	id, err := repo.Create(context.Background(), nil, model.NewConversation("", "owner-1", "", []model.Message{
		{Role: model.RoleUser, Content: "old chat"},
	}))
	if err != nil {
		t.Fatal(err)
	}

	ai := &fakeAI{replies: []string{"late"}, block: make(chan struct{})}
	s := newTestSession(ai, repo)

	errc := make(chan error, 1)
	go func() {
		_, err := s.SendMessage(context.Background(), "doomed")
		errc <- err
	}()
	waitUntil(t, s.Busy)

	if err := s.LoadConversation(context.Background(), id); err != nil {
		t.Fatalf("load: %v", err)
	}

	close(ai.block)
	if err := <-errc; !errors.Is(err, derror.ErrStaleResponse) {
		t.Fatalf("orphaned send err = %v, want ErrStaleResponse", err)
	}
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Content != "old chat" {
		t.Fatalf("log after load = %+v", msgs)
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
