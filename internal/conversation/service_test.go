package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/memohai/docdesk/internal/history"
	"github.com/memohai/docdesk/internal/llm"
)

type fakeStore struct {
	mu        sync.Mutex
	data      map[string][]history.Message
	appendErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string][]history.Message{}}
}

func (s *fakeStore) Get(_ context.Context, userID string) ([]history.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.Message(nil), s.data[userID]...), nil
}

func (s *fakeStore) Append(_ context.Context, userID string, msgs ...history.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[userID] = append(s.data[userID], msgs...)
	return nil
}

func (s *fakeStore) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

type fakeProvider struct {
	reply    string
	err      error
	requests []llm.Request
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(_ context.Context, req llm.Request) (llm.Result, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return llm.Result{}, p.err
	}
	return llm.Result{Message: llm.Message{Role: "assistant", Content: p.reply}}, nil
}

func newTestService(store HistoryStore, provider llm.Provider) *Service {
	return NewService(nil, store, provider, DefaultPrompts(), Options{Model: "gpt-4o-mini", Temperature: llm.Float(0.7), TopP: llm.Float(0.9)})
}

func TestAskInsertsSystemPromptWithoutPersistingIt(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{reply: "  hello there  "}
	svc := newTestService(store, provider)

	answer, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Text != "hello there" {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}

	req := provider.requests[0]
	if len(req.Messages) != 2 || req.Messages[0].Role != history.RoleSystem || req.Messages[1].Content != "hi" {
		t.Fatalf("unexpected request messages: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "concise and friendly") {
		t.Fatalf("system prompt missing mode suffix: %q", req.Messages[0].Content)
	}
	if req.Model != "gpt-4o-mini" || req.Temperature == nil || *req.Temperature != 0.7 || req.TopP == nil || *req.TopP != 0.9 {
		t.Fatalf("unexpected sampling settings: %+v", req)
	}

	stored := store.data["u1"]
	if len(stored) != 2 || stored[0].Role != history.RoleUser || stored[1].Role != history.RoleAssistant {
		t.Fatalf("unexpected stored history: %+v", stored)
	}
}

func TestAskReplaysHistory(t *testing.T) {
	store := newFakeStore()
	provider := &fakeProvider{reply: "second"}
	svc := newTestService(store, provider)

	if _, err := svc.Ask(context.Background(), ModeLineAsk, "u1", "first question"); err != nil {
		t.Fatalf("first ask failed: %v", err)
	}
	if _, err := svc.Ask(context.Background(), ModeLineAsk, "u1", "second question"); err != nil {
		t.Fatalf("second ask failed: %v", err)
	}

	msgs := provider.requests[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system, user, assistant, user; got %+v", msgs)
	}
	if msgs[1].Content != "first question" || msgs[3].Content != "second question" {
		t.Fatalf("unexpected replay order: %+v", msgs)
	}
	if len(store.data["u1"]) != 4 {
		t.Fatalf("expected four stored messages, got %d", len(store.data["u1"]))
	}
}

func TestAskKeepsStoredSystemMessage(t *testing.T) {
	store := newFakeStore()
	store.data["u1"] = []history.Message{{Role: history.RoleSystem, Content: "legacy prompt"}}
	provider := &fakeProvider{reply: "ok"}
	svc := newTestService(store, provider)

	if _, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi"); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	msgs := provider.requests[0].Messages
	if len(msgs) != 2 || msgs[0].Content != "legacy prompt" {
		t.Fatalf("expected the stored system message only: %+v", msgs)
	}
}

func TestAskValidatesInput(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeProvider{reply: "x"})

	if _, err := svc.Ask(context.Background(), ModeWebChat, "u1", "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := svc.Ask(context.Background(), "nope", "u1", "hi"); !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}

func TestAskProviderErrorLeavesHistoryUntouched(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{err: errors.New("boom")})

	if _, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi"); err == nil {
		t.Fatal("expected provider error")
	}
	if len(store.data["u1"]) != 0 {
		t.Fatalf("history should be empty: %+v", store.data["u1"])
	}
}

func TestAskReturnsAnswerWhenPersistFails(t *testing.T) {
	store := newFakeStore()
	store.appendErr = errors.New("redis down")
	svc := newTestService(store, &fakeProvider{reply: "still here"})

	answer, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if answer.Text != "still here" {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}
}

func TestResetClearsHistory(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeProvider{reply: "ok"})
	if _, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi"); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if err := svc.Reset(context.Background(), "u1"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	msgs, err := svc.History(context.Background(), "u1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %+v", msgs)
	}
}

func TestLoadPromptsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "base: Be brief.\nmodes:\n  web-chat: Answer in one line.\n  custom: Talk like a pirate.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	prompts, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	got, ok := prompts.SystemPrompt(ModeWebChat)
	if !ok || got != "Be brief.\n\nAnswer in one line." {
		t.Fatalf("unexpected web-chat prompt: %q", got)
	}
	if _, ok := prompts.SystemPrompt("custom"); !ok {
		t.Fatal("expected custom mode to be added")
	}
	if _, ok := prompts.SystemPrompt(ModeLineAssistant); !ok {
		t.Fatal("expected default modes to survive the overlay")
	}
}

func TestPersonaReplacesBasePrompt(t *testing.T) {
	prompts := DefaultPrompts()
	got, ok := prompts.SystemPrompt(ModeLineAssistant)
	if !ok {
		t.Fatal("expected line-assistant mode")
	}
	if strings.Contains(got, prompts.Base) || !strings.HasPrefix(got, "I am Sebastian Michaelis") {
		t.Fatalf("persona should stand alone: %q", got)
	}
	for _, want := range []string{"Yes, my lord.", "I never lie to my master."} {
		if !strings.Contains(got, want) {
			t.Fatalf("persona missing %q", want)
		}
	}

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	content := "modes:\n  line-assistant: Keep it formal.\npersonas:\n  feishu: You are the office concierge.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write prompts: %v", err)
	}
	loaded, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	if got, _ := loaded.SystemPrompt(ModeLineAssistant); got != loaded.Base+"\n\nKeep it formal." {
		t.Fatalf("mode override should replace the persona: %q", got)
	}
	if got, _ := loaded.SystemPrompt(ModeFeishu); got != "You are the office concierge." {
		t.Fatalf("unexpected feishu persona: %q", got)
	}
}

func TestLoadPromptsEmptyPath(t *testing.T) {
	prompts, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prompts.Modes) != len(DefaultPrompts().Modes) {
		t.Fatalf("unexpected modes: %v", prompts.Modes)
	}
}

func TestAskSendsZeroTemperature(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	svc := NewService(nil, newFakeStore(), provider, DefaultPrompts(), Options{Model: "gpt-4o-mini", Temperature: llm.Float(0)})

	if _, err := svc.Ask(context.Background(), ModeWebChat, "u1", "hi"); err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	req := provider.requests[0]
	if req.Temperature == nil || *req.Temperature != 0 {
		t.Fatalf("expected temperature 0, got %v", req.Temperature)
	}
	if req.TopP != nil {
		t.Fatalf("expected provider default top_p, got %v", *req.TopP)
	}
}
