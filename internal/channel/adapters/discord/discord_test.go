package discord

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
)

type fakeInbound struct {
	msgs []channel.InboundMessage
}

func (f *fakeInbound) HandleInbound(_ context.Context, msg channel.InboundMessage) error {
	f.msgs = append(f.msgs, msg)
	return nil
}

type fakeSession struct {
	interactions []*discordgo.Interaction
	params       []*discordgo.WebhookParams
}

func (s *fakeSession) FollowupMessageCreate(interaction *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.interactions = append(s.interactions, interaction)
	s.params = append(s.params, data)
	return &discordgo.Message{}, nil
}

func newTestAdapter(t *testing.T) (*DiscordAdapter, ed25519.PrivateKey, *fakeInbound) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	inbound := &fakeInbound{}
	a, err := NewDiscordAdapter(nil, config.DiscordConfig{PublicKey: hex.EncodeToString(pub), BotToken: "tok", Mode: "discord"}, inbound)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	return a, priv, inbound
}

func signedRequest(priv ed25519.PrivateKey, body string) *http.Request {
	const timestamp = "1700000000"
	sig := ed25519.Sign(priv, []byte(timestamp+body))
	req := httptest.NewRequest(http.MethodPost, interactionsPath, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", timestamp)
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) discordgo.InteractionResponse {
	t.Helper()
	var resp discordgo.InteractionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestNewDiscordAdapterRejectsBadKey(t *testing.T) {
	t.Parallel()

	if _, err := NewDiscordAdapter(nil, config.DiscordConfig{PublicKey: "zz"}, &fakeInbound{}); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestHandlePing(t *testing.T) {
	t.Parallel()

	a, priv, inbound := newTestAdapter(t)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(signedRequest(priv, `{"id":"1","application_id":"app","type":1,"token":"t","version":1}`), rec)

	if err := a.Handle(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp := decodeResponse(t, rec); resp.Type != discordgo.InteractionResponsePong {
		t.Fatalf("expected pong, got %d", resp.Type)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(inbound.msgs))
	}
}

func TestHandleRejectsBadSignature(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAdapter(t)
	_, other, _ := ed25519.GenerateKey(rand.Reader)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(signedRequest(other, `{"type":1}`), rec)

	err := a.Handle(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandleRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	a, priv, inbound := newTestAdapter(t)
	body := `{"type":1,"pad":"` + strings.Repeat("x", interactionMaxBodyBytes) + `"}`
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(signedRequest(priv, body), rec)

	err := a.Handle(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(inbound.msgs))
	}
}

func TestHandleAskCommandDefersAndDispatches(t *testing.T) {
	t.Parallel()

	a, priv, inbound := newTestAdapter(t)
	body := `{"id":"i1","application_id":"app","type":2,"token":"itok","channel_id":"c1","member":{"user":{"id":"u1","username":"alice"}},"data":{"id":"cmd","name":"ask","type":1,"options":[{"name":"question","type":3,"value":"what changed?"}]},"version":1}`
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(signedRequest(priv, body), rec)

	if err := a.Handle(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp := decodeResponse(t, rec); resp.Type != discordgo.InteractionResponseDeferredChannelMessageWithSource {
		t.Fatalf("expected deferred response, got %d", resp.Type)
	}
	if len(inbound.msgs) != 1 {
		t.Fatalf("expected one inbound message, got %d", len(inbound.msgs))
	}
	got := inbound.msgs[0]
	if got.UserID != "discord:u1" || got.Text != "what changed?" || got.ReplyToken != "itok" || got.Mode != "discord" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestHandleCommandWithoutQuestion(t *testing.T) {
	t.Parallel()

	a, priv, inbound := newTestAdapter(t)
	body := `{"id":"i2","application_id":"app","type":2,"token":"itok","channel_id":"c1","user":{"id":"u2","username":"bob"},"data":{"id":"cmd","name":"ask","type":1},"version":1}`
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(signedRequest(priv, body), rec)

	if err := a.Handle(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp := decodeResponse(t, rec)
	if resp.Type != discordgo.InteractionResponseChannelMessageWithSource || resp.Data == nil || resp.Data.Content == "" {
		t.Fatalf("expected an ephemeral hint, got %+v", resp)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(inbound.msgs))
	}
}

func TestReplySendsFollowup(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestAdapter(t)
	session := &fakeSession{}
	a.newSession = func(string) (followupSession, error) { return session, nil }

	interaction := &discordgo.Interaction{ID: "i1", AppID: "app", Token: "itok"}
	if err := a.Reply(context.Background(), channel.InboundMessage{Raw: interaction}, "answer"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if len(session.params) != 1 || session.params[0].Content != "answer" || session.interactions[0] != interaction {
		t.Fatalf("unexpected followups: %+v", session.params)
	}
	if err := a.Reply(context.Background(), channel.InboundMessage{}, "x"); err == nil {
		t.Fatal("expected error without source interaction")
	}
}
