package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/memohai/docdesk/internal/channel"
	"github.com/memohai/docdesk/internal/config"
)

const textEventBody = `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":"01H","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U123"},"replyToken":"reply-1","message":{"type":"text","id":"m1","quoteToken":"q1","text":"hello"}}]}`

type fakeInbound struct {
	msgs []channel.InboundMessage
	err  error
}

func (f *fakeInbound) HandleInbound(_ context.Context, msg channel.InboundMessage) error {
	f.msgs = append(f.msgs, msg)
	return f.err
}

type fakeReplyClient struct {
	reqs []*messaging_api.ReplyMessageRequest
}

func (f *fakeReplyClient) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	f.reqs = append(f.reqs, req)
	return &messaging_api.ReplyMessageResponse{}, nil
}

func sign(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func testChannels() []config.LineChannel {
	return []config.LineChannel{
		{Name: "ask", Path: "/ask", Mode: "line-ask", ChannelSecret: "ask-secret", ChannelToken: "ask-token"},
		{Name: "assistant", Path: "/assistant", Mode: "line-assistant", ChannelSecret: "assistant-secret", ChannelToken: "assistant-token"},
	}
}

func serve(t *testing.T, a *LineAdapter, path, signature, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	a.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookDispatchesTextMessageWithChannelMode(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewLineAdapter(nil, testChannels(), inbound)

	rec := serve(t, a, "/assistant", sign("assistant-secret", textEventBody), textEventBody)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
	if len(inbound.msgs) != 1 {
		t.Fatalf("expected one inbound message, got %d", len(inbound.msgs))
	}
	got := inbound.msgs[0]
	if got.Mode != "line-assistant" || got.ConfigName != "assistant" {
		t.Fatalf("unexpected routing: %+v", got)
	}
	if got.UserID != "U123" || got.Text != "hello" || got.ReplyToken != "reply-1" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewLineAdapter(nil, testChannels(), inbound)

	// Signed with the other channel's secret.
	rec := serve(t, a, "/ask", sign("assistant-secret", textEventBody), textEventBody)
	if rec.Code != http.StatusBadRequest || rec.Body.String() != "Invalid signature" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(inbound.msgs))
	}
}

func TestWebhookHandlerFailureIsInternalError(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{err: errors.New("reply failed")}
	a := NewLineAdapter(nil, testChannels(), inbound)

	rec := serve(t, a, "/ask", sign("ask-secret", textEventBody), textEventBody)
	if rec.Code != http.StatusInternalServerError || rec.Body.String() != "Internal server error" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

func TestWebhookIgnoresNonTextEvents(t *testing.T) {
	t.Parallel()

	body := `{"destination":"Ubot","events":[{"type":"follow","mode":"active","timestamp":1700000000000,"webhookEventId":"01H","deliveryContext":{"isRedelivery":false},"source":{"type":"user","userId":"U123"},"replyToken":"reply-1","follow":{"isUnblocked":false}}]}`
	inbound := &fakeInbound{}
	a := NewLineAdapter(nil, testChannels(), inbound)

	rec := serve(t, a, "/ask", sign("ask-secret", body), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(inbound.msgs))
	}
}

func TestReplyUsesChannelToken(t *testing.T) {
	t.Parallel()

	a := NewLineAdapter(nil, testChannels(), &fakeInbound{})
	fake := &fakeReplyClient{}
	var tokens []string
	a.newClient = func(token string) (replyClient, error) {
		tokens = append(tokens, token)
		return fake, nil
	}

	msg := channel.InboundMessage{Channel: Type, ConfigName: "ask", ReplyToken: "reply-1"}
	if err := a.Reply(context.Background(), msg, "answer"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if err := a.Reply(context.Background(), msg, "again"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "ask-token" {
		t.Fatalf("expected one cached client for ask-token, got %v", tokens)
	}
	if len(fake.reqs) != 2 || fake.reqs[0].ReplyToken != "reply-1" {
		t.Fatalf("unexpected requests: %+v", fake.reqs)
	}
	text, ok := fake.reqs[0].Messages[0].(messaging_api.TextMessage)
	if !ok || text.Text != "answer" {
		t.Fatalf("unexpected message: %#v", fake.reqs[0].Messages[0])
	}
}

func TestReplyRequiresToken(t *testing.T) {
	t.Parallel()

	a := NewLineAdapter(nil, testChannels(), &fakeInbound{})
	if err := a.Reply(context.Background(), channel.InboundMessage{ConfigName: "ask"}, "x"); err == nil {
		t.Fatal("expected missing reply token error")
	}
	if err := a.Reply(context.Background(), channel.InboundMessage{ConfigName: "nope", ReplyToken: "r"}, "x"); err == nil {
		t.Fatal("expected missing access token error")
	}
}
