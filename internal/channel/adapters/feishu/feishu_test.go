package feishu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

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

type fakeReplier struct {
	reqs []*larkim.ReplyMessageReq
	resp *larkim.ReplyMessageResp
}

func (f *fakeReplier) Reply(_ context.Context, req *larkim.ReplyMessageReq, _ ...larkcore.RequestOptionFunc) (*larkim.ReplyMessageResp, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, nil
}

func testConfig() config.FeishuConfig {
	return config.FeishuConfig{
		Enabled:           true,
		AppID:             "app",
		AppSecret:         "secret",
		VerificationToken: "verify-token",
		Mode:              "feishu",
	}
}

func postWebhook(t *testing.T, a *FeishuAdapter, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	return rec, a.Handle(c)
}

func TestWebhookURLVerification(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewFeishuAdapter(nil, testConfig(), inbound)
	rec, err := postWebhook(t, a, `{"schema":"2.0","header":{"event_type":"im.message.receive_v1","token":"verify-token"},"type":"url_verification","challenge":"hello","token":"verify-token"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"challenge":"hello"`) {
		t.Fatalf("unexpected challenge response: %s", rec.Body.String())
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound calls, got %d", len(inbound.msgs))
	}
}

func TestWebhookProbe(t *testing.T) {
	t.Parallel()

	a := NewFeishuAdapter(nil, testConfig(), &fakeInbound{})
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, webhookPath, nil), rec)
	if err := a.HandleProbe(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(rec.Body.String()) != "ok" {
		t.Fatalf("unexpected probe response: %q", rec.Body.String())
	}
}

func TestWebhookEventDispatchesInbound(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewFeishuAdapter(nil, testConfig(), inbound)
	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"verify-token"},"event":{"sender":{"sender_id":{"open_id":"ou_user_1","user_id":"u_user_1"}},"message":{"message_id":"om_1","chat_id":"oc_1","chat_type":"group","message_type":"text","content":"{\"text\":\"@_user_1 summarize report.pdf\"}"}},"type":"event_callback"}`
	rec, err := postWebhook(t, a, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rec.Code)
	}
	if len(inbound.msgs) != 1 {
		t.Fatalf("expected one inbound call, got %d", len(inbound.msgs))
	}
	got := inbound.msgs[0]
	if got.UserID != "feishu:ou_user_1" || got.MessageID != "om_1" || got.ChatID != "oc_1" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if got.Text != "summarize report.pdf" {
		t.Fatalf("unexpected message text: %q", got.Text)
	}
}

func TestWebhookIgnoresNonTextMessages(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewFeishuAdapter(nil, testConfig(), inbound)
	body := `{"schema":"2.0","header":{"event_id":"evt_2","event_type":"im.message.receive_v1","token":"verify-token"},"event":{"sender":{"sender_id":{"open_id":"ou_user_1"}},"message":{"message_id":"om_2","chat_id":"oc_1","chat_type":"p2p","message_type":"image","content":"{\"image_key\":\"img_1\"}"}},"type":"event_callback"}`
	if _, err := postWebhook(t, a, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound calls, got %d", len(inbound.msgs))
	}
}

func TestWebhookRejectsInvalidToken(t *testing.T) {
	t.Parallel()

	inbound := &fakeInbound{}
	a := NewFeishuAdapter(nil, testConfig(), inbound)
	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"forged-token"},"event":{},"type":"event_callback"}`
	_, err := postWebhook(t, a, body)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if len(inbound.msgs) != 0 {
		t.Fatalf("expected no inbound calls, got %d", len(inbound.msgs))
	}
}

func TestWebhookRequiresVerificationToken(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.VerificationToken = ""
	a := NewFeishuAdapter(nil, cfg, &fakeInbound{})
	body := `{"schema":"2.0","header":{"event_id":"evt_1","event_type":"im.message.receive_v1","token":"verify-token"},"event":{},"type":"event_callback"}`
	_, err := postWebhook(t, a, body)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	a := NewFeishuAdapter(nil, testConfig(), &fakeInbound{})
	_, err := postWebhook(t, a, strings.Repeat("x", int(webhookMaxBodyBytes)+1))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestReplyUsesMessageThread(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{resp: &larkim.ReplyMessageResp{}}
	a := NewFeishuAdapter(nil, testConfig(), &fakeInbound{})
	a.newClient = func(string, string) messageReplier { return replier }

	if err := a.Reply(context.Background(), channel.InboundMessage{MessageID: "om_1"}, "done"); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if len(replier.reqs) != 1 {
		t.Fatalf("expected one reply, got %d", len(replier.reqs))
	}
	body := replier.reqs[0].Body
	if body == nil || body.Content == nil || *body.Content != `{"text":"done"}` {
		t.Fatalf("unexpected reply body: %+v", body)
	}

	replier.resp = &larkim.ReplyMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}
	if err := a.Reply(context.Background(), channel.InboundMessage{MessageID: "om_1"}, "done"); err == nil {
		t.Fatal("expected error for unsuccessful reply")
	}
	if err := a.Reply(context.Background(), channel.InboundMessage{}, "done"); err == nil {
		t.Fatal("expected error without message id")
	}
}
