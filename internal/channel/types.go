package channel

import (
	"strings"
)

// ChannelType identifies a messaging platform.
type ChannelType string

const (
	TypeLine     ChannelType = "line"
	TypeTelegram ChannelType = "telegram"
	TypeDiscord  ChannelType = "discord"
	TypeFeishu   ChannelType = "feishu"
)

// String returns the channel type as a plain string.
func (c ChannelType) String() string {
	return string(c)
}

// InboundMessage is a text message received from a platform webhook.
type InboundMessage struct {
	Channel    ChannelType
	ConfigName string // the configured bot, e.g. the LINE channel "ask"
	Mode       string // conversation mode used to answer
	UserID     string // conversation key, stable per platform user
	ChatID     string
	MessageID  string
	Text       string
	ReplyToken string
	Raw        any
}

// HasText reports whether the message carries non-blank text.
func (m InboundMessage) HasText() bool {
	return strings.TrimSpace(m.Text) != ""
}

// Descriptor holds read-only metadata for a registered channel type.
type Descriptor struct {
	Type        ChannelType `json:"type"`
	DisplayName string      `json:"display_name"`
	// TextLimit is the longest reply the platform accepts, in runes.
	TextLimit    int      `json:"text_limit"`
	WebhookPaths []string `json:"webhook_paths"`
}

func normalizeChannelType(raw string) ChannelType {
	return ChannelType(strings.ToLower(strings.TrimSpace(raw)))
}
