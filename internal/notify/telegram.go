package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/xkilldash9x/autologin-cli/internal/config"
)

// Bot API limits, in characters.
const (
	telegramTextLimit    = 4096
	telegramCaptionLimit = 1024
)

// TelegramSink posts to a chat through the Bot API.
type TelegramSink struct {
	apiBase string
	token   string
	chatID  string
	client  *http.Client
}

func NewTelegramSink(cfg config.TelegramConfig, timeout time.Duration) *TelegramSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	return &TelegramSink{
		apiBase: base,
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  httpClient(timeout, nil),
	}
}

func (t *TelegramSink) Name() string { return "telegram" }

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *TelegramSink) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
}

// Send uses sendPhoto when an image is attached. Text longer than a photo
// caption allows follows as a separate message.
func (t *TelegramSink) Send(ctx context.Context, msg Message) error {
	if len(msg.Image) == 0 {
		return t.sendText(ctx, msg.Text)
	}
	if err := t.sendPhoto(ctx, truncate(msg.Text, telegramCaptionLimit), msg.Image); err != nil {
		return err
	}
	if len([]rune(msg.Text)) > telegramCaptionLimit {
		return t.sendText(ctx, msg.Text)
	}
	return nil
}

func (t *TelegramSink) sendText(ctx context.Context, text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  truncate(text, telegramTextLimit),
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode telegram message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *TelegramSink) sendPhoto(ctx context.Context, caption string, image []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", t.chatID)
	if caption != "" {
		_ = w.WriteField("caption", caption)
	}
	part, err := w.CreateFormFile("photo", "capture.png")
	if err != nil {
		return fmt.Errorf("failed to build telegram upload: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return fmt.Errorf("failed to build telegram upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to build telegram upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendPhoto"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return t.do(req)
}

func (t *TelegramSink) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		// The URL embeds the bot token; keep it out of logs.
		return fmt.Errorf("telegram request failed: %s", strings.ReplaceAll(err.Error(), t.token, "<token>"))
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var parsed telegramResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK || !parsed.OK {
		desc := parsed.Description
		if desc == "" {
			desc = strings.TrimSpace(string(raw))
		}
		return &statusError{sink: "telegram", code: resp.StatusCode, body: desc}
	}
	return nil
}
