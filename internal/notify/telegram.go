// Package notify posts per-transfer messages to a Telegram chat. Delivery is
// best effort: a failed notification never affects transfer state.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Telegram is a minimal bot-API client.
type Telegram struct {
	baseURL string
	token   string
	chatID  string
	httpc   *http.Client
}

// New returns nil when token or chat are unset; callers treat nil as disabled.
func New(token, chatID string) *Telegram {
	if token == "" || chatID == "" {
		return nil
	}
	return &Telegram{
		baseURL: "https://api.telegram.org",
		token:   token,
		chatID:  chatID,
		httpc:   &http.Client{Timeout: 12 * time.Second},
	}
}

// SendMessage posts an HTML-formatted message.
func (t *Telegram) SendMessage(ctx context.Context, html string) error {
	if t == nil {
		return nil
	}
	return t.post(ctx, "sendMessage", map[string]any{
		"chat_id":                  t.chatID,
		"text":                     html,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

// SendAnimation posts an animation with an HTML caption.
func (t *Telegram) SendAnimation(ctx context.Context, animation, captionHTML string) error {
	if t == nil {
		return nil
	}
	return t.post(ctx, "sendAnimation", map[string]any{
		"chat_id":                  t.chatID,
		"animation":                animation,
		"caption":                  captionHTML,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
}

func (t *Telegram) post(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}
	url := t.baseURL + "/bot" + t.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "telegram %s", method)
	}
	defer resp.Body.Close()
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("telegram %s: http %d: %s", method, resp.StatusCode, string(rb))
	}
	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(rb, &out); err == nil && !out.OK {
		return errors.Newf("telegram %s: %s", method, out.Description)
	}
	return nil
}
