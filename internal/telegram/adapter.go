// Package telegram is the outbound messaging adapter. Every send returns a
// plain success flag; callers treat delivery failure as retry-later, never as
// a fatal condition.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

const (
	apiBase     = "https://api.telegram.org/bot"
	sendTimeout = 5 * time.Second
	logSnippet  = 50
)

type Adapter struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

func NewAdapter(token string, log zerolog.Logger) *Adapter {
	return &Adapter{
		baseURL: apiBase + token,
		client:  &http.Client{Timeout: sendTimeout},
		log:     log,
	}
}

// NewAdapterWithBase is used by tests to point the adapter at a fake API.
func NewAdapterWithBase(baseURL string, log zerolog.Logger) *Adapter {
	return &Adapter{baseURL: baseURL, client: &http.Client{Timeout: sendTimeout}, log: log}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type sendMessageReq struct {
	ChatID      string `json:"chat_id"`
	Text        string `json:"text"`
	ParseMode   string `json:"parse_mode,omitempty"`
	ReplyMarkup any    `json:"reply_markup,omitempty"`
}

// SendMessage sends plain text with no markup and no formatting.
func (a *Adapter) SendMessage(ctx context.Context, chatID, text string) bool {
	return a.SendMessageWith(ctx, chatID, text, nil, "")
}

// SendMessageWith sends text with an optional reply/inline keyboard and parse
// mode. On a parse failure the send is retried once without the parse mode,
// since a formatting mistake should not cost the customer the message.
func (a *Adapter) SendMessageWith(ctx context.Context, chatID, text string, markup any, parseMode string) bool {
	req := sendMessageReq{ChatID: chatID, Text: text, ParseMode: parseMode, ReplyMarkup: markup}
	ok, parseErr := a.post(ctx, "/sendMessage", req, chatID, text, markup != nil)
	if ok {
		return true
	}
	if parseErr && parseMode != "" {
		a.log.Info().Str("chat_id", chatID).Msg("retrying sendMessage without parse mode")
		req.ParseMode = ""
		ok, _ = a.post(ctx, "/sendMessage", req, chatID, text, markup != nil)
	}
	return ok
}

type sendLocationReq struct {
	ChatID    string  `json:"chat_id"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SendLocation sends a geo pin.
func (a *Adapter) SendLocation(ctx context.Context, chatID string, lat, lon float64) bool {
	ok, _ := a.post(ctx, "/sendLocation", sendLocationReq{ChatID: chatID, Latitude: lat, Longitude: lon}, chatID, "", false)
	return ok
}

type sendVideoReq struct {
	ChatID  string `json:"chat_id"`
	Video   string `json:"video"`
	Caption string `json:"caption,omitempty"`
}

// SendVideo sends a video by URL, e.g. the entrance clip.
func (a *Adapter) SendVideo(ctx context.Context, chatID, videoURL, caption string) bool {
	ok, _ := a.post(ctx, "/sendVideo", sendVideoReq{ChatID: chatID, Video: videoURL, Caption: caption}, chatID, videoURL, false)
	return ok
}

// post returns (delivered, parseError). Telegram answers HTTP 200 with
// ok=false for API-level failures, so both layers are checked.
func (a *Adapter) post(ctx context.Context, method string, payload any, chatID, text string, keyboard bool) (bool, bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.log.Error().Err(err).Str("method", method).Msg("marshal telegram payload")
		return false, false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+method, bytes.NewReader(body))
	if err != nil {
		a.log.Error().Err(err).Str("method", method).Msg("build telegram request")
		return false, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.log.Error().Err(err).
			Str("method", method).
			Str("chat_id", chatID).
			Str("text", truncate(text)).
			Msg("telegram send failed")
		return false, false
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		a.log.Error().Err(err).Str("method", method).Msg("read telegram response")
		return false, false
	}

	var api apiResponse
	if err := sonic.Unmarshal(raw, &api); err != nil || resp.StatusCode != http.StatusOK || !api.OK {
		a.log.Error().
			Str("method", method).
			Str("chat_id", chatID).
			Int("status", resp.StatusCode).
			Str("text", truncate(text)).
			Bool("keyboard", keyboard).
			Str("body", truncate(string(raw))).
			Msg("telegram send rejected")
		return false, strings.Contains(strings.ToLower(api.Description), "parse")
	}

	a.log.Info().
		Str("chat_id", chatID).
		Str("text", truncate(text)).
		Bool("keyboard", keyboard).
		Msg("telegram sent")
	return true, false
}

func truncate(s string) string {
	if len(s) > logSnippet {
		return s[:logSnippet] + "..."
	}
	return s
}
