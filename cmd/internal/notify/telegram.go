package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTelegramAPI is the public Bot API endpoint.
const DefaultTelegramAPI = "https://api.telegram.org"

const maxTelegramResponse = 1 << 20

// ErrTelegram wraps every delivery failure.
var ErrTelegram = errors.New("notify: telegram delivery failed")

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	APIURL  string
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// Telegram posts messages through the Bot API sendMessage method.
type Telegram struct {
	apiURL string
	http   *http.Client
	log    *slog.Logger
}

// NewTelegram constructs a Telegram sender.
func NewTelegram(log *slog.Logger, cfg TelegramConfig) *Telegram {
	if log == nil {
		log = slog.Default()
	}
	api := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if api == "" {
		api = DefaultTelegramAPI
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Telegram{apiURL: api, http: hc, log: log}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send delivers an HTML-formatted message to chatID.
func (t *Telegram) Send(ctx context.Context, botToken, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrTelegram, err)
	}

	endpoint := t.apiURL + "/bot" + url.PathEscape(botToken) + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: request: %v", ErrTelegram, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		// The URL carries the bot token; never surface it.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("%w: %v", ErrTelegram, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxTelegramResponse))
	if err != nil {
		return fmt.Errorf("%w: read: %v", ErrTelegram, err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: http %d", ErrTelegram, resp.StatusCode)
	}

	var out sendMessageResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrTelegram, err)
	}
	if !out.OK {
		return fmt.Errorf("%w: %s", ErrTelegram, out.Description)
	}
	return nil
}
