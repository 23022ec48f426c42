package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Althuwaynee/iraqairquality/internal/alert"
	"github.com/Althuwaynee/iraqairquality/internal/notify/resilience"
)

const (
	// TelegramTransport identifies the Telegram transport in health reports.
	TelegramTransport = "telegram"

	// DefaultTelegramBaseURL is the Telegram Bot API base URL.
	DefaultTelegramBaseURL = "https://api.telegram.org"
)

// ErrRejected is returned when the transport refused a message, for
// example because the subscriber blocked the bot.
var ErrRejected = errors.New("notification rejected by transport")

// TransportClientConfig returns the resilient client settings for a
// notification transport. Each message is attempted once: a failed alert
// keeps its state and goes out again on the next cycle, and a retried 5xx
// may repeat a message the transport already accepted.
func TransportClientConfig(name string) resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig(name)
	cfg.MaxRetries = 0
	return cfg
}

// TelegramConfig holds configuration for the Telegram notifier.
type TelegramConfig struct {
	// Token is the bot token (required).
	Token string

	// BaseURL is the API base URL (optional, defaults to the Bot API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a client built from TransportClientConfig.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Telegram sends notifications as Telegram bot messages. The subscriber id
// is the chat id.
type Telegram struct {
	token      string
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram notifier requires a bot token")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultTelegramBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(TransportClientConfig(TelegramTransport))
	}
	return &Telegram{
		token:      cfg.Token,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type botResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// Notify implements alert.Notifier.
func (t *Telegram) Notify(ctx context.Context, n alert.Notification) error {
	return t.Send(ctx, n.SubscriberID, Render(n))
}

// Send posts an HTML message to a chat.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	var br botResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &br)

	switch {
	case resp.StatusCode == http.StatusOK && br.OK:
		t.logger.Debug().Str("chat_id", chatID).Msg("telegram message sent")
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, br.Description)
	default:
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, br.Description)
	}
}

var _ alert.Notifier = (*Telegram)(nil)
