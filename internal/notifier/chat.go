package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/callwatch/internal/models"
)

// ChatActionConfig is the per-action Google Chat configuration.
type ChatActionConfig struct {
	WebhookURL string `json:"webhook_url"`
	Template   string `json:"template,omitempty"`
	UseCard    bool   `json:"use_card,omitempty"`
}

// ChatMessage is a plain-text Google Chat message.
type ChatMessage struct {
	Text string `json:"text"`
}

// ChatCardMessage is the card variant of a Google Chat message.
type ChatCardMessage struct {
	Cards []ChatCard `json:"cards"`
}

// ChatCard is a single card with a header and sections.
type ChatCard struct {
	Header   ChatCardHeader `json:"header"`
	Sections []ChatSection  `json:"sections"`
}

// ChatCardHeader is a card header.
type ChatCardHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// ChatSection groups card widgets.
type ChatSection struct {
	Widgets []ChatWidget `json:"widgets"`
}

// ChatWidget holds a text paragraph.
type ChatWidget struct {
	TextParagraph ChatTextParagraph `json:"textParagraph"`
}

// ChatTextParagraph is a block of text inside a widget.
type ChatTextParagraph struct {
	Text string `json:"text"`
}

// ChatHandler posts alerts to Google Chat incoming webhooks.
// Delivery is a single attempt.
type ChatHandler struct {
	client *http.Client
	logger *zap.Logger
}

// NewChatHandler creates a chat handler. A nil client gets the given timeout.
func NewChatHandler(client *http.Client, timeout time.Duration, logger *zap.Logger) *ChatHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{client: client, logger: logger}
}

// Kind returns models.ActionChat.
func (c *ChatHandler) Kind() models.ActionKind {
	return models.ActionChat
}

// ValidateConfig requires webhook_url.
func (c *ChatHandler) ValidateConfig(config json.RawMessage) error {
	_, err := parseChatConfig(config)
	return err
}

func parseChatConfig(config json.RawMessage) (*ChatActionConfig, error) {
	var cfg ChatActionConfig
	if err := decodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if cfg.WebhookURL == "" {
		return nil, invalidConfig("chat config missing 'webhook_url'")
	}
	return &cfg, nil
}

// Execute sends one message and reports the HTTP outcome.
func (c *ChatHandler) Execute(ctx context.Context, config json.RawMessage, log *models.Log) Result {
	cfg, err := parseChatConfig(config)
	if err != nil {
		return failure(err)
	}

	text, err := chatText(cfg, log)
	if err != nil {
		c.logger.Error("failed to format chat message", zap.Error(err))
		return failure(err)
	}

	var payload any = ChatMessage{Text: text}
	if cfg.UseCard {
		payload = chatCard(log, text)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failure(fmt.Errorf("failed to marshal chat message: %w", err))
	}

	c.logger.Info("sending chat message")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return failure(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("error sending chat message", zap.Error(err))
		return failure(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("chat webhook returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		c.logger.Error("error sending chat message", zap.Error(err))
		return failure(err)
	}

	c.logger.Info("chat message sent successfully", zap.Int("status_code", resp.StatusCode))
	return Result{Success: true, StatusCode: resp.StatusCode, WebhookURL: cfg.WebhookURL}
}

// chatText renders the configured template, or the default layout.
func chatText(cfg *ChatActionConfig, log *models.Log) (string, error) {
	if cfg.Template != "" {
		fields := templateFields(log, chatTimeLayout)
		for _, k := range []string{"status", "error_code", "error_message", "from_number", "to_number"} {
			if fields[k] == "" {
				fields[k] = "N/A"
			}
		}
		return formatPlaceholders(cfg.Template, fields)
	}
	return defaultChatText(log), nil
}

func defaultChatText(log *models.Log) string {
	emoji := "ℹ️"
	if log.ErrorCode != "" {
		emoji = "🚨"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *Twilio %s Alert*\n\n", emoji, kindTitle(log.Kind))
	line := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "• %s: %s\n", label, value)
		}
	}
	line("Error Code", log.ErrorCode)
	line("Message", log.ErrorMessage)
	line("Status", log.Status)
	line("From", log.From)
	line("To", log.To)
	fmt.Fprintf(&b, "• Time: %s\n", log.Timestamp.Format(chatTimeLayout))
	fmt.Fprintf(&b, "• SID: `%s`", log.SID)
	return b.String()
}

func chatCard(log *models.Log, text string) ChatCardMessage {
	subtitle := log.Status
	if subtitle == "" {
		subtitle = "Status Unknown"
	}
	return ChatCardMessage{Cards: []ChatCard{{
		Header: ChatCardHeader{
			Title:    fmt.Sprintf("Twilio %s Alert", kindTitle(log.Kind)),
			Subtitle: subtitle,
		},
		Sections: []ChatSection{{
			Widgets: []ChatWidget{{TextParagraph: ChatTextParagraph{Text: text}}},
		}},
	}}}
}
