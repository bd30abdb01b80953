package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trustwatch/internal/config"
	"trustwatch/internal/logging"
	"trustwatch/internal/trust"
)

const userAgent = "trustwatch/0.1.0"

// Service defines the notification surface exposed to the watcher.
type Service interface {
	NotifyChange(ctx context.Context, event trust.Event) error
	TestNotification(ctx context.Context) error
}

// NewService builds a Slack-backed notification service. When the bot token
// or channel is missing it logs once and returns a no-op implementation.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	logger = logging.NewComponentLogger(logger, "notifications")
	if !cfg.NotificationsEnabled() {
		logger.Info("slack notifications disabled",
			logging.String(logging.FieldEventType, "notifications_disabled"),
			logging.String("reason", "SLACK_BOT_TOKEN or SLACK_CHANNEL_ID not set"),
		)
		return noopService{}
	}

	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &slackService{
		endpoint: cfg.Notifications.SlackAPIURL,
		token:    cfg.Notifications.SlackToken,
		channel:  cfg.Notifications.SlackChannel,
		client:   &http.Client{Timeout: timeout},
	}
}

// Message renders the text posted for a membership change.
func Message(event trust.Event) string {
	who := fmt.Sprintf("%s(%d)", event.Label, event.ID)
	switch {
	case event.Group == trust.GroupPrimary && event.Direction == trust.DirectionAdded:
		return "*" + who + " has been BANNED... dont do fraud kids^^"
	case event.Group == trust.GroupPrimary && event.Direction == trust.DirectionRemoved:
		return "*" + who + " has been Un-BANNED... one more chance^^"
	case event.Group == trust.GroupSecondary && event.Direction == trust.DirectionAdded:
		return who + " has been TRUSTED :fraud-squad:... be trusted kids^^"
	default:
		return who + " has been Un-TRUSTED :fraud-squad:... dont be stupid kids^^"
	}
}

type slackService struct {
	endpoint string
	token    string
	channel  string
	client   *http.Client
}

type slackRequest struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type slackResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *slackService) NotifyChange(ctx context.Context, event trust.Event) error {
	return s.send(ctx, Message(event))
}

func (s *slackService) TestNotification(ctx context.Context) error {
	return s.send(ctx, ":test_tube: trustwatch notification test")
}

func (s *slackService) send(ctx context.Context, text string) error {
	if s == nil || s.client == nil {
		return nil
	}

	body, err := json.Marshal(slackRequest{Channel: s.channel, Text: text})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var payload slackResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !payload.OK {
		return fmt.Errorf("slack api error: %s", payload.Error)
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyChange(context.Context, trust.Event) error { return nil }
func (noopService) TestNotification(context.Context) error          { return nil }

// IsNoop reports whether svc discards notifications.
func IsNoop(svc Service) bool {
	_, ok := svc.(noopService)
	return ok
}
