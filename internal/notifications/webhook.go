package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kjannette/stocksync/internal/httputil"
	"github.com/kjannette/stocksync/internal/models"
	"go.uber.org/zap"
)

// Sender posts run summaries to a Slack or Discord webhook.
type Sender struct {
	webhookURL string
	appName    string
	httpClient *http.Client
	retry      httputil.RetryConfig
	logger     *zap.Logger
}

func NewSender(webhookURL, appName string, logger *zap.Logger) *Sender {
	if appName == "" {
		appName = "stocksync"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		webhookURL: webhookURL,
		appName:    appName,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   1 * time.Second,
			MaxDelay:    5 * time.Second,
			Logger:      logger,
		},
		logger: logger.Named("notify"),
	}
}

// Send delivers msg. Without a webhook it is only logged.
func (s *Sender) Send(ctx context.Context, msg string) error {
	s.logger.Info("notification", zap.String("message", msg))
	if s.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(s.formatPayload(msg))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := httputil.Do(ctx, s.httpClient, s.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// NotifyRun posts the human-readable summary of a finished sync run.
func (s *Sender) NotifyRun(ctx context.Context, r *models.SyncReport) error {
	return s.Send(ctx, r.Summary())
}

func (s *Sender) formatPayload(msg string) map[string]string {
	if strings.Contains(s.webhookURL, "discord") {
		return map[string]string{
			"content":  fmt.Sprintf("**[%s]**\n```\n%s\n```", s.appName, msg),
			"username": s.appName,
		}
	}
	return map[string]string{
		"text":     fmt.Sprintf("*[%s]*\n```%s```", s.appName, msg),
		"username": s.appName,
	}
}

func (s *Sender) Enabled() bool {
	return s.webhookURL != ""
}
