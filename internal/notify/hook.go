package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"dds-registration/internal/logger"
)

// OperatorHook reaches the people running the site (payments received,
// refunds to do by hand, delivery failures).
type OperatorHook interface {
	Notify(ctx context.Context, text string) error
}

// SlackHook posts to a Slack incoming webhook.
type SlackHook struct {
	URL    string
	Client *http.Client
}

func NewSlackHook(url string) *SlackHook {
	return &SlackHook{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *SlackHook) Notify(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// LogHook is used when no webhook is configured.
type LogHook struct {
	Logger *logger.Logger
}

func (h LogHook) Notify(_ context.Context, text string) error {
	h.Logger.Info("NOTIFY", "[OPERATOR] "+text)
	return nil
}
