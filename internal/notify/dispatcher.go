package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/reviewpulse/credits-server/internal/config"
)

const KindCreditCheckSkipped = "credit_check_skipped"

// CreditSkipPayload is the body of a credit_check_skipped notification.
type CreditSkipPayload struct {
	Required  int64  `json:"required"`
	Available int64  `json:"available"`
	Feature   string `json:"feature"`
}

// Dispatcher hands notifications to the external notification service.
type Dispatcher interface {
	Notify(ctx context.Context, accountID, kind string, payload any) error
}

type webhookDispatcher struct {
	url    string
	token  string
	client *http.Client
}

func NewWebhookDispatcher(url, token string) Dispatcher {
	return &webhookDispatcher{
		url:   url,
		token: token,
		client: &http.Client{
			Timeout: config.NotifyTimeout,
		},
	}
}

type notification struct {
	AccountID string `json:"accountId"`
	Kind      string `json:"kind"`
	Payload   any    `json:"payload"`
}

func (d *webhookDispatcher) Notify(ctx context.Context, accountID, kind string, payload any) error {
	body, err := json.Marshal(notification{
		AccountID: accountID,
		Kind:      kind,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification failed with status %d", resp.StatusCode)
	}

	log.Info().
		Str("accountId", accountID).
		Str("kind", kind).
		Msg("notification dispatched")

	return nil
}

// NoopDispatcher drops notifications. Used when no NOTIFY_URL is configured.
type NoopDispatcher struct{}

func (NoopDispatcher) Notify(ctx context.Context, accountID, kind string, payload any) error {
	log.Debug().Str("accountId", accountID).Str("kind", kind).Msg("notification dropped (no dispatcher configured)")
	return nil
}
