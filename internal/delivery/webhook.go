package delivery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/lead-pipeline/internal/domain"
	"github.com/ignite/lead-pipeline/internal/pkg/httpretry"
)

// WebhookSettings is the partner_configs payload for a webhook partner.
type WebhookSettings struct {
	URL        string `json:"url"`
	AuthHeader string `json:"auth_header,omitempty"`
	AuthValue  string `json:"auth_value,omitempty"`
}

// WebhookPartner posts leads to a partner HTTP endpoint. Transient endpoint
// errors are absorbed by the retrying HTTP client; hard failures surface to
// the engine's handler retry.
type WebhookPartner struct {
	client httpretry.HTTPDoer
}

// NewWebhookPartner creates a webhook partner. A nil client gets a retrying
// HTTP client with defaults.
func NewWebhookPartner(client httpretry.HTTPDoer) *WebhookPartner {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &WebhookPartner{client: client}
}

// Dedupe fingerprints the lead on its identity fields: email when present,
// else phone, else a hash of name plus payload. Deterministic per message.
func (w *WebhookPartner) Dedupe(msg domain.RoutingMessage) (string, error) {
	switch {
	case msg.Email != "":
		return fingerprint("email", strings.ToLower(msg.Email)), nil
	case msg.Phone != "":
		return fingerprint("phone", msg.Phone), nil
	case msg.FullName != "":
		return fingerprint("name", strings.ToLower(msg.FullName)+"|"+string(msg.Payload)), nil
	}
	return "", fmt.Errorf("webhook: message has no identity fields")
}

func (w *WebhookPartner) Deliver(ctx context.Context, msg domain.RoutingMessage, cfg domain.PartnerConfig) error {
	var settings WebhookSettings
	if err := json.Unmarshal(cfg.Settings, &settings); err != nil {
		return fmt.Errorf("webhook: settings: %w", err)
	}
	if settings.URL == "" {
		return fmt.Errorf("webhook: settings missing url")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if settings.AuthHeader != "" {
		req.Header.Set(settings.AuthHeader, settings.AuthValue)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func fingerprint(kind, value string) string {
	sum := sha256.Sum256([]byte(kind + ":" + value))
	return hex.EncodeToString(sum[:16])
}
