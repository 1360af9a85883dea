package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yairfalse/vaaka/types"
)

// WebhookConfig configures the webhook emitter.
type WebhookConfig struct {
	URL     string        // Endpoint receiving run payloads
	Timeout time.Duration // Per-request timeout (default: 10s)
}

// DefaultWebhookConfig returns sensible defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout: 10 * time.Second,
	}
}

// WebhookEmitter POSTs the run summary and critical findings to an
// HTTP endpoint.
type WebhookEmitter struct {
	url    string
	client *http.Client
}

// webhookPayload is the JSON body sent per run.
type webhookPayload struct {
	Summary  types.RunSummary `json:"summary"`
	Critical []webhookIssue   `json:"critical_issues,omitempty"`
}

type webhookIssue struct {
	LBName      string `json:"lb_name"`
	LBARN       string `json:"lb_arn"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// NewWebhookEmitter creates a webhook emitter.
func NewWebhookEmitter(cfg WebhookConfig) (*WebhookEmitter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook URL required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultWebhookConfig().Timeout
	}

	return &WebhookEmitter{
		url:    cfg.URL,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Emit POSTs the run to the webhook. Any non-2xx response is an error.
func (e *WebhookEmitter) Emit(ctx context.Context, run *types.RunResult) error {
	body, err := json.Marshal(buildPayload(run))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Debug().
		Str("url", e.url).
		Str("run_id", run.Summary.RunID).
		Int("status", resp.StatusCode).
		Msg("webhook delivered")

	return nil
}

func buildPayload(run *types.RunResult) webhookPayload {
	payload := webhookPayload{Summary: run.Summary}

	for _, result := range run.Results {
		for _, iss := range result.Issues {
			if !iss.IsCritical() {
				continue
			}
			payload.Critical = append(payload.Critical, webhookIssue{
				LBName:      result.Name,
				LBARN:       result.ARN,
				Type:        iss.Type,
				Category:    string(iss.Category),
				Description: iss.Description,
			})
		}
	}

	return payload
}

// Close releases idle connections.
func (e *WebhookEmitter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}
