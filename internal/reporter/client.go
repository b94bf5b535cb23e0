// Package reporter forwards a FINISHED scan's observation to the external
// reporter service. It is a one-shot outbound HTTP client: it is never
// retried inside the coordinator, and it carries no state of its own — the
// exactly-once-effective-report guarantee lives entirely in the store's
// report CAS (internal/store.MarkReported / UndoReported).
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the outbound HTTP client used by the report handler.
type Client struct {
	cfg    Config
	client *http.Client
}

// Config points the client at the reporter microservice.
type Config struct {
	URL string
}

// New returns a Client bound to cfg.URL.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Observation is the payload forwarded for one finished scan.
type Observation struct {
	Name                  string `json:"name"`
	Version               string `json:"version"`
	Score                 int    `json:"score"`
	InspectorURL          string `json:"inspector_url"`
	Recipient             string `json:"recipient,omitempty"`
	AdditionalInformation string `json:"additional_information,omitempty"`
	UseEmail              bool   `json:"use_email,omitempty"`
}

// Send forwards one observation. A non-2xx response or transport error is
// returned as-is so the caller (the report handler) can roll back its CAS
// and surface the failure to the operator; Send never retries.
func (c *Client) Send(ctx context.Context, obs Observation) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("reporter: REPORTER_URL not configured")
	}

	body, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("reporter: marshal observation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("reporter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) // #nosec G107 -- URL is operator-configured via REPORTER_URL
	if err != nil {
		return fmt.Errorf("reporter: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("reporter: service returned %d", resp.StatusCode)
	}
	return nil
}
