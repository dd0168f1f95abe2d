package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/fieldmetrics/api/internal/config"
)

// ModelProcessor defines the interface for the external compute service
// that runs the actual analysis. The service sits outside the trust
// boundary: every hand-off is signed, and its only obligation here is to
// acknowledge receipt with a 2xx.
type ModelProcessor interface {
	Process(ctx context.Context, req *ProcessRequest, signature string, timestamp int64) error
	IsConfigured() bool
}

// ProcessRequest is the hand-off body sent to the model server.
type ProcessRequest struct {
	JobID          string            `json:"job_id"`
	SourceRecordID string            `json:"source_record_id"`
	OwnerID        string            `json:"owner_id"`
	VideoReference *string           `json:"video_reference"`
	GPSReference   *string           `json:"gps_reference"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Source         string            `json:"source"`
}

// ModelClient implements ModelProcessor over HTTP.
type ModelClient struct {
	httpClient *http.Client
	baseURL    string
	configured bool
}

// NewModelClient creates a model server client. The per-call deadline
// comes from the caller's context; the dispatch worker bounds every
// hand-off with the configured timeout.
func NewModelClient(cfg *config.ModelConfig) *ModelClient {
	return &ModelClient{
		httpClient: &http.Client{},
		baseURL:    cfg.BaseURL,
		configured: cfg.BaseURL != "",
	}
}

// Process issues the signed hand-off call. Any 2xx response acknowledges
// receipt; the response body is not otherwise used.
func (c *ModelClient) Process(ctx context.Context, procReq *ProcessRequest, signature string, timestamp int64) error {
	bodyBytes, err := json.Marshal(procReq)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/model/process", bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Signature", signature)
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", timestamp))

	log.Printf("[Model API] → POST %s (job=%s)", req.URL.String(), procReq.JobID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Model API] ✗ POST %s — request failed: %v", req.URL.String(), err)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Model API] ← %d POST %s (job=%s)", resp.StatusCode, req.URL.String(), procReq.JobID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("model server error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ModelClient) IsConfigured() bool {
	return c.configured
}
