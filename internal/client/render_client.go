package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fieldmetrics/api/internal/config"
	"github.com/fieldmetrics/api/internal/model"
)

// ReportRenderer defines the interface for the report rendering service.
// Rendering internals are a black box: scores in, artifact reference out.
type ReportRenderer interface {
	Render(ctx context.Context, req *RenderReportRequest) (*RenderReportResponse, error)
	HealthCheck(ctx context.Context) error
	IsConfigured() bool
}

// RenderReportRequest represents the request for report rendering
type RenderReportRequest struct {
	ReportID     string                 `json:"report_id"`
	OwnerID      string                 `json:"owner_id"`
	OverallScore float64                `json:"overall_score"`
	Breakdown    model.BreakdownMetrics `json:"breakdown"`
	Insights     []string               `json:"insights,omitempty"`
	OutputKey    string                 `json:"output_key"`
}

// RenderReportResponse represents the response from report rendering
type RenderReportResponse struct {
	ArtifactURL string `json:"artifact_url"`
	Pages       int    `json:"pages"`
	Size        int64  `json:"size"`
}

// RenderClient implements ReportRenderer for the rendering microservice
type RenderClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewRenderClient creates a new report rendering client
func NewRenderClient(cfg *config.RenderConfig) *RenderClient {
	return &RenderClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
	}
}

// Render sends aggregated scores to the rendering endpoint
func (c *RenderClient) Render(ctx context.Context, req *RenderReportRequest) (*RenderReportResponse, error) {
	var result RenderReportResponse
	if err := c.post(ctx, "/render", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// HealthCheck checks if the rendering service is available
func (c *RenderClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("render service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends a POST request with JSON body and parses the response
func (c *RenderClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("render service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RenderClient) IsConfigured() bool {
	return c.baseURL != ""
}
