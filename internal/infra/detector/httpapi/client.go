// Package httpapi implements the detector port against the vulnerability
// classifier's HTTP API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/solsentinel/solsentinel/internal/domain/scans"
)

const analyzePath = "/api/analyze"

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Code string `json:"code"`
}

type analyzeResponse struct {
	Vulnerabilities []domain.DetectedFinding `json:"vulnerabilities"`
}

// Detect posts the source text and returns the raw finding list in detector
// order. Any transport error or non-200 status is returned to the caller,
// who decides whether to fall back.
func (c *Client) Detect(ctx context.Context, source string) ([]domain.DetectedFinding, error) {
	body, err := json.Marshal(analyzeRequest{Code: source})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling detector: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain a little of the body for the error message
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("detector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding detector response: %w", err)
	}
	return out.Vulnerabilities, nil
}
