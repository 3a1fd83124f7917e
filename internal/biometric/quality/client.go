// Package quality calls the external biometric quality-scoring service.
//
// The gate is fail-closed: a transport failure or non-OK response surfaces as
// sentinel.ErrUnavailable and the caller must retry. It never substitutes a
// passing result for an unreachable scorer.
package quality

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"idregistry/internal/registration/models"
	"idregistry/pkg/platform/sentinel"
)

// PassingScore is the fixed policy threshold: samples scoring below it must
// be recaptured.
const PassingScore = 60

// Result is the gate's verdict for one sample.
type Result struct {
	Score  int  `json:"score"`
	Passed bool `json:"passed"`
}

// Client is the HTTP client for the quality-scoring service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client with a bounded per-call timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	Modality string `json:"modality"`
	Position string `json:"position,omitempty"`
	Template string `json:"template"`
}

type scoreResponse struct {
	Score int `json:"score"`
}

// Check scores one sample. The gate does not retry; a failed sample must be
// recaptured by the caller.
func (c *Client) Check(ctx context.Context, sample models.Sample) (Result, error) {
	body, err := json.Marshal(scoreRequest{
		Modality: string(sample.Modality),
		Position: string(sample.Position),
		Template: base64.StdEncoding.EncodeToString(sample.TemplateData),
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal quality request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/quality", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build quality request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("quality service unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("quality service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode quality response: %w", sentinel.ErrUnavailable)
	}

	return Result{Score: decoded.Score, Passed: decoded.Score >= PassingScore}, nil
}
