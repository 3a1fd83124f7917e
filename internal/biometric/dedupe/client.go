// Package dedupe calls the external identification (ABIS-equivalent) service
// that compares a completed biometric set against the enrolled population.
//
// The coordinator is advisory-only: it never alters registration state, it
// just reports a verdict the state machine interprets. Transport failure is
// fail-closed; a failed identification call must never be read as "unique".
package dedupe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	id "idregistry/pkg/domain"
	"idregistry/pkg/platform/sentinel"
)

// Verdict is the identification outcome for one template set.
type Verdict struct {
	DuplicateFound  bool    `json:"duplicate_found"`
	MatchConfidence float64 `json:"match_confidence,omitempty"`
	MatchedID       string  `json:"matched_id,omitempty"`
}

// TemplateRef identifies one template by modality, position and hash.
type TemplateRef struct {
	Modality string `json:"modality"`
	Position string `json:"position,omitempty"`
	Hash     string `json:"hash"`
}

// Client is the HTTP client for the identification service.
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

type identifyRequest struct {
	RegistrationID string        `json:"registration_id"`
	Templates      []TemplateRef `json:"templates"`
}

// Identify submits the template set for population-wide deduplication.
// Once submitted there is no cancellation; the call runs to completion or
// failure, and failure leaves the record in its pre-dedup status.
func (c *Client) Identify(ctx context.Context, registrationID id.RegistrationID, templates []TemplateRef) (Verdict, error) {
	body, err := json.Marshal(identifyRequest{
		RegistrationID: registrationID.String(),
		Templates:      templates,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("marshal identify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/identify", bytes.NewReader(body))
	if err != nil {
		return Verdict{}, fmt.Errorf("build identify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("identification service unreachable: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("identification service returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var verdict Verdict
	if err := json.NewDecoder(resp.Body).Decode(&verdict); err != nil {
		return Verdict{}, fmt.Errorf("decode identify response: %w", sentinel.ErrUnavailable)
	}
	return verdict, nil
}
