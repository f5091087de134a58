package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of an upstream reply is read.
const maxResponseBytes = 1 << 20

// ErrUpstream wraps every failure talking to the recommendation service.
var ErrUpstream = errors.New("recommendation service error")

type recommendRequest struct {
	PatientEHR       string `json:"patient_ehr"`
	ClinicalQuestion string `json:"clinical_question"`
}

type recommendResponse struct {
	Recommendation string `json:"recommendation"`
	Error          string `json:"error"`
}

// Client calls the external clinical recommendation service.
type Client struct {
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient returns a Client posting to url. timeout bounds each call on top
// of the caller's context.
func NewClient(url string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Recommend sends the patient summary and question and returns the service's
// recommendation text.
func (c *Client) Recommend(ctx context.Context, patientEHR, question string) (string, error) {
	payload, err := json.Marshal(recommendRequest{PatientEHR: patientEHR, ClinicalQuestion: question})
	if err != nil {
		return "", fmt.Errorf("encode recommendation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	var out recommendResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if decodeErr == nil && out.Error != "" {
			return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpstream, decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUpstream, out.Error)
	}
	if out.Recommendation == "" {
		return "", fmt.Errorf("%w: empty recommendation", ErrUpstream)
	}
	return out.Recommendation, nil
}
