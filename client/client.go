// Package client is a minimal client for the generation endpoint of a
// TGI-compatible inference service. The harness only depends on the /generate
// call: the health probe uses it to confirm readiness and the load generator
// uses it to drive concurrent traffic.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// InferenceClient sends generation requests to a single service endpoint.
type InferenceClient struct {
	// BaseURL is the service endpoint, e.g. "http://localhost:8123".
	BaseURL string

	httpClient *http.Client
}

// New creates a client for the given endpoint. If httpClient is nil,
// http.DefaultClient is used.
func New(baseURL string, httpClient *http.Client) *InferenceClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &InferenceClient{BaseURL: baseURL, httpClient: httpClient}
}

// Generate sends one generation request and decodes the response. Transport
// errors are returned wrapped, so callers can still match the underlying
// syscall errors with errors.Is; an HTTP error status is returned as a
// *StatusError.
func (c *InferenceClient) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GenerateResponse, error) {
	reqBody := generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:        opts.MaxNewTokens,
			DecoderInputDetails: opts.DecoderInputDetails,
			Details:             true,
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/generate", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generation request to %s failed: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading generation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respData)}
	}

	var out GenerateResponse
	if err := json.Unmarshal(respData, &out); err != nil {
		return nil, fmt.Errorf("malformed generation response: %w", err)
	}
	return &out, nil
}

// StatusError is returned when the service answers a generation request with
// a non-200 status. The connection succeeded, so the health probe treats this
// as a fatal condition rather than a not-yet-ready one.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("service returned HTTP %d: %s", e.StatusCode, e.Body)
}
