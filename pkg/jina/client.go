// Package jina provides a client for the Jina AI embeddings API.
package jina

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Jina embeddings operations.
type Client interface {
	// Embed converts the input texts into fixed-dimension vectors.
	Embed(ctx context.Context, texts []string) (*EmbedResponse, error)
}

// EmbedResponse is the parsed embeddings API response.
type EmbedResponse struct {
	Model string      `json:"model"`
	Data  []Embedding `json:"data"`
	Usage EmbedUsage  `json:"usage"`
}

// Embedding is a single vector keyed by input index.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbedUsage tracks token consumption.
type EmbedUsage struct {
	TotalTokens int `json:"total_tokens"`
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithDimensions requests vectors of the given dimension.
func WithDimensions(d int) Option {
	return func(c *httpClient) {
		c.dimensions = d
	}
}

type httpClient struct {
	apiKey     string
	baseURL    string
	model      string
	dimensions int
	http       *http.Client
}

// NewClient creates a Jina embeddings client.
func NewClient(apiKey, model string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.jina.ai/v1",
		model:   model,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Embed(ctx context.Context, texts []string) (*EmbedResponse, error) {
	body, err := json.Marshal(embedRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "jina: build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: embeddings request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.New(fmt.Sprintf("jina: embeddings status %d: %s", resp.StatusCode, snippet))
	}

	var out EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, eris.Wrap(err, "jina: decode response")
	}
	if len(out.Data) != len(texts) {
		return nil, eris.Errorf("jina: got %d embeddings for %d inputs", len(out.Data), len(texts))
	}

	return &out, nil
}
