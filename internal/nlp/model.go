package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ModelClient calls an external inference endpoint for classification
// and extraction. Responses are treated as low-confidence suggestions;
// any transport or decode failure is surfaced so the hybrid strategy
// can fall back to patterns.
type ModelClient struct {
	url    string
	apiKey string
	http   *http.Client
}

func NewModelClient(url, apiKey string) *ModelClient {
	return &ModelClient{
		url:    url,
		apiKey: apiKey,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type modelRequest struct {
	Task      string   `json:"task"`
	Utterance string   `json:"utterance"`
	Schema    []string `json:"schema,omitempty"`
}

type modelResponse struct {
	Label      string            `json:"label,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
}

func (c *ModelClient) call(ctx context.Context, req modelRequest) (*modelResponse, error) {
	if c.url == "" {
		return nil, fmt.Errorf("model url not configured")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned %d", resp.StatusCode)
	}

	var out modelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return &out, nil
}

func (c *ModelClient) Classify(ctx context.Context, utterance string) (Intent, error) {
	out, err := c.call(ctx, modelRequest{Task: "classify", Utterance: utterance})
	if err != nil {
		return Intent{}, err
	}
	return Intent{Label: out.Label, Confidence: out.Confidence}, nil
}

func (c *ModelClient) Extract(ctx context.Context, utterance string, schema []string) (map[string]string, error) {
	out, err := c.call(ctx, modelRequest{Task: "extract", Utterance: utterance, Schema: schema})
	if err != nil {
		return nil, err
	}
	return out.Fields, nil
}
