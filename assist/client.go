// Package assist provides the AI response service: a networked primary call
// with a deterministic local fallback responder.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/voyago/concierge/domain"
)

// Turn is one role/content pair of prior transcript history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents the assistant backend request.
type ChatRequest struct {
	Message     string `json:"message"`
	History     []Turn `json:"history"`
	Personality string `json:"personality"`
}

// ChatResponse represents the assistant backend response.
type ChatResponse struct {
	Message string `json:"message"`
}

// Client is the assistant backend client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new assistant backend client.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateReply sends a chat request to the assistant backend. Failures are
// returned as *domain.ServiceError so the caller can collapse them to the
// local fallback.
func (c *Client) CreateReply(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.NewServiceError(domain.FailureBadShape, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/assistant/chat", bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewServiceError(domain.FailureNetwork, fmt.Errorf("failed to create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewServiceError(classifyTransportError(err), fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewServiceError(domain.FailureNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewServiceError(domain.FailureNetwork,
			fmt.Errorf("assistant API error [%d]: %s", resp.StatusCode, string(respBody)))
	}

	var result ChatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.NewServiceError(domain.FailureBadShape, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	if strings.TrimSpace(result.Message) == "" {
		return nil, domain.NewServiceError(domain.FailureBadShape, errors.New("empty assistant message"))
	}

	return &result, nil
}

// classifyTransportError maps a transport error to a failure kind.
func classifyTransportError(err error) domain.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FailureTimeout
	}
	return domain.FailureNetwork
}
