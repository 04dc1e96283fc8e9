// Package classify issues the travel code and category for a finished
// onboarding: a networked primary call with a deterministic local fallback.
package classify

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

// ClassifyRequest represents the classification backend request.
type ClassifyRequest struct {
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	Preferences map[string][]string `json:"preferences"`
}

// ClassifyResponse represents the classification backend response.
type ClassifyResponse struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Summary  string `json:"summary"`
}

// WelcomeRequest represents the welcome-notification request.
type WelcomeRequest struct {
	Email       string              `json:"email"`
	Name        string              `json:"name"`
	Code        string              `json:"code"`
	Category    string              `json:"category"`
	Preferences map[string][]string `json:"preferences"`
}

// Client is the classification backend client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new classification backend client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Classify sends the collected preferences for categorization and code
// issuance.
func (c *Client) Classify(ctx context.Context, req *ClassifyRequest) (*ClassifyResponse, error) {
	var result ClassifyResponse
	if err := c.post(ctx, "/v1/classify", req, &result); err != nil {
		return nil, err
	}
	if strings.TrimSpace(result.Code) == "" {
		return nil, domain.NewServiceError(domain.FailureBadShape, errors.New("empty code in response"))
	}
	return &result, nil
}

// GetCodeImage requests a QR-encodable representation of code. Failure is
// non-fatal for the caller: code issuance proceeds without the asset.
func (c *Client) GetCodeImage(ctx context.Context, code string) (string, error) {
	var result struct {
		ImageURL string `json:"image_url"`
	}
	if err := c.post(ctx, "/v1/codes/qr", map[string]string{"code": code}, &result); err != nil {
		return "", err
	}
	if result.ImageURL == "" {
		return "", domain.NewServiceError(domain.FailureBadShape, errors.New("empty image_url in response"))
	}
	return result.ImageURL, nil
}

// SendWelcome posts the welcome notification. Fire-and-forget at the call
// site: failure is logged and never blocks finalization.
func (c *Client) SendWelcome(ctx context.Context, req *WelcomeRequest) error {
	return c.post(ctx, "/v1/notifications/welcome", req, nil)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.NewServiceError(domain.FailureBadShape, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return domain.NewServiceError(domain.FailureNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := domain.FailureNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.FailureTimeout
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = domain.FailureTimeout
		}
		return domain.NewServiceError(kind, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewServiceError(domain.FailureNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return domain.NewServiceError(domain.FailureNetwork,
			fmt.Errorf("classify API error [%d]: %s", resp.StatusCode, string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.NewServiceError(domain.FailureBadShape, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}
