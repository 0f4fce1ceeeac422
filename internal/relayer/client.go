// Package relayer talks to the transaction relayer that holds the
// keeper key. The keeper never signs transactions itself; it submits
// an execution request for a plan's settlement-side reference and
// polls the resulting operation until finality.
package relayer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/indexr-labs/indexr-go/internal/domain"
	"github.com/indexr-labs/indexr-go/internal/engine"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	PollInterval time.Duration
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("relayer base url is required")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("relayer base url: %w", err)
	}
	if c.Timeout < 0 {
		return errors.New("relayer timeout must be >= 0")
	}
	if c.PollInterval < 0 {
		return errors.New("relayer poll interval must be >= 0")
	}
	return nil
}

type Client struct {
	baseURL      string
	apiKey       string
	httpc        *http.Client
	pollInterval time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pollInterval := cfg.PollInterval
	if pollInterval == 0 {
		pollInterval = 3 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		httpc:        &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
	}, nil
}

type submitRequest struct {
	PlanRef     string `json:"plan_ref"`
	AmountUnits int64  `json:"amount_units"`
}

type submitResponse struct {
	OperationRef string `json:"operation_ref"`
	Error        string `json:"error,omitempty"`
}

// Submit asks the relayer to execute the plan's settlement operation.
// A non-2xx response means the operation was never accepted.
func (c *Client) Submit(ctx context.Context, externalPlanRef string, amount domain.Amount) (string, error) {
	externalPlanRef = strings.TrimSpace(externalPlanRef)
	if externalPlanRef == "" {
		return "", errors.New("external plan ref is required")
	}
	body, err := json.Marshal(submitRequest{PlanRef: externalPlanRef, AmountUnits: amount.Units()})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/operations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit operation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		if decoded.Error != "" {
			return "", fmt.Errorf("submit operation: %s (status %d)", decoded.Error, resp.StatusCode)
		}
		return "", fmt.Errorf("submit operation: unexpected status %d", resp.StatusCode)
	}
	if strings.TrimSpace(decoded.OperationRef) == "" {
		return "", errors.New("submit operation: missing operation ref")
	}
	return decoded.OperationRef, nil
}

type operationStatus struct {
	Status string `json:"status"`
}

// AwaitFinality polls the operation until it is confirmed or reverted,
// or until the bounded wait elapses. Timing out does not cancel the
// underlying operation; the caller reconciles it as a failure.
func (c *Client) AwaitFinality(ctx context.Context, operationRef string, timeout time.Duration) (engine.FinalityResult, error) {
	operationRef = strings.TrimSpace(operationRef)
	if operationRef == "" {
		return "", errors.New("operation ref is required")
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.operationStatus(ctx, operationRef)
		if err != nil {
			return "", err
		}
		switch status {
		case "confirmed":
			return engine.FinalityConfirmed, nil
		case "reverted":
			return engine.FinalityReverted, nil
		}

		if time.Now().After(deadline) {
			return engine.FinalityTimedOut, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) operationStatus(ctx context.Context, operationRef string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/operations/"+url.PathEscape(operationRef), nil)
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("operation status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("operation status: unexpected status %d", resp.StatusCode)
	}
	var decoded operationStatus
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(decoded.Status)), nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
