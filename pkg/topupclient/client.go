/**
 * @description
 * This package provides a client for the third-party airtime aggregator API.
 * It encapsulates authenticated HTTP requests to the aggregator's eligibility
 * and recharge endpoints, response envelope parsing, and a single fallback
 * retry through a configured relay proxy when the direct call fails at the
 * transport level (the aggregator sits behind an allowlist that some
 * deployments can only reach via the relay).
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package topupclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a client for the airtime aggregator API.
type Client struct {
	BaseURL    string
	APIKey     string
	ProxyURL   string
	HTTPClient *http.Client
}

// NewClient creates a new aggregator client. proxyURL may be empty, in which
// case no fallback retry is attempted.
func NewClient(baseURL, apiKey, proxyURL string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		APIKey:   apiKey,
		ProxyURL: strings.TrimRight(proxyURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// operatorCodeByPrefix maps the local two-digit carrier prefix to the
// aggregator's operator identifier. The aggregator refuses recharges without
// an explicit operator code, so it is derived here, at the integration point.
var operatorCodeByPrefix = map[string]string{
	"01": "MOOV_CI",
	"05": "MTN_CI",
	"07": "ORANGE_CI",
}

// OperatorCode derives the aggregator operator identifier from an MSISDN
// (internationalized or local). The empty string means the prefix is not one
// the aggregator serves.
func OperatorCode(msisdn string) string {
	local := strings.TrimPrefix(msisdn, "+225")
	local = strings.TrimPrefix(local, "225")
	if len(local) < 2 {
		return ""
	}
	return operatorCodeByPrefix[local[:2]]
}

// EligibilityRequest is the payload for an eligibility check.
type EligibilityRequest struct {
	MSISDN       string `json:"msisdn"`
	OperatorCode string `json:"operator_code"`
}

// RechargeRequest is the payload for an airtime recharge.
type RechargeRequest struct {
	MSISDN       string `json:"msisdn"`
	OperatorCode string `json:"operator_code"`
	Amount       int64  `json:"amount"`
	Reference    string `json:"reference"`
}

// Envelope is the aggregator's uniform response shape.
type Envelope struct {
	Status  string          `json:"status"` // "success" or "error"
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// APIError is a business-level rejection reported by the aggregator
// (status "error" in an otherwise well-formed response). Transport-level
// failures are returned as plain wrapped errors instead.
type APIError struct {
	Op      string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator rejected %s: %s", e.Op, e.Message)
}

// CheckEligibility asks the aggregator whether the msisdn can receive a
// recharge. A *APIError means an explicit rejection; any other error is a
// transport failure.
func (c *Client) CheckEligibility(ctx context.Context, msisdn string) (*Envelope, error) {
	payload := EligibilityRequest{
		MSISDN:       msisdn,
		OperatorCode: OperatorCode(msisdn),
	}
	return c.do(ctx, "eligibility", "/api/v1/topups/eligibility", payload)
}

// Recharge executes a topup for the msisdn. The reference correlates the call
// with the originating wizard run; the aggregator echoes it back in Data.
func (c *Client) Recharge(ctx context.Context, msisdn string, amount int64, reference string) (*Envelope, error) {
	payload := RechargeRequest{
		MSISDN:       msisdn,
		OperatorCode: OperatorCode(msisdn),
		Amount:       amount,
		Reference:    reference,
	}
	return c.do(ctx, "recharge", "/api/v1/topups", payload)
}

// do executes one aggregator call, retrying exactly once through the relay
// proxy when the direct request fails at the transport level.
func (c *Client) do(ctx context.Context, op, path string, payload interface{}) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
	}

	resp, err := c.post(ctx, c.BaseURL+path, body)
	if err != nil && c.ProxyURL != "" {
		log.Printf("level=warn component=topup_client op=%s msg=\"direct call failed; retrying via proxy\" err=%v", op, err)
		proxied := c.ProxyURL + "?url=" + url.QueryEscape(c.BaseURL+path)
		resp, err = c.post(ctx, proxied, body)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	var envelope Envelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			log.Printf("level=warn component=topup_client op=%s status=%d msg=\"non-2xx response (unparsable body)\"", op, resp.StatusCode)
			return nil, fmt.Errorf("failed to decode %s response (status %d)", op, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	if envelope.Status != "success" {
		message := envelope.Message
		if message == "" {
			message = fmt.Sprintf("unspecified error (status %d)", resp.StatusCode)
		}
		log.Printf("level=warn component=topup_client op=%s status=%d msg=%q", op, resp.StatusCode, message)
		return nil, &APIError{Op: op, Message: message}
	}

	return &envelope, nil
}

func (c *Client) post(ctx context.Context, target string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", target, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	return c.HTTPClient.Do(req)
}
