// Package gateway is the only component allowed to talk to the external
// payment processor. Every fund-moving call carries a deterministic
// idempotency key derived from the transaction id, so retried scheduler runs
// and duplicate webhook deliveries never move money twice.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/custodia-pay/custodia/internal/config"
	"github.com/custodia-pay/custodia/pkg/types"
	"github.com/rs/zerolog/log"
)

type Client struct {
	httpClient *http.Client
	secretKey  string
	baseURL    string
}

func NewClient(cfg *config.GatewayConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
				DisableKeepAlives:   false,
			},
		},
		secretKey: cfg.SecretKey,
		baseURL:   cfg.BaseURL,
	}
}

// Idempotency keys for fund-moving calls. One transaction can only ever map
// to one capture, one transfer and one refund.
func captureKey(transactionID string) string  { return "capture:" + transactionID }
func transferKey(transactionID string) string { return "transfer:" + transactionID }
func refundKey(transactionID string) string   { return "refund:" + transactionID }

// Authorize creates a manual-capture hold for the transaction amount.
func (c *Client) Authorize(ctx context.Context, transactionID string, amount int64, currency, method string) (string, error) {
	req := &types.AuthorizeRequest{
		Amount:      amount,
		Currency:    currency,
		CaptureMode: "manual",
		Method:      method,
		Metadata:    map[string]string{"transaction_id": transactionID},
	}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/authorizations", "authorize:"+transactionID, req)
	if err != nil {
		return "", err
	}

	var resp types.AuthorizeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse authorize response: %w", err)
	}
	if !resp.Status {
		return "", &GatewayError{Code: "authorize_rejected", Message: resp.Message}
	}
	return resp.Data.HoldRef, nil
}

// Capture converts a hold into a charge. A hold that was already captured is
// treated as success, because deadline jobs and manual release can race.
func (c *Client) Capture(ctx context.Context, transactionID, holdRef string) (string, error) {
	path := fmt.Sprintf("/authorizations/%s/capture", holdRef)
	respBody, err := c.doRequest(ctx, http.MethodPost, path, captureKey(transactionID), nil)
	if err != nil {
		return "", err
	}

	var resp types.CaptureResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse capture response: %w", err)
	}
	if !resp.Status {
		return "", &GatewayError{Code: "capture_rejected", Message: resp.Message}
	}
	if resp.Data.AlreadyCaptured {
		log.Info().Str("transaction_id", transactionID).Str("hold_ref", holdRef).Msg("Hold already captured, treating as success")
	}
	return resp.Data.ChargeRef, nil
}

// Transfer moves net proceeds to the seller's payout account.
func (c *Client) Transfer(ctx context.Context, transactionID, chargeRef, destination string, amount int64) (string, error) {
	req := &types.TransferRequest{ChargeRef: chargeRef, Destination: destination, Amount: amount}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/transfers", transferKey(transactionID), req)
	if err != nil {
		return "", err
	}

	var resp types.TransferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse transfer response: %w", err)
	}
	if !resp.Status {
		return "", &GatewayError{Code: "transfer_rejected", Message: resp.Message}
	}
	return resp.Data.TransferRef, nil
}

// Refund returns amount to the buyer from a captured charge.
func (c *Client) Refund(ctx context.Context, transactionID, chargeRef string, amount int64) (string, error) {
	req := &types.RefundRequest{ChargeRef: chargeRef, Amount: amount}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/refunds", refundKey(transactionID), req)
	if err != nil {
		return "", err
	}

	var resp types.RefundResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse refund response: %w", err)
	}
	if !resp.Status {
		return "", &GatewayError{Code: "refund_rejected", Message: resp.Message}
	}
	return resp.Data.RefundRef, nil
}

// SettledAmount fetches the processor's recorded settlement for a
// transaction. Used by reconciliation only; a missing record is not an error.
func (c *Client) SettledAmount(ctx context.Context, transactionID string) (int64, bool, error) {
	path := fmt.Sprintf("/records/%s", transactionID)
	respBody, err := c.doRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		var gwErr *GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}

	var resp types.RecordResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, false, fmt.Errorf("failed to parse record response: %w", err)
	}
	if !resp.Status {
		return 0, false, nil
	}
	return resp.Data.Amount, true, nil
}

func (c *Client) doRequest(ctx context.Context, method, path, idempotencyKey string, body any) ([]byte, error) {
	url := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal request body")
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create HTTP request")
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", url).
			Int64("duration_ms", duration).
			Msg("HTTP request failed")
		return nil, &GatewayError{Code: "transport_error", Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).
			Str("method", method).
			Str("url", url).
			Int64("duration_ms", duration).
			Msg("Failed to read response body")
		return nil, &GatewayError{Code: "transport_error", Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Code == "" {
			apiErr.Code = "processor_error"
		}
		log.Error().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("url", url).
			Str("code", apiErr.Code).
			Int64("duration_ms", duration).
			Msg("Processor API error response")
		return nil, &GatewayError{StatusCode: resp.StatusCode, Code: apiErr.Code, Message: apiErr.Message}
	}

	log.Info().
		Int("status", resp.StatusCode).
		Str("method", method).
		Str("url", url).
		Int64("duration_ms", duration).
		Msg("Processor API request successful")

	return respBody, nil
}
