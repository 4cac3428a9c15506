package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	liveBaseURL    = "https://api.nowpayments.io/v1"
	sandboxBaseURL = "https://api-sandbox.nowpayments.io/v1"
)

// ClientConfig contains configuration for the NOWPayments client.
type ClientConfig struct {
	APIKey         string
	Sandbox        bool
	BaseURL        string // overrides the endpoint choice, used by tests
	RequestTimeout time.Duration
}

// Client handles communication with the NOWPayments API. It performs single
// requests only; retry policy belongs to the caller, which knows which
// endpoints are worth retrying.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a NOWPayments API client against the live or sandbox endpoint
// depending on config. It is a pure factory: no process-wide client state.
func New(config ClientConfig, logger *zap.Logger) *Client {
	if config.BaseURL == "" {
		if config.Sandbox {
			config.BaseURL = sandboxBaseURL
		} else {
			config.BaseURL = liveBaseURL
		}
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}
}

// Status reports API availability. Anything other than message "OK" means
// the processor is down.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var status StatusResponse
	if err := c.get(ctx, "/status", nil, &status); err != nil {
		return nil, fmt.Errorf("get API status failed: %w", err)
	}
	return &status, nil
}

// AvailableCurrencies lists the currency codes the processor currently
// accepts payments in.
func (c *Client) AvailableCurrencies(ctx context.Context) (*CurrenciesResponse, error) {
	var currencies CurrenciesResponse
	if err := c.get(ctx, "/currencies", nil, &currencies); err != nil {
		return nil, fmt.Errorf("get available currencies failed: %w", err)
	}
	return &currencies, nil
}

// MinimumAmount returns the smallest payment the processor will accept in
// the given currency.
func (c *Client) MinimumAmount(ctx context.Context, currency string) (*MinimumAmountResponse, error) {
	q := url.Values{}
	q.Set("currency_from", currency)

	var min MinimumAmountResponse
	if err := c.get(ctx, "/min-amount", q, &min); err != nil {
		return nil, fmt.Errorf("get minimum payment amount failed: %w", err)
	}
	return &min, nil
}

// EstimatePrice converts an amount in the event's fiat currency into the
// buyer's chosen crypto currency at the current rate.
func (c *Client) EstimatePrice(ctx context.Context, amount decimal.Decimal, fromCurrency, toCurrency string) (*EstimateResponse, error) {
	q := url.Values{}
	q.Set("amount", amount.String())
	q.Set("currency_from", fromCurrency)
	q.Set("currency_to", toCurrency)

	var est EstimateResponse
	if err := c.get(ctx, "/estimate", q, &est); err != nil {
		return nil, fmt.Errorf("get price estimate failed: %w", err)
	}
	return &est, nil
}

// CreatePayment creates a payment on the processor and returns the receiving
// address and crypto amount the buyer must send.
func (c *Client) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentResponse, error) {
	c.logger.Info("creating payment",
		zap.String("order_id", req.OrderID),
		zap.String("price_currency", req.PriceCurrency),
		zap.String("pay_currency", req.PayCurrency),
	)

	resp, err := c.makeRequest(ctx, http.MethodPost, "/payment", nil, req)
	if err != nil {
		c.logger.Error("failed to create payment", zap.Error(err))
		return nil, fmt.Errorf("create payment failed: %w", err)
	}
	defer resp.Body.Close()

	var paymentResp PaymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&paymentResp); err != nil {
		return nil, fmt.Errorf("decode payment response failed: %w", err)
	}

	c.logger.Info("payment created",
		zap.String("payment_id", paymentResp.PaymentID),
		zap.String("order_id", paymentResp.OrderID),
	)

	return &paymentResp, nil
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	return nil
}

// makeRequest performs a single HTTP request with proper headers and error
// mapping. Non-2xx responses become *APIError.
func (c *Client) makeRequest(ctx context.Context, method, endpoint string, query url.Values, payload any) (*http.Response, error) {
	reqURL := c.config.BaseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload failed: %w", err)
		}
		body = bytes.NewBuffer(payloadBytes)
	}

	c.logger.Debug("preparing nowpayments request",
		zap.String("method", method),
		zap.String("url", reqURL),
	)

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}

	return resp, nil
}

// APIError represents an error response from the NOWPayments API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nowpayments API error (status %d): %s", e.StatusCode, e.Message)
}
