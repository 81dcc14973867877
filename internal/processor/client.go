// Package processor is a thin typed client for the remote card processor's
// hold, payment, payment-status and capture endpoints.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wakala/payments/internal/domain"
)

const (
	DefaultAuthHeader = "X-Torch-Auth"
	DefaultTimeout    = 10 * time.Second

	maxResponseBytes = 1 << 20
)

// Config configures a Client.
type Config struct {
	BaseURL    string
	AuthToken  string
	AuthHeader string

	// Timeout bounds every individual call.
	Timeout time.Duration

	HTTPClient *http.Client

	// Breaker is optional. When set, every call runs through it.
	Breaker *gobreaker.CircuitBreaker
}

// Client issues the four processor operations. It never retries and never
// caches; that policy belongs to the orchestrator.
type Client struct {
	baseURL    string
	authToken  string
	authHeader string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	header := cfg.AuthHeader
	if header == "" {
		header = DefaultAuthHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		authHeader: header,
		timeout:    timeout,
		httpClient: httpClient,
		breaker:    cfg.Breaker,
	}
}

type amountBody struct {
	Amount domain.Money `json:"amount"`
}

// CreateHold reserves amount on the card: POST /card/{cardId}/hold.
func (c *Client) CreateHold(ctx context.Context, card domain.CardID, amount domain.Money) (*domain.Hold, error) {
	var hold domain.Hold
	path := "/card/" + url.PathEscape(card.String()) + "/hold"
	if err := c.call(ctx, OpCreateHold, http.MethodPost, path, amountBody{amount}, &hold.Record); err != nil {
		return nil, err
	}
	return &hold, nil
}

// CreatePayment initiates a payment: POST /payment.
func (c *Client) CreatePayment(ctx context.Context, amount domain.Money) (*domain.Payment, error) {
	var payment domain.Payment
	if err := c.call(ctx, OpCreatePayment, http.MethodPost, "/payment", amountBody{amount}, &payment.Record); err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentStatus fetches the current payment snapshot: GET /payment/{id}.
func (c *Client) GetPaymentStatus(ctx context.Context, id domain.ResourceID) (*domain.Payment, error) {
	var payment domain.Payment
	path := "/payment/" + url.PathEscape(string(id))
	if err := c.call(ctx, OpPaymentStatus, http.MethodGet, path, nil, &payment.Record); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CaptureHold finalizes a hold: POST /card/{cardId}/hold/{holdId}/capture.
func (c *Client) CaptureHold(ctx context.Context, card domain.CardID, holdID domain.ResourceID, amount domain.Money) (*domain.Capture, error) {
	var capture domain.Capture
	path := "/card/" + url.PathEscape(card.String()) + "/hold/" + url.PathEscape(string(holdID)) + "/capture"
	if err := c.call(ctx, OpCaptureHold, http.MethodPost, path, amountBody{amount}, &capture.Record); err != nil {
		return nil, err
	}
	return &capture, nil
}

func (c *Client) call(ctx context.Context, op Op, method, path string, body any, out *domain.Record) error {
	if c.breaker == nil {
		return c.do(ctx, op, method, path, body, out)
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, op, method, path, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &Error{Op: op, StatusCode: http.StatusServiceUnavailable, Detail: "processor circuit open", Err: err}
	}
	return err
}

func (c *Client) do(ctx context.Context, op Op, method, path string, body any, out *domain.Record) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, StatusCode: http.StatusInternalServerError, Detail: "encode request: " + err.Error(), Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Op: op, StatusCode: http.StatusInternalServerError, Detail: "build request: " + err.Error(), Err: err}
	}
	req.Header.Set(c.authHeader, c.authToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return transportError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Op: op, StatusCode: resp.StatusCode, Detail: string(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: http.StatusBadGateway, Detail: fmt.Sprintf("malformed processor response: %v", err), Err: err}
	}
	if out.ID == "" {
		return &Error{Op: op, StatusCode: http.StatusBadGateway, Detail: "processor response has no id: " + string(data)}
	}
	return nil
}

func transportError(op Op, err error) error {
	code := http.StatusBadGateway
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = http.StatusGatewayTimeout
	}
	return &Error{Op: op, StatusCode: code, Detail: err.Error(), Err: err}
}
