package tabby

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses returned by the Tabby API. AUTHORIZED means the customer
// approved financing but funds are not settled until an explicit capture.
const (
	StatusCreated    = "CREATED"
	StatusAuthorized = "AUTHORIZED"
	StatusCaptured   = "CAPTURED"
	StatusClosed     = "CLOSED"
	StatusRejected   = "REJECTED"
	StatusExpired    = "EXPIRED"
)

type Config struct {
	BaseURL      string
	SecretKey    string
	PublicKey    string
	MerchantCode string
	Currency     string
	SuccessURL   string
	CancelURL    string
	FailureURL   string
}

// Client is a stateless wrapper around the Tabby REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tabby.ai/api/v2"
	}
	if cfg.Currency == "" {
		cfg.Currency = "SAR"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type Order struct {
	ReferenceID string `json:"reference_id"`
}

// Payment is the subset of Tabby's payment object the reconciliation path
// needs.
type Payment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount string `json:"amount"`
	Order  Order  `json:"order"`
}

type Buyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Address struct {
	City    string `json:"city"`
	Address string `json:"address"`
	Zip     string `json:"zip"`
}

type OrderItem struct {
	ReferenceID string          `json:"reference_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"-"`
	Category    string          `json:"category"`
}

type CheckoutRequest struct {
	Amount      decimal.Decimal
	Description string
	ReferenceID string
	Lang        string
	Buyer       Buyer
	Shipping    Address
	Items       []OrderItem
}

type CheckoutSession struct {
	SessionID   string
	PaymentID   string
	CheckoutURL string
	Status      string
}

type checkoutResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Payment struct {
		ID string `json:"id"`
	} `json:"payment"`
	Configuration struct {
		AvailableProducts struct {
			Installments []struct {
				WebURL string `json:"web_url"`
			} `json:"installments"`
		} `json:"available_products"`
	} `json:"configuration"`
	RejectionReasonCode string `json:"rejection_reason_code"`
}

// CreateCheckout opens a hosted checkout session and returns the URL the
// buyer must be redirected to.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	lang := req.Lang
	if lang == "" {
		lang = "en"
	}

	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		category := item.Category
		if category == "" {
			category = "General"
		}
		items = append(items, map[string]any{
			"reference_id":    item.ReferenceID,
			"title":           item.Title,
			"description":     item.Description,
			"quantity":        item.Quantity,
			"unit_price":      item.UnitPrice.StringFixed(2),
			"discount_amount": "0.00",
			"category":        category,
		})
	}

	payload := map[string]any{
		"payment": map[string]any{
			"amount":           req.Amount.StringFixed(2),
			"currency":         c.cfg.Currency,
			"description":      req.Description,
			"buyer":            req.Buyer,
			"shipping_address": req.Shipping,
			"order": map[string]any{
				"reference_id":    req.ReferenceID,
				"updated_at":      time.Now().Format(time.RFC3339),
				"tax_amount":      "0.00",
				"shipping_amount": "0.00",
				"discount_amount": "0.00",
				"items":           items,
			},
		},
		"lang":          lang,
		"merchant_code": c.cfg.MerchantCode,
		"merchant_urls": map[string]string{
			"success": c.cfg.SuccessURL,
			"cancel":  c.cfg.CancelURL,
			"failure": c.cfg.FailureURL,
		},
	}

	var resp checkoutResponse
	if err := c.doRequest(ctx, http.MethodPost, "/checkout", payload, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "created" {
		c.logger.Warn("tabby checkout rejected",
			"status", resp.Status,
			"rejection_reason_code", resp.RejectionReasonCode,
			"reference_id", req.ReferenceID)
		return nil, fmt.Errorf("tabby checkout rejected: %s", resp.Status)
	}

	session := &CheckoutSession{
		SessionID: resp.ID,
		PaymentID: resp.Payment.ID,
		Status:    resp.Status,
	}
	if installments := resp.Configuration.AvailableProducts.Installments; len(installments) > 0 {
		session.CheckoutURL = installments[0].WebURL
	}

	c.logger.Info("tabby checkout created",
		"session_id", session.SessionID,
		"payment_id", session.PaymentID,
		"reference_id", req.ReferenceID)

	return session, nil
}

// GetPayment fetches a payment by the provider-assigned id.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var payment Payment
	if err := c.doRequest(ctx, http.MethodGet, "/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Capture settles a previously authorized payment. Tabby answers with the
// payment object carrying the post-capture status.
func (c *Client) Capture(ctx context.Context, paymentID, amount, referenceID string) (*Payment, error) {
	payload := map[string]any{"amount": amount}
	if referenceID != "" {
		payload["reference_id"] = referenceID
	}

	var payment Payment
	if err := c.doRequest(ctx, http.MethodPost, "/payments/"+paymentID+"/captures", payload, &payment); err != nil {
		return nil, err
	}

	c.logger.Info("tabby capture issued",
		"payment_id", paymentID,
		"amount", amount,
		"status", payment.Status)

	return &payment, nil
}

// Refund issues a single refund against a captured payment.
func (c *Client) Refund(ctx context.Context, paymentID, amount, reason string) (*Payment, error) {
	payload := map[string]any{"amount": amount}
	if reason != "" {
		payload["reason"] = reason
	}

	var payment Payment
	if err := c.doRequest(ctx, http.MethodPost, "/payments/"+paymentID+"/refunds", payload, &payment); err != nil {
		return nil, err
	}

	c.logger.Info("tabby refund issued",
		"payment_id", paymentID,
		"amount", amount,
		"status", payment.Status)

	return &payment, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tabby request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("tabby api error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"response", string(respBody))
		return fmt.Errorf("tabby api returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
