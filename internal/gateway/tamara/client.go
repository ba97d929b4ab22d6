package tamara

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

const (
	sandboxURL    = "https://api-sandbox.tamara.co"
	productionURL = "https://api.tamara.co"
)

// Order lifecycle statuses as reported by GET /orders/{id}. Tamara models an
// order that moves through approval, authorization and capture; note the
// authorise endpoint answers with the British spelling "authorised" while the
// fetched order reports "authorized".
const (
	OrderStatusNew               = "new"
	OrderStatusApproved          = "approved"
	OrderStatusAuthorized        = "authorized"
	OrderStatusAuthorised        = "authorised"
	OrderStatusFullyCaptured     = "fully_captured"
	OrderStatusPartiallyCaptured = "partially_captured"
	OrderStatusDeclined          = "declined"
	OrderStatusCanceled          = "canceled"
	OrderStatusExpired           = "expired"
)

type Config struct {
	APIToken          string
	NotificationToken string
	Currency          string
	CountryCode       string
	SandboxMode       bool
	SuccessURL        string
	CancelURL         string
	FailureURL        string
}

// Client is a stateless wrapper around the Tamara REST API.
type Client struct {
	cfg        Config
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := productionURL
	if cfg.SandboxMode {
		baseURL = sandboxURL
	}
	if cfg.Currency == "" {
		cfg.Currency = "SAR"
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = "SA"
	}
	return &Client{
		cfg:        cfg,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

type Amount struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

func (c *Client) amount(d decimal.Decimal) Amount {
	return Amount{Amount: d.InexactFloat64(), Currency: c.cfg.Currency}
}

type Order struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type CaptureResult struct {
	CaptureID   string `json:"capture_id"`
	OrderStatus string `json:"order_status"`
}

type RefundResult struct {
	RefundID     string `json:"refund_id"`
	RefundStatus string `json:"refund_status"`
}

type Consumer struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Line1       string `json:"line1"`
	Line2       string `json:"line2"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	PhoneNumber string `json:"phone_number"`
}

type OrderItem struct {
	ReferenceID string          `json:"reference_id"`
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"-"`
	TotalAmount decimal.Decimal `json:"-"`
}

type CheckoutRequest struct {
	ReferenceID string
	OrderNumber string
	Amount      decimal.Decimal
	Description string
	Locale      string
	Consumer    Consumer
	Billing     Address
	Shipping    Address
	Items       []OrderItem
}

type CheckoutSession struct {
	CheckoutID  string `json:"checkout_id"`
	CheckoutURL string `json:"checkout_url"`
	OrderID     string `json:"order_id"`
}

// CreateCheckout opens a Tamara checkout session for a pay-by-instalments
// order.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	locale := req.Locale
	if locale == "" {
		locale = "ar_SA"
	}

	items := make([]map[string]any, 0, len(req.Items))
	for _, item := range req.Items {
		itemType := item.Type
		if itemType == "" {
			itemType = "Physical"
		}
		items = append(items, map[string]any{
			"reference_id":    item.ReferenceID,
			"type":            itemType,
			"name":            item.Name,
			"sku":             item.SKU,
			"quantity":        item.Quantity,
			"unit_price":      c.amount(item.UnitPrice),
			"discount_amount": c.amount(decimal.Zero),
			"total_amount":    c.amount(item.TotalAmount),
		})
	}

	payload := map[string]any{
		"order_reference_id": req.ReferenceID,
		"order_number":       req.OrderNumber,
		"total_amount":       c.amount(req.Amount),
		"description":        req.Description,
		"country_code":       c.cfg.CountryCode,
		"payment_type":       "PAY_BY_INSTALMENTS",
		"instalments":        3,
		"locale":             locale,
		"platform":           "web",
		"is_mobile":          false,
		"merchant_url": map[string]string{
			"success": c.cfg.SuccessURL,
			"failure": c.cfg.FailureURL,
			"cancel":  c.cfg.CancelURL,
		},
		"consumer":         req.Consumer,
		"billing_address":  req.Billing,
		"shipping_address": req.Shipping,
		"items":            items,
		"discount": map[string]any{
			"amount": c.amount(decimal.Zero),
			"name":   "No discount",
		},
		"shipping_amount": c.amount(decimal.Zero),
		"tax_amount":      c.amount(decimal.Zero),
	}

	var session CheckoutSession
	if err := c.doRequest(ctx, http.MethodPost, "/checkout", payload, &session); err != nil {
		return nil, err
	}

	c.logger.Info("tamara checkout created",
		"checkout_id", session.CheckoutID,
		"order_id", session.OrderID,
		"reference_id", req.ReferenceID)

	return &session, nil
}

// GetOrder fetches the current lifecycle state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.doRequest(ctx, http.MethodGet, "/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		order.OrderID = orderID
	}
	return &order, nil
}

// Authorize acknowledges an approved order. Funds still require a capture
// afterwards.
func (c *Client) Authorize(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := c.doRequest(ctx, http.MethodPost, "/orders/"+orderID+"/authorise", nil, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		order.OrderID = orderID
	}

	c.logger.Info("tamara order authorized", "order_id", orderID, "status", order.Status)
	return &order, nil
}

// Capture settles an authorized order for the given amount.
func (c *Client) Capture(ctx context.Context, orderID string, total decimal.Decimal) (*CaptureResult, error) {
	payload := map[string]any{
		"order_id":     orderID,
		"total_amount": c.amount(total),
	}

	var result CaptureResult
	if err := c.doRequest(ctx, http.MethodPost, "/payments/capture", payload, &result); err != nil {
		return nil, err
	}

	c.logger.Info("tamara capture issued",
		"order_id", orderID,
		"capture_id", result.CaptureID,
		"order_status", result.OrderStatus)

	return &result, nil
}

// Cancel voids an order that has not been captured.
func (c *Client) Cancel(ctx context.Context, orderID string, total decimal.Decimal) error {
	payload := map[string]any{
		"total_amount": c.amount(total),
	}
	if err := c.doRequest(ctx, http.MethodPost, "/orders/"+orderID+"/cancel", payload, nil); err != nil {
		return err
	}

	c.logger.Info("tamara order cancelled", "order_id", orderID)
	return nil
}

// Refund issues a single simplified refund against a captured order.
func (c *Client) Refund(ctx context.Context, orderID string, total decimal.Decimal, comment string) (*RefundResult, error) {
	payload := map[string]any{
		"total_amount": c.amount(total),
	}
	if comment != "" {
		payload["comment"] = comment
	}

	var result RefundResult
	if err := c.doRequest(ctx, http.MethodPost, "/payments/simplified-refund/"+orderID, payload, &result); err != nil {
		return nil, err
	}

	c.logger.Info("tamara refund issued",
		"order_id", orderID,
		"refund_id", result.RefundID,
		"refund_status", result.RefundStatus)

	return &result, nil
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tamara request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("tamara api error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"response", string(respBody))
		return fmt.Errorf("tamara api returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
