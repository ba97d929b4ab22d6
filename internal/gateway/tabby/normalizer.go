package tabby

import (
	"context"
	"log/slog"

	"github.com/mlquarizm/payment-gateway/internal/gateway"
)

// PaymentAPI is the slice of the Tabby client the normalizer depends on.
type PaymentAPI interface {
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)
	Capture(ctx context.Context, paymentID, amount, referenceID string) (*Payment, error)
}

// Normalizer interprets Tabby callbacks and webhooks. Tabby reports a single
// payment object; the only multi-step case is AUTHORIZED, which needs an
// explicit capture before the outcome is final.
type Normalizer struct {
	client PaymentAPI
	logger *slog.Logger
}

func NewNormalizer(client PaymentAPI, logger *slog.Logger) *Normalizer {
	return &Normalizer{client: client, logger: logger}
}

func (n *Normalizer) Normalize(ctx context.Context, notif gateway.Notification) gateway.Result {
	// Webhooks carry the payment id in "id", browser callbacks in
	// "payment_id".
	key := "payment_id"
	if notif.Webhook {
		key = "id"
	}
	paymentID := notif.Field(key)

	providerStatus := notif.Field("status")
	if providerStatus == "" {
		providerStatus = "unknown"
	}

	if paymentID == "" {
		n.logger.Warn("tabby: no payment id in notification", "webhook", notif.Webhook)
		return gateway.NotMatchable()
	}

	payment, err := n.client.GetPayment(ctx, paymentID)
	if err != nil {
		n.logger.Error("tabby: get payment failed",
			"payment_id", paymentID,
			"error", err)
		return gateway.Result{
			TransactionID:  paymentID,
			ProviderStatus: providerStatus,
			IsSuccess:      false,
			Matchable:      true,
		}
	}

	isSuccess := payment.Status == StatusCaptured ||
		payment.Status == StatusAuthorized ||
		payment.Status == StatusClosed

	if payment.Status == StatusAuthorized {
		return n.captureAuthorized(ctx, paymentID, providerStatus, payment)
	}

	return gateway.Result{
		TransactionID:  paymentID,
		OrderReference: payment.Order.ReferenceID,
		ProviderStatus: providerStatus,
		IsSuccess:      isSuccess,
		Matchable:      true,
	}
}

// captureAuthorized settles an authorized payment and re-evaluates success
// from the capture response rather than the pre-capture status.
func (n *Normalizer) captureAuthorized(ctx context.Context, paymentID, providerStatus string, payment *Payment) gateway.Result {
	referenceID := payment.Order.ReferenceID

	captured, err := n.client.Capture(ctx, paymentID, payment.Amount, referenceID)
	if err != nil {
		n.logger.Error("tabby: capture after authorization failed",
			"payment_id", paymentID,
			"reference_id", referenceID,
			"error", err)
		return gateway.Result{
			TransactionID:  paymentID,
			OrderReference: referenceID,
			ProviderStatus: providerStatus,
			IsSuccess:      false,
			Matchable:      true,
		}
	}

	transactionID := captured.ID
	if transactionID == "" {
		transactionID = paymentID
	}
	orderReference := captured.Order.ReferenceID
	if orderReference == "" {
		orderReference = referenceID
	}

	return gateway.Result{
		TransactionID:  transactionID,
		OrderReference: orderReference,
		ProviderStatus: providerStatus,
		IsSuccess:      captured.Status == StatusClosed || captured.Status == StatusCaptured,
		Matchable:      true,
	}
}
