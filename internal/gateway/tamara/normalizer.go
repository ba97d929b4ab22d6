package tamara

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
)

// webhook event types map onto the order statuses used for matching. Unknown
// event types normalize to "unknown" and fall through to the failure branch.
var webhookEventStatus = map[string]string{
	"order_approved": "approved",
	"order_declined": "declined",
	"order_canceled": "canceled",
	"order_captured": "captured",
	"order_refunded": "refunded",
	"order_expired":  "expired",
}

// OrderAPI is the slice of the Tamara client the normalizer drives.
type OrderAPI interface {
	GetOrder(ctx context.Context, orderID string) (*Order, error)
	Authorize(ctx context.Context, orderID string) (*Order, error)
	Capture(ctx context.Context, orderID string, total decimal.Decimal) (*CaptureResult, error)
}

// TransactionStore looks up the local transaction early; Tamara's capture call
// needs the recorded amount, so the order cannot be settled without it.
type TransactionStore interface {
	FindByPaymentID(ctx context.Context, paymentID, gatewayName string) (*transaction.PaymentTransaction, error)
}

// Normalizer turns Tamara webhook and redirect notifications into a single
// reconciliation outcome. Approved orders are authorized and captured inline
// before the outcome is reported.
type Normalizer struct {
	client OrderAPI
	store  TransactionStore
	logger *slog.Logger
}

func NewNormalizer(client OrderAPI, store TransactionStore, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		client: client,
		store:  store,
		logger: logger,
	}
}

func (n *Normalizer) Normalize(ctx context.Context, notification gateway.Notification) gateway.Result {
	key := "orderId"
	if notification.Webhook {
		key = "order_id"
	}
	orderID := notification.Field(key)
	if orderID == "" {
		n.logger.Warn("tamara notification missing order id", "webhook", notification.Webhook)
		return gateway.NotMatchable()
	}

	reportedStatus := n.reportedStatus(notification)

	txn, err := n.store.FindByPaymentID(ctx, orderID, gateway.Tamara)
	if err != nil {
		n.logger.Warn("no local transaction for tamara order",
			"order_id", orderID,
			"reported_status", reportedStatus,
			"error", err)
		return gateway.Result{
			TransactionID:  orderID,
			ProviderStatus: reportedStatus,
			Matchable:      true,
		}
	}

	order, err := n.client.GetOrder(ctx, orderID)
	if err != nil {
		n.logger.Error("tamara order fetch failed", "order_id", orderID, "error", err)
		return n.failure(txn, orderID, reportedStatus)
	}

	switch order.Status {
	case OrderStatusApproved:
		return n.authorizeAndCapture(ctx, txn, orderID)
	case OrderStatusAuthorized:
		return n.capture(ctx, txn, orderID, order.Status)
	case OrderStatusFullyCaptured, OrderStatusPartiallyCaptured:
		return gateway.Result{
			TransactionID:  orderID,
			OrderReference: txn.TrackID,
			ProviderStatus: order.Status,
			IsSuccess:      true,
			Matchable:      true,
		}
	case OrderStatusNew:
		if reportedStatus == "canceled" {
			return gateway.Result{
				TransactionID:  orderID,
				OrderReference: txn.TrackID,
				ProviderStatus: "cancel",
				Cancelled:      true,
				Matchable:      true,
			}
		}
		return n.failure(txn, orderID, order.Status)
	default:
		return n.failure(txn, orderID, order.Status)
	}
}

// reportedStatus is the status claimed by the notification itself, before the
// order is re-fetched from Tamara.
func (n *Normalizer) reportedStatus(notification gateway.Notification) string {
	if notification.Webhook {
		if status, ok := webhookEventStatus[notification.Field("event_type")]; ok {
			return status
		}
		return "unknown"
	}
	if status := notification.Field("paymentStatus"); status != "" {
		return status
	}
	return "unknown"
}

// authorizeAndCapture walks an approved order through the two remaining
// settlement steps. Any refusal along the way is a failed payment, not an
// error.
func (n *Normalizer) authorizeAndCapture(ctx context.Context, txn *transaction.PaymentTransaction, orderID string) gateway.Result {
	auth, err := n.client.Authorize(ctx, orderID)
	if err != nil {
		n.logger.Error("tamara authorize failed", "order_id", orderID, "error", err)
		return n.failure(txn, orderID, OrderStatusApproved)
	}
	if auth.Status != OrderStatusAuthorised {
		n.logger.Warn("tamara authorize returned unexpected status",
			"order_id", orderID,
			"status", auth.Status)
		return n.failure(txn, orderID, auth.Status)
	}
	return n.capture(ctx, txn, orderID, auth.Status)
}

func (n *Normalizer) capture(ctx context.Context, txn *transaction.PaymentTransaction, orderID, priorStatus string) gateway.Result {
	result, err := n.client.Capture(ctx, orderID, txn.Amount)
	if err != nil {
		n.logger.Error("tamara capture failed", "order_id", orderID, "error", err)
		return n.failure(txn, orderID, priorStatus)
	}

	status := result.OrderStatus
	if status == "" {
		status = OrderStatusFullyCaptured
	}
	return gateway.Result{
		TransactionID:  orderID,
		OrderReference: txn.TrackID,
		ProviderStatus: status,
		IsSuccess:      true,
		Matchable:      true,
	}
}

func (n *Normalizer) failure(txn *transaction.PaymentTransaction, orderID, status string) gateway.Result {
	return gateway.Result{
		TransactionID:  orderID,
		OrderReference: txn.TrackID,
		ProviderStatus: status,
		Matchable:      true,
	}
}
