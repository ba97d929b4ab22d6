package payment

import (
	"context"
	"encoding/json"

	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
)

// RepositoryAPI is the persistence surface shared by the checkout service and
// the reconciliation engine. Mutating operations are conditional updates that
// report whether a row actually changed, so concurrent deliveries never
// double-apply a transition.
type RepositoryAPI interface {
	Create(ctx context.Context, txn *transaction.PaymentTransaction) error
	FindByTrackID(ctx context.Context, trackID string) (*transaction.PaymentTransaction, error)
	FindByPaymentID(ctx context.Context, paymentID, gatewayName string) (*transaction.PaymentTransaction, error)
	FindMatchable(ctx context.Context, trackID, paymentID, gatewayName string) (*transaction.PaymentTransaction, error)
	BackfillPaymentID(ctx context.Context, id int64, paymentID string) (bool, error)
	CompareAndSetStatus(ctx context.Context, id int64, expected []string, newStatus string, response, gatewayResponse json.RawMessage) (bool, error)
}
