package transaction

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction statuses. A transaction is matchable by incoming gateway data
// only while pending or failed; success and cancelled are terminal records.
const (
	StatusPending   = "pending"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
	StatusRefunded  = "refunded"
)

const (
	GatewayTabby  = "tabby"
	GatewayTamara = "tamara"
)

var ErrNotFound = errors.New("payment transaction not found")

// PaymentTransaction is the locally tracked record of one payment attempt
// with a BNPL provider. TrackID is the merchant reference used as the primary
// matching key; PaymentID is the provider-assigned identifier, nullable until
// the provider supplies one and then filled exactly once.
type PaymentTransaction struct {
	ID              int64           `gorm:"primaryKey"`
	PayableType     string          `gorm:"column:payable_type"`
	PayableID       int64           `gorm:"column:payable_id"`
	TrackID         string          `gorm:"column:track_id;not null;uniqueIndex"`
	PaymentID       *string         `gorm:"column:payment_id"`
	Amount          decimal.Decimal `gorm:"column:amount;type:numeric(10,2)"`
	Status          string          `gorm:"column:status;default:pending"`
	Gateway         string          `gorm:"column:payment_gateway"`
	Response        json.RawMessage `gorm:"column:response;type:jsonb"`
	GatewayResponse json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;default:now()"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// MatchableStatuses are the statuses in which a transaction may still be
// matched and finalized by an incoming callback or webhook. failed is included
// so a delivery retry can recover a transaction whose capture previously
// dropped.
func MatchableStatuses() []string {
	return []string{StatusPending, StatusFailed}
}

func (t *PaymentTransaction) IsTerminal() bool {
	switch t.Status {
	case StatusSuccess, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// HasPaymentID reports whether the provider identifier has been recorded.
func (t *PaymentTransaction) HasPaymentID() bool {
	return t.PaymentID != nil && *t.PaymentID != ""
}
