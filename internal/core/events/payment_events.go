package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentSucceeded = "payment.succeeded"
	EventTypePaymentFailed    = "payment.failed"
	EventTypePaymentCancelled = "payment.cancelled"
)

type PaymentSucceededEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	TrackID       string `json:"track_id"`
	PaymentID     string `json:"payment_id"`
	Gateway       string `json:"gateway"`
	Amount        string `json:"amount"`
}

func NewPaymentSucceededEvent(transactionID int64, trackID, paymentID, gateway, amount string) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentSucceeded,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"track_id":       trackID,
				"payment_id":     paymentID,
				"gateway":        gateway,
				"amount":         amount,
			},
		},
		TransactionID: transactionID,
		TrackID:       trackID,
		PaymentID:     paymentID,
		Gateway:       gateway,
		Amount:        amount,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	TrackID       string `json:"track_id"`
	Gateway       string `json:"gateway"`
	Reason        string `json:"reason"`
}

func NewPaymentFailedEvent(transactionID int64, trackID, gateway, reason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"track_id":       trackID,
				"gateway":        gateway,
				"reason":         reason,
			},
		},
		TransactionID: transactionID,
		TrackID:       trackID,
		Gateway:       gateway,
		Reason:        reason,
	}
}

type PaymentCancelledEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	TrackID       string `json:"track_id"`
	Gateway       string `json:"gateway"`
}

func NewPaymentCancelledEvent(transactionID int64, trackID, gateway string) *PaymentCancelledEvent {
	return &PaymentCancelledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCancelled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"track_id":       trackID,
				"gateway":        gateway,
			},
		},
		TransactionID: transactionID,
		TrackID:       trackID,
		Gateway:       gateway,
	}
}
