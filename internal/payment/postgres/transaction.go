package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
	paymentpkg "github.com/mlquarizm/payment-gateway/internal/payment"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &TransactionRepository{
		db: db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *transaction.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *TransactionRepository) FindByTrackID(ctx context.Context, trackID string) (*transaction.PaymentTransaction, error) {
	var txn transaction.PaymentTransaction
	err := r.db.WithContext(ctx).Where("track_id = ?", trackID).First(&txn).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &txn, nil
}

func (r *TransactionRepository) FindByPaymentID(ctx context.Context, paymentID, gatewayName string) (*transaction.PaymentTransaction, error) {
	var txn transaction.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("payment_id = ? AND payment_gateway = ?", paymentID, gatewayName).
		First(&txn).Error
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &txn, nil
}

// FindMatchable looks up a still-settleable transaction by merchant reference
// or provider payment id. Track id matches are preferred when both keys hit
// different rows.
func (r *TransactionRepository) FindMatchable(ctx context.Context, trackID, paymentID, gatewayName string) (*transaction.PaymentTransaction, error) {
	if trackID != "" {
		var txn transaction.PaymentTransaction
		err := r.db.WithContext(ctx).
			Where("track_id = ? AND payment_gateway = ? AND status IN ?", trackID, gatewayName, transaction.MatchableStatuses()).
			First(&txn).Error
		if err == nil {
			return &txn, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if paymentID != "" {
		var txn transaction.PaymentTransaction
		err := r.db.WithContext(ctx).
			Where("payment_id = ? AND payment_gateway = ? AND status IN ?", paymentID, gatewayName, transaction.MatchableStatuses()).
			First(&txn).Error
		if err == nil {
			return &txn, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	return nil, transaction.ErrNotFound
}

// BackfillPaymentID writes the provider identifier only when none is recorded
// yet. The conditional update keeps the field write-once under concurrent
// deliveries.
func (r *TransactionRepository) BackfillPaymentID(ctx context.Context, id int64, paymentID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&transaction.PaymentTransaction{}).
		Where("id = ? AND (payment_id IS NULL OR payment_id = '')", id).
		Updates(map[string]interface{}{
			"payment_id": paymentID,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CompareAndSetStatus transitions the status only when the row still holds
// one of the expected statuses. The rows-affected count tells the caller
// whether it won the transition.
func (r *TransactionRepository) CompareAndSetStatus(ctx context.Context, id int64, expected []string, newStatus string, response, gatewayResponse json.RawMessage) (bool, error) {
	updates := map[string]interface{}{
		"status":     newStatus,
		"updated_at": time.Now(),
	}
	if response != nil {
		updates["response"] = response
	}
	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}

	result := r.db.WithContext(ctx).
		Model(&transaction.PaymentTransaction{}).
		Where("id = ? AND status IN ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return transaction.ErrNotFound
	}
	return err
}
