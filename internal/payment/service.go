package payment

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
)

// Service opens checkout sessions, records the pending transactions the
// reconciliation engine later settles, and drives refunds.
type Service struct {
	repo           RepositoryAPI
	providers      map[string]Provider
	defaultGateway string
	logger         *slog.Logger
}

func NewService(repo RepositoryAPI, defaultGateway string, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		providers:      make(map[string]Provider),
		defaultGateway: defaultGateway,
		logger:         logger,
	}
}

func (s *Service) RegisterProvider(name string, provider Provider) {
	s.providers[name] = provider
}

// CreateCheckout opens a provider session and records a pending transaction
// keyed by the merchant track id. The provider payment id is stored right away
// when the provider assigns one at session creation.
func (s *Service) CreateCheckout(ctx context.Context, dto *CreateCheckoutDTO) (*CheckoutResponseDTO, error) {
	if dto.Gateway == "" {
		dto.Gateway = s.defaultGateway
	}
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	provider, ok := s.providers[dto.Gateway]
	if !ok {
		return nil, apperrors.ErrGatewayUnsupported
	}

	trackID := dto.TrackID
	if trackID == "" {
		trackID = uuid.NewString()
	}

	session, err := provider.CreateCheckout(ctx, dto, trackID)
	if err != nil {
		s.logger.Error("checkout session creation failed",
			"gateway", dto.Gateway,
			"track_id", trackID,
			"error", err)
		return nil, apperrors.NewExternalError("checkout session creation failed", err)
	}

	txn := &transaction.PaymentTransaction{
		PayableType: dto.PayableType,
		PayableID:   dto.PayableID,
		TrackID:     trackID,
		Amount:      dto.Amount,
		Status:      transaction.StatusPending,
		Gateway:     dto.Gateway,
	}
	if session.PaymentID != "" {
		paymentID := session.PaymentID
		txn.PaymentID = &paymentID
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		s.logger.Error("failed to record pending transaction",
			"track_id", trackID,
			"gateway", dto.Gateway,
			"error", err)
		return nil, apperrors.NewInternalError("failed to record transaction", err)
	}

	s.logger.Info("checkout created",
		"track_id", trackID,
		"gateway", dto.Gateway,
		"payment_id", session.PaymentID,
		"amount", dto.Amount.StringFixed(2))

	return &CheckoutResponseDTO{
		TrackID:     trackID,
		Gateway:     dto.Gateway,
		PaymentID:   session.PaymentID,
		Amount:      dto.Amount,
		Status:      transaction.StatusPending,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (s *Service) GetByTrackID(ctx context.Context, trackID string) (*TransactionDTO, error) {
	txn, err := s.repo.FindByTrackID(ctx, trackID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewInternalError("failed to load transaction", err)
	}
	return toTransactionDTO(txn), nil
}

// Refund refunds a settled transaction through its provider and moves the
// status success to refunded. A transaction already refunded is answered
// idempotently without a second provider call.
func (s *Service) Refund(ctx context.Context, trackID string, dto *RefundRequestDTO) (*TransactionDTO, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.repo.FindByTrackID(ctx, trackID)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.NewInternalError("failed to load transaction", err)
	}

	if txn.Status == transaction.StatusRefunded {
		s.logger.Info("refund: transaction already refunded", "track_id", trackID)
		return toTransactionDTO(txn), nil
	}
	if txn.Status != transaction.StatusSuccess || !txn.HasPaymentID() {
		return nil, apperrors.ErrRefundNotAllowed
	}

	amount := txn.Amount
	if dto.Amount != nil {
		if dto.Amount.GreaterThan(txn.Amount) {
			return nil, apperrors.NewValidationFieldError("amount", "refund amount exceeds transaction amount", apperrors.ErrCodeInvalidAmount)
		}
		amount = *dto.Amount
	}

	provider, ok := s.providers[txn.Gateway]
	if !ok {
		return nil, apperrors.ErrGatewayUnsupported
	}

	if err := provider.Refund(ctx, *txn.PaymentID, amount, dto.Comment); err != nil {
		s.logger.Error("provider refund failed",
			"track_id", trackID,
			"gateway", txn.Gateway,
			"payment_id", *txn.PaymentID,
			"error", err)
		return nil, apperrors.NewExternalError("provider refund failed", err)
	}

	audit, _ := json.Marshal(map[string]string{
		"refund_amount":  amount.StringFixed(2),
		"refund_comment": dto.Comment,
	})
	updated, err := s.repo.CompareAndSetStatus(ctx, txn.ID, []string{transaction.StatusSuccess}, transaction.StatusRefunded, audit, nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to persist refund", err)
	}
	if !updated {
		// Lost a race against a concurrent refund of the same row.
		current, err := s.repo.FindByTrackID(ctx, trackID)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to reload transaction", err)
		}
		return toTransactionDTO(current), nil
	}

	s.logger.Info("refund completed",
		"track_id", trackID,
		"gateway", txn.Gateway,
		"amount", amount.StringFixed(2))

	txn.Status = transaction.StatusRefunded
	return toTransactionDTO(txn), nil
}

// SupportedGateways lists the providers registered for checkout.
func (s *Service) SupportedGateways() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

func toTransactionDTO(txn *transaction.PaymentTransaction) *TransactionDTO {
	dto := &TransactionDTO{
		TrackID:   txn.TrackID,
		Gateway:   txn.Gateway,
		Amount:    txn.Amount,
		Status:    txn.Status,
		CreatedAt: txn.CreatedAt.Format(time.RFC3339),
		UpdatedAt: txn.UpdatedAt.Format(time.RFC3339),
	}
	if txn.HasPaymentID() {
		dto.PaymentID = *txn.PaymentID
	}
	return dto
}
