package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
	"github.com/mlquarizm/payment-gateway/internal/core/events"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
)

// WebhookVerifier authenticates a webhook delivery before its payload is
// trusted.
type WebhookVerifier interface {
	Verify(gatewayName string, header http.Header, body []byte, query url.Values) bool
}

// Engine reconciles inbound provider notifications against locally recorded
// transactions. All status transitions go through compare-and-set on the
// matchable statuses, so duplicate and racing deliveries settle each
// transaction at most once.
type Engine struct {
	repo     RepositoryAPI
	registry *gateway.Registry
	verifier WebhookVerifier
	events   *events.EventBus
	logger   *slog.Logger
}

func NewEngine(repo RepositoryAPI, registry *gateway.Registry, verifier WebhookVerifier, bus *events.EventBus, logger *slog.Logger) *Engine {
	return &Engine{
		repo:     repo,
		registry: registry,
		verifier: verifier,
		events:   bus,
		logger:   logger,
	}
}

// Reconcile runs one notification through verification, normalization,
// matching and the status transition. Provider-side refusals come back as
// negative Outcomes; only store faults surface as errors.
func (e *Engine) Reconcile(ctx context.Context, gatewayName string, n gateway.Notification) (Outcome, error) {
	normalizer, ok := e.registry.Get(gatewayName)
	if !ok {
		e.logger.Warn("reconcile: unsupported gateway", "gateway", gatewayName)
		return Outcome{Kind: OutcomeInvalid, Gateway: gatewayName, Reason: "unsupported gateway"}, nil
	}

	if n.Webhook && !e.verifier.Verify(gatewayName, n.Header, n.RawBody, n.Query) {
		e.logger.Warn("reconcile: webhook verification failed", "gateway", gatewayName)
		return Outcome{Kind: OutcomeInvalid, Gateway: gatewayName, Reason: "signature verification failed"}, nil
	}

	result := normalizer.Normalize(ctx, n)
	if !result.Matchable {
		return Outcome{Kind: OutcomeInvalid, Gateway: gatewayName, Reason: "notification carries no usable identifier"}, nil
	}

	txn, err := e.match(ctx, gatewayName, result)
	if err != nil {
		if errors.Is(err, transaction.ErrNotFound) {
			e.logger.Warn("reconcile: no matching transaction",
				"gateway", gatewayName,
				"payment_id", result.TransactionID,
				"order_reference", result.OrderReference)
			return Outcome{
				Kind:           OutcomeNotFound,
				Gateway:        gatewayName,
				PaymentID:      result.TransactionID,
				ProviderStatus: result.ProviderStatus,
			}, nil
		}
		return Outcome{}, fmt.Errorf("match transaction: %w", err)
	}

	// Terminal rows are never reopened and no provider state is written.
	// An agreeing duplicate gets the settled outcome back; a conflicting
	// report is answered not-found.
	if txn.Status != transaction.StatusPending && txn.Status != transaction.StatusFailed {
		e.logger.Info("reconcile: transaction already settled",
			"track_id", txn.TrackID,
			"status", txn.Status)
		return e.settledOutcome(txn, result), nil
	}

	if result.TransactionID != "" {
		if outcome, conflict, err := e.backfillPaymentID(ctx, txn, result); err != nil {
			return Outcome{}, err
		} else if conflict {
			return outcome, nil
		}
	}

	return e.applyResult(ctx, txn, gatewayName, n, result)
}

// match prefers the provider-supplied merchant reference against track_id and
// falls back to the provider payment id. Only pending and failed rows are
// candidates; a terminal row found by either key is returned so the caller
// can answer idempotently.
func (e *Engine) match(ctx context.Context, gatewayName string, result gateway.Result) (*transaction.PaymentTransaction, error) {
	txn, err := e.repo.FindMatchable(ctx, result.OrderReference, result.TransactionID, gatewayName)
	if err == nil {
		return txn, nil
	}
	if !errors.Is(err, transaction.ErrNotFound) {
		return nil, err
	}

	if result.OrderReference != "" {
		if txn, err := e.repo.FindByTrackID(ctx, result.OrderReference); err == nil && txn.Gateway == gatewayName {
			return txn, nil
		}
	}
	if result.TransactionID != "" {
		if txn, err := e.repo.FindByPaymentID(ctx, result.TransactionID, gatewayName); err == nil {
			return txn, nil
		}
	}
	return nil, transaction.ErrNotFound
}

// backfillPaymentID records the provider identifier exactly once. A matched
// row that already carries a different payment id is an integrity violation
// and aborts the request.
func (e *Engine) backfillPaymentID(ctx context.Context, txn *transaction.PaymentTransaction, result gateway.Result) (Outcome, bool, error) {
	if txn.HasPaymentID() {
		if *txn.PaymentID != result.TransactionID {
			e.logger.Error("reconcile: payment id conflict",
				"track_id", txn.TrackID,
				"recorded", *txn.PaymentID,
				"incoming", result.TransactionID)
			return Outcome{
				Kind:      OutcomeInvalid,
				TrackID:   txn.TrackID,
				Gateway:   txn.Gateway,
				PaymentID: result.TransactionID,
				Reason:    apperrors.ErrPaymentIDConflict.Message,
			}, true, nil
		}
		return Outcome{}, false, nil
	}

	updated, err := e.repo.BackfillPaymentID(ctx, txn.ID, result.TransactionID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("backfill payment id: %w", err)
	}
	if updated {
		paymentID := result.TransactionID
		txn.PaymentID = &paymentID
		return Outcome{}, false, nil
	}

	// Lost the backfill race; reload and re-check for a conflicting value.
	current, err := e.repo.FindByTrackID(ctx, txn.TrackID)
	if err != nil {
		return Outcome{}, false, fmt.Errorf("reload after backfill race: %w", err)
	}
	*txn = *current
	if txn.HasPaymentID() && *txn.PaymentID != result.TransactionID {
		return Outcome{
			Kind:      OutcomeInvalid,
			TrackID:   txn.TrackID,
			Gateway:   txn.Gateway,
			PaymentID: result.TransactionID,
			Reason:    apperrors.ErrPaymentIDConflict.Message,
		}, true, nil
	}
	return Outcome{}, false, nil
}

func (e *Engine) applyResult(ctx context.Context, txn *transaction.PaymentTransaction, gatewayName string, n gateway.Notification, result gateway.Result) (Outcome, error) {
	rawPayload := n.RawBody
	if len(rawPayload) == 0 && len(n.Payload) > 0 {
		rawPayload, _ = json.Marshal(n.Payload)
	}
	normalized, _ := json.Marshal(result)

	newStatus := transaction.StatusFailed
	if result.IsSuccess {
		newStatus = transaction.StatusSuccess
	}

	updated, err := e.repo.CompareAndSetStatus(ctx, txn.ID, transaction.MatchableStatuses(), newStatus, rawPayload, normalized)
	if err != nil {
		return Outcome{}, fmt.Errorf("persist status: %w", err)
	}
	if !updated {
		// Another delivery won the transition. Report whatever it settled.
		current, err := e.repo.FindByTrackID(ctx, txn.TrackID)
		if err != nil {
			return Outcome{}, fmt.Errorf("reload after status race: %w", err)
		}
		e.logger.Info("reconcile: lost status transition race",
			"track_id", txn.TrackID,
			"settled_status", current.Status)
		return e.settledOutcome(current, result), nil
	}

	outcome := Outcome{
		TrackID:        txn.TrackID,
		PaymentID:      result.TransactionID,
		Gateway:        gatewayName,
		ProviderStatus: result.ProviderStatus,
	}

	switch {
	case result.IsSuccess:
		outcome.Kind = OutcomeSuccess
		e.events.Publish(ctx, events.NewPaymentSucceededEvent(txn.ID, txn.TrackID, result.TransactionID, gatewayName, txn.Amount.StringFixed(2)))
	case result.Cancelled:
		outcome.Kind = OutcomeCancelled
		e.events.Publish(ctx, events.NewPaymentCancelledEvent(txn.ID, txn.TrackID, gatewayName))
	default:
		outcome.Kind = OutcomeFailed
		outcome.Reason = result.ProviderStatus
		e.events.Publish(ctx, events.NewPaymentFailedEvent(txn.ID, txn.TrackID, gatewayName, result.ProviderStatus))
	}

	e.logger.Info("reconcile: transaction settled",
		"track_id", txn.TrackID,
		"payment_id", result.TransactionID,
		"gateway", gatewayName,
		"outcome", outcome.Kind,
		"provider_status", result.ProviderStatus)

	return outcome, nil
}

// settledOutcome answers a delivery that found the row already terminal. Only
// a duplicate whose disposition agrees with the settled status repeats the
// settled outcome; a report that disputes it is answered not-found.
func (e *Engine) settledOutcome(txn *transaction.PaymentTransaction, result gateway.Result) Outcome {
	outcome := Outcome{
		TrackID:        txn.TrackID,
		Gateway:        txn.Gateway,
		ProviderStatus: result.ProviderStatus,
	}
	if txn.HasPaymentID() {
		outcome.PaymentID = *txn.PaymentID
	}

	switch txn.Status {
	case transaction.StatusSuccess, transaction.StatusRefunded:
		if !result.IsSuccess {
			outcome.Kind = OutcomeNotFound
			return outcome
		}
		outcome.Kind = OutcomeSuccess
	case transaction.StatusCancelled:
		if !result.Cancelled {
			outcome.Kind = OutcomeNotFound
			return outcome
		}
		outcome.Kind = OutcomeCancelled
	default:
		if result.IsSuccess || result.Cancelled {
			outcome.Kind = OutcomeNotFound
			return outcome
		}
		outcome.Kind = OutcomeFailed
		outcome.Reason = result.ProviderStatus
	}
	return outcome
}
