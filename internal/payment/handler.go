package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/mlquarizm/payment-gateway/internal/transport"
	"github.com/mlquarizm/payment-gateway/pkg/logger"
)

type ServiceAPI interface {
	CreateCheckout(ctx context.Context, dto *CreateCheckoutDTO) (*CheckoutResponseDTO, error)
	GetByTrackID(ctx context.Context, trackID string) (*TransactionDTO, error)
	Refund(ctx context.Context, trackID string, dto *RefundRequestDTO) (*TransactionDTO, error)
	SupportedGateways() []string
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.Default()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	var dto CreateCheckoutDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateCheckout: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.CreateCheckout(r.Context(), &dto)
	if err != nil {
		h.Logger.Error("CreateCheckout: service error", "error", err, "gateway", dto.Gateway)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreateCheckout: checkout session opened",
		"track_id", resp.TrackID,
		"gateway", resp.Gateway)

	h.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string][]string{
		"gateways": h.Service.SupportedGateways(),
	})
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if trackID == "" {
		h.WriteError(w, http.StatusBadRequest, "track id is required")
		return
	}

	txn, err := h.Service.GetByTrackID(r.Context(), trackID)
	if err != nil {
		h.Logger.Error("GetTransaction: service error", "error", err, "track_id", trackID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, txn)
}

func (h *Handler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if trackID == "" {
		h.WriteError(w, http.StatusBadRequest, "track id is required")
		return
	}

	var dto RefundRequestDTO
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			h.Logger.Error("RefundTransaction: invalid request body", "error", err, "track_id", trackID)
			h.WriteError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	txn, err := h.Service.Refund(r.Context(), trackID, &dto)
	if err != nil {
		h.Logger.Error("RefundTransaction: service error", "error", err, "track_id", trackID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("RefundTransaction: refund processed",
		"track_id", trackID,
		"status", txn.Status)

	h.WriteJSON(w, http.StatusOK, txn)
}
