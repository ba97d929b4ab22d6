package payment

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi"

	"github.com/mlquarizm/payment-gateway/internal/gateway"
	"github.com/mlquarizm/payment-gateway/internal/transport"
)

// ReconcilerAPI is the engine surface the HTTP layer drives.
type ReconcilerAPI interface {
	Reconcile(ctx context.Context, gatewayName string, n gateway.Notification) (Outcome, error)
}

// RedirectConfig holds the host pages shoppers land on after a callback.
type RedirectConfig struct {
	SuccessURL string
	CancelURL  string
	ErrorURL   string
}

// WebhookHandler terminates the two provider-facing surfaces: server-to-server
// webhooks and browser redirect callbacks. Webhooks always answer 200 so
// providers do not retry deliveries we have already judged; callbacks answer
// with a redirect to the host's result pages.
type WebhookHandler struct {
	*transport.BaseHandler
	engine    ReconcilerAPI
	redirects RedirectConfig
	logger    *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, engine ReconcilerAPI, redirects RedirectConfig, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		engine:      engine,
		redirects:   redirects,
		logger:      logger,
	}
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleWebhook processes POST /webhooks/payment/{gateway}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")

	notification, err := buildNotification(r, true)
	if err != nil {
		h.logger.Error("webhook: failed to read request", "gateway", gatewayName, "error", err)
		h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "malformed payload"})
		return
	}

	outcome, err := h.engine.Reconcile(r.Context(), gatewayName, notification)
	if err != nil {
		h.logger.Error("webhook: reconciliation error", "gateway", gatewayName, "error", err)
		h.WriteJSON(w, http.StatusOK, webhookResponse{Status: "error", Message: "processing failed"})
		return
	}

	h.logger.Info("webhook processed",
		"gateway", gatewayName,
		"outcome", outcome.Kind,
		"track_id", outcome.TrackID)

	h.WriteJSON(w, http.StatusOK, webhookResponse{
		Status:  string(outcome.Kind),
		Message: "webhook processed",
	})
}

// HandleCallback processes GET|POST /payment/callback/{gateway} and redirects
// the shopper to the page matching the outcome.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	gatewayName := chi.URLParam(r, "gateway")

	notification, err := buildNotification(r, false)
	if err != nil {
		h.logger.Error("callback: failed to read request", "gateway", gatewayName, "error", err)
		h.redirect(w, r, h.redirects.ErrorURL, gatewayName, Outcome{Kind: OutcomeInvalid})
		return
	}

	outcome, err := h.engine.Reconcile(r.Context(), gatewayName, notification)
	if err != nil {
		h.logger.Error("callback: reconciliation error", "gateway", gatewayName, "error", err)
		h.redirect(w, r, h.redirects.ErrorURL, gatewayName, Outcome{Kind: OutcomeFailed})
		return
	}

	h.logger.Info("callback processed",
		"gateway", gatewayName,
		"outcome", outcome.Kind,
		"track_id", outcome.TrackID)

	target := h.redirects.ErrorURL
	switch {
	case outcome.Succeeded():
		target = h.redirects.SuccessURL
	case outcome.Kind == OutcomeCancelled:
		target = h.redirects.CancelURL
	}
	h.redirect(w, r, target, gatewayName, outcome)
}

func (h *WebhookHandler) redirect(w http.ResponseWriter, r *http.Request, target, gatewayName string, outcome Outcome) {
	u, err := url.Parse(target)
	if err != nil || target == "" {
		h.WriteJSON(w, http.StatusOK, webhookResponse{Status: string(outcome.Kind), Message: "callback processed"})
		return
	}

	q := u.Query()
	q.Set("status", string(outcome.Kind))
	q.Set("gateway", gatewayName)
	if outcome.TrackID != "" {
		q.Set("track_id", outcome.TrackID)
	}
	u.RawQuery = q.Encode()

	http.Redirect(w, r, u.String(), http.StatusFound)
}

// buildNotification assembles the raw material for normalization: the decoded
// JSON body merged with query parameters, plus the verbatim body for
// signature checks.
func buildNotification(r *http.Request, webhook bool) (gateway.Notification, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return gateway.Notification{}, err
		}
	}

	payload := make(map[string]any)
	if len(body) > 0 {
		// Non-JSON bodies are tolerated; the payload then carries only
		// query parameters.
		_ = json.Unmarshal(body, &payload)
	}
	for key, values := range r.URL.Query() {
		if _, exists := payload[key]; !exists && len(values) > 0 {
			payload[key] = values[0]
		}
	}

	return gateway.Notification{
		Payload: payload,
		RawBody: body,
		Header:  r.Header,
		Query:   r.URL.Query(),
		Webhook: webhook,
	}, nil
}
