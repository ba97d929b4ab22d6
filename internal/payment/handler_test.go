package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
	"github.com/mlquarizm/payment-gateway/internal/payment"
	"github.com/mlquarizm/payment-gateway/internal/transport"
	"github.com/mlquarizm/payment-gateway/pkg/logger"
)

type mockService struct {
	checkoutResp *payment.CheckoutResponseDTO
	checkoutErr  error
	txn          *payment.TransactionDTO
	getErr       error
	refundErr    error

	lastRefundDTO *payment.RefundRequestDTO
}

func (m *mockService) CreateCheckout(ctx context.Context, dto *payment.CreateCheckoutDTO) (*payment.CheckoutResponseDTO, error) {
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	return m.checkoutResp, nil
}

func (m *mockService) GetByTrackID(ctx context.Context, trackID string) (*payment.TransactionDTO, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.txn, nil
}

func (m *mockService) Refund(ctx context.Context, trackID string, dto *payment.RefundRequestDTO) (*payment.TransactionDTO, error) {
	m.lastRefundDTO = dto
	if m.refundErr != nil {
		return nil, m.refundErr
	}
	return m.txn, nil
}

func (m *mockService) SupportedGateways() []string {
	return []string{gateway.Tabby, gateway.Tamara}
}

type mockReconciler struct {
	outcome payment.Outcome
	err     error

	lastGateway      string
	lastNotification gateway.Notification
}

func (m *mockReconciler) Reconcile(ctx context.Context, gatewayName string, n gateway.Notification) (payment.Outcome, error) {
	m.lastGateway = gatewayName
	m.lastNotification = n
	return m.outcome, m.err
}

var _ = Describe("Handler", func() {
	var (
		service  *mockService
		handler  *payment.Handler
		router   *chi.Mux
		recorder *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		service = &mockService{
			checkoutResp: &payment.CheckoutResponseDTO{
				TrackID:     "TRK-1",
				Gateway:     "tabby",
				Amount:      decimal.NewFromFloat(150.00),
				Status:      "pending",
				CheckoutURL: "https://checkout.example/session",
			},
			txn: &payment.TransactionDTO{
				TrackID: "TRK-1",
				Gateway: "tabby",
				Amount:  decimal.NewFromFloat(150.00),
				Status:  "success",
			},
		}
		handler = payment.NewHandler(service)

		router = chi.NewRouter()
		router.Post("/payments", handler.CreateCheckout)
		router.Get("/payments/gateways", handler.ListGateways)
		router.Get("/payments/{trackID}", handler.GetTransaction)
		router.Post("/payments/{trackID}/refund", handler.RefundTransaction)

		recorder = httptest.NewRecorder()
	})

	Describe("CreateCheckout", func() {
		It("answers 201 with the session", func() {
			body, _ := json.Marshal(map[string]any{"gateway": "tabby", "amount": "150.00"})
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBuffer(body))

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusCreated))

			var resp payment.CheckoutResponseDTO
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.CheckoutURL).To(Equal("https://checkout.example/session"))
		})

		It("answers 400 for a malformed body", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBufferString("{not json"))

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps service errors onto their HTTP status", func() {
			service.checkoutErr = apperrors.ErrGatewayUnsupported
			body, _ := json.Marshal(map[string]any{"gateway": "stripe"})
			req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewBuffer(body))

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(apperrors.ErrGatewayUnsupported.StatusCode))
		})
	})

	Describe("GetTransaction", func() {
		It("answers 200 with the transaction", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/TRK-1", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var resp payment.TransactionDTO
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.TrackID).To(Equal("TRK-1"))
		})

		It("answers 404 for unknown transactions", func() {
			service.getErr = apperrors.ErrTransactionNotFound
			req := httptest.NewRequest(http.MethodGet, "/payments/TRK-missing", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("ListGateways", func() {
		It("answers 200 with the registered providers", func() {
			req := httptest.NewRequest(http.MethodGet, "/payments/gateways", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var resp map[string][]string
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["gateways"]).To(ConsistOf(gateway.Tabby, gateway.Tamara))
		})
	})

	Describe("RefundTransaction", func() {
		It("accepts an empty body as a full refund", func() {
			req := httptest.NewRequest(http.MethodPost, "/payments/TRK-1/refund", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(service.lastRefundDTO).NotTo(BeNil())
			Expect(service.lastRefundDTO.Amount).To(BeNil())
		})

		It("passes a partial amount through to the service", func() {
			body, _ := json.Marshal(map[string]any{"amount": "50.00", "comment": "partial"})
			req := httptest.NewRequest(http.MethodPost, "/payments/TRK-1/refund", bytes.NewBuffer(body))

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(service.lastRefundDTO.Amount).NotTo(BeNil())
			Expect(service.lastRefundDTO.Amount.StringFixed(2)).To(Equal("50.00"))
			Expect(service.lastRefundDTO.Comment).To(Equal("partial"))
		})

		It("maps refund refusals onto their HTTP status", func() {
			service.refundErr = apperrors.ErrRefundNotAllowed
			req := httptest.NewRequest(http.MethodPost, "/payments/TRK-1/refund", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(apperrors.ErrRefundNotAllowed.StatusCode))
		})
	})
})

var _ = Describe("WebhookHandler", func() {
	var (
		reconciler *mockReconciler
		handler    *payment.WebhookHandler
		router     *chi.Mux
		recorder   *httptest.ResponseRecorder
	)

	redirects := payment.RedirectConfig{
		SuccessURL: "https://shop.example/payment/success",
		CancelURL:  "https://shop.example/payment/cancel",
		ErrorURL:   "https://shop.example/payment/error",
	}

	BeforeEach(func() {
		reconciler = &mockReconciler{}
		handler = payment.NewWebhookHandler(transport.NewBaseHandler(logger.Default()), reconciler, redirects, logger.Default())

		router = chi.NewRouter()
		router.Post("/webhooks/payment/{gateway}", handler.HandleWebhook)
		router.Get("/payment/callback/{gateway}", handler.HandleCallback)

		recorder = httptest.NewRecorder()
	})

	Describe("HandleWebhook", func() {
		It("answers 200 with the outcome and hands the raw body to the engine", func() {
			reconciler.outcome = payment.Outcome{Kind: payment.OutcomeSuccess, TrackID: "TRK-1"}
			body := []byte(`{"id":"pay_1","status":"captured"}`)
			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/tabby", bytes.NewBuffer(body))
			req.Header.Set("X-Tabby-Signature", "abc123")

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(reconciler.lastGateway).To(Equal("tabby"))
			Expect(reconciler.lastNotification.Webhook).To(BeTrue())
			Expect(reconciler.lastNotification.RawBody).To(Equal(body))
			Expect(reconciler.lastNotification.Header.Get("X-Tabby-Signature")).To(Equal("abc123"))

			var resp map[string]string
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal(string(payment.OutcomeSuccess)))
		})

		It("answers 200 even when reconciliation errors, so the provider does not retry blindly", func() {
			reconciler.err = context.DeadlineExceeded
			req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/tabby", bytes.NewBufferString(`{}`))

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var resp map[string]string
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal("error"))
		})
	})

	Describe("HandleCallback", func() {
		It("redirects a successful payment to the success page", func() {
			reconciler.outcome = payment.Outcome{Kind: payment.OutcomeSuccess, TrackID: "TRK-1"}
			req := httptest.NewRequest(http.MethodGet, "/payment/callback/tamara?orderId=ord_1&paymentStatus=approved", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusFound))
			location := recorder.Header().Get("Location")
			Expect(location).To(HavePrefix(redirects.SuccessURL))
			Expect(location).To(ContainSubstring("status=success"))
			Expect(location).To(ContainSubstring("track_id=TRK-1"))
			Expect(location).To(ContainSubstring("gateway=tamara"))
		})

		It("merges query parameters into the payload for the normalizer", func() {
			req := httptest.NewRequest(http.MethodGet, "/payment/callback/tamara?orderId=ord_1&paymentStatus=approved", nil)

			router.ServeHTTP(recorder, req)

			Expect(reconciler.lastNotification.Webhook).To(BeFalse())
			Expect(reconciler.lastNotification.Payload["orderId"]).To(Equal("ord_1"))
			Expect(reconciler.lastNotification.Payload["paymentStatus"]).To(Equal("approved"))
		})

		It("redirects a cancelled payment to the cancel page", func() {
			reconciler.outcome = payment.Outcome{Kind: payment.OutcomeCancelled, TrackID: "TRK-1"}
			req := httptest.NewRequest(http.MethodGet, "/payment/callback/tamara?orderId=ord_1", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusFound))
			Expect(recorder.Header().Get("Location")).To(HavePrefix(redirects.CancelURL))
		})

		It("redirects a failed payment to the error page", func() {
			reconciler.outcome = payment.Outcome{Kind: payment.OutcomeFailed, TrackID: "TRK-1"}
			req := httptest.NewRequest(http.MethodGet, "/payment/callback/tabby?payment_id=pay_1", nil)

			router.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusFound))
			Expect(recorder.Header().Get("Location")).To(HavePrefix(redirects.ErrorURL))
		})

		It("answers JSON when no redirect target is configured", func() {
			bare := payment.NewWebhookHandler(transport.NewBaseHandler(logger.Default()), reconciler, payment.RedirectConfig{}, logger.Default())
			bareRouter := chi.NewRouter()
			bareRouter.Get("/payment/callback/{gateway}", bare.HandleCallback)

			reconciler.outcome = payment.Outcome{Kind: payment.OutcomeSuccess}
			req := httptest.NewRequest(http.MethodGet, "/payment/callback/tabby", nil)

			bareRouter.ServeHTTP(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))

			var resp map[string]string
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["status"]).To(Equal(string(payment.OutcomeSuccess)))
		})
	})
})
