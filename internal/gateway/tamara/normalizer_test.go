package tamara_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
	"github.com/mlquarizm/payment-gateway/internal/gateway/tamara"
)

func TestTamaraNormalizer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tamara Normalizer Suite")
}

type mockOrderAPI struct {
	GetOrderFn  func(ctx context.Context, orderID string) (*tamara.Order, error)
	AuthorizeFn func(ctx context.Context, orderID string) (*tamara.Order, error)
	CaptureFn   func(ctx context.Context, orderID string, total decimal.Decimal) (*tamara.CaptureResult, error)

	authorizeCalls int
	captureCalls   int
}

func (m *mockOrderAPI) GetOrder(ctx context.Context, orderID string) (*tamara.Order, error) {
	return m.GetOrderFn(ctx, orderID)
}

func (m *mockOrderAPI) Authorize(ctx context.Context, orderID string) (*tamara.Order, error) {
	m.authorizeCalls++
	return m.AuthorizeFn(ctx, orderID)
}

func (m *mockOrderAPI) Capture(ctx context.Context, orderID string, total decimal.Decimal) (*tamara.CaptureResult, error) {
	m.captureCalls++
	return m.CaptureFn(ctx, orderID, total)
}

type mockTransactionStore struct {
	txn *transaction.PaymentTransaction
	err error
}

func (m *mockTransactionStore) FindByPaymentID(ctx context.Context, paymentID, gatewayName string) (*transaction.PaymentTransaction, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.txn, nil
}

var _ = Describe("Normalizer", func() {
	var (
		api        *mockOrderAPI
		store      *mockTransactionStore
		normalizer *tamara.Normalizer
		ctx        context.Context
	)

	orderID := "tamara-order-1"
	paymentID := orderID

	BeforeEach(func() {
		api = &mockOrderAPI{}
		store = &mockTransactionStore{
			txn: &transaction.PaymentTransaction{
				ID:        1,
				TrackID:   "TRK-50",
				PaymentID: &paymentID,
				Amount:    decimal.NewFromFloat(220.50),
				Status:    transaction.StatusPending,
				Gateway:   gateway.Tamara,
			},
		}
		normalizer = tamara.NewNormalizer(api, store, slog.Default())
		ctx = context.Background()
	})

	webhook := func(payload map[string]any) gateway.Notification {
		return gateway.Notification{Payload: payload, Webhook: true}
	}
	callback := func(payload map[string]any) gateway.Notification {
		return gateway.Notification{Payload: payload, Webhook: false}
	}

	Context("identifier extraction", func() {
		It("returns a non-matchable result when the order id is missing", func() {
			result := normalizer.Normalize(ctx, webhook(map[string]any{"event_type": "order_approved"}))
			Expect(result.Matchable).To(BeFalse())
		})

		It("reads order_id on webhooks and orderId on callbacks", func() {
			api.GetOrderFn = func(_ context.Context, id string) (*tamara.Order, error) {
				Expect(id).To(Equal(orderID))
				return &tamara.Order{OrderID: id, Status: tamara.OrderStatusFullyCaptured}, nil
			}

			Expect(normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID})).Matchable).To(BeTrue())
			Expect(normalizer.Normalize(ctx, callback(map[string]any{"orderId": orderID})).Matchable).To(BeTrue())
		})
	})

	Context("approved orders", func() {
		BeforeEach(func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusApproved}, nil
			}
		})

		It("authorizes then captures with the recorded amount", func() {
			api.AuthorizeFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusAuthorised}, nil
			}
			api.CaptureFn = func(_ context.Context, id string, total decimal.Decimal) (*tamara.CaptureResult, error) {
				Expect(total.StringFixed(2)).To(Equal("220.50"))
				return &tamara.CaptureResult{CaptureID: "cap_1", OrderStatus: tamara.OrderStatusFullyCaptured}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{
				"order_id":   orderID,
				"event_type": "order_approved",
			}))
			Expect(result.IsSuccess).To(BeTrue())
			Expect(result.OrderReference).To(Equal("TRK-50"))
			Expect(result.ProviderStatus).To(Equal(tamara.OrderStatusFullyCaptured))
			Expect(api.authorizeCalls).To(Equal(1))
			Expect(api.captureCalls).To(Equal(1))
		})

		It("fails when authorization errors", func() {
			api.AuthorizeFn = func(context.Context, string) (*tamara.Order, error) {
				return nil, errors.New("authorise rejected")
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.Matchable).To(BeTrue())
			Expect(api.captureCalls).To(BeZero())
		})

		It("fails when authorization does not report authorised", func() {
			api.AuthorizeFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusDeclined}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.ProviderStatus).To(Equal(tamara.OrderStatusDeclined))
			Expect(api.captureCalls).To(BeZero())
		})

		It("fails when the capture call errors after a clean authorization", func() {
			api.AuthorizeFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusAuthorised}, nil
			}
			api.CaptureFn = func(context.Context, string, decimal.Decimal) (*tamara.CaptureResult, error) {
				return nil, errors.New("capture refused")
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.Matchable).To(BeTrue())
			Expect(result.OrderReference).To(Equal("TRK-50"))
		})
	})

	Context("already authorized orders", func() {
		It("captures directly without re-authorizing", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusAuthorized}, nil
			}
			api.CaptureFn = func(context.Context, string, decimal.Decimal) (*tamara.CaptureResult, error) {
				return &tamara.CaptureResult{CaptureID: "cap_2"}, nil
			}

			result := normalizer.Normalize(ctx, callback(map[string]any{"orderId": orderID}))
			Expect(result.IsSuccess).To(BeTrue())
			Expect(result.ProviderStatus).To(Equal(tamara.OrderStatusFullyCaptured))
			Expect(api.authorizeCalls).To(BeZero())
			Expect(api.captureCalls).To(Equal(1))
		})
	})

	Context("captured orders", func() {
		It("treats fully_captured as success without further calls", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusFullyCaptured}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeTrue())
			Expect(api.captureCalls).To(BeZero())
		})

		It("treats partially_captured as success", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusPartiallyCaptured}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeTrue())
		})
	})

	Context("cancellations", func() {
		It("reports a cancellation when a new order arrives with a canceled event", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusNew}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{
				"order_id":   orderID,
				"event_type": "order_canceled",
			}))
			Expect(result.Cancelled).To(BeTrue())
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.ProviderStatus).To(Equal("cancel"))
			Expect(result.OrderReference).To(Equal("TRK-50"))
		})

		It("reports a plain failure for a new order without a cancel event", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusNew}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{
				"order_id":   orderID,
				"event_type": "order_approved",
			}))
			Expect(result.Cancelled).To(BeFalse())
			Expect(result.IsSuccess).To(BeFalse())
		})
	})

	Context("failure paths", func() {
		It("reports a matchable failure when no local transaction exists", func() {
			store.err = transaction.ErrNotFound

			result := normalizer.Normalize(ctx, webhook(map[string]any{
				"order_id":   orderID,
				"event_type": "order_approved",
			}))
			Expect(result.Matchable).To(BeTrue())
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.TransactionID).To(Equal(orderID))
			Expect(result.ProviderStatus).To(Equal("approved"))
		})

		It("reports a matchable failure when the order fetch errors", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return nil, errors.New("tamara unavailable")
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.Matchable).To(BeTrue())
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.OrderReference).To(Equal("TRK-50"))
		})

		It("treats declined orders as failures", func() {
			api.GetOrderFn = func(context.Context, string) (*tamara.Order, error) {
				return &tamara.Order{OrderID: orderID, Status: tamara.OrderStatusDeclined}, nil
			}

			result := normalizer.Normalize(ctx, webhook(map[string]any{"order_id": orderID}))
			Expect(result.IsSuccess).To(BeFalse())
			Expect(result.ProviderStatus).To(Equal(tamara.OrderStatusDeclined))
		})

		It("normalizes unknown webhook events to unknown", func() {
			store.err = transaction.ErrNotFound

			result := normalizer.Normalize(ctx, webhook(map[string]any{
				"order_id":   orderID,
				"event_type": "order_shipped",
			}))
			Expect(result.ProviderStatus).To(Equal("unknown"))
		})
	})
})
