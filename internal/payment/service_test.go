package payment_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	apperrors "github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/core/datamodel/transaction"
	"github.com/mlquarizm/payment-gateway/internal/payment"
	"github.com/mlquarizm/payment-gateway/pkg/logger"
)

type mockProvider struct {
	session     *payment.CheckoutSession
	checkoutErr error
	refundErr   error

	checkoutCalls int
	refundCalls   int
	lastRefundID  string
	lastAmount    decimal.Decimal
}

func (m *mockProvider) CreateCheckout(ctx context.Context, dto *payment.CreateCheckoutDTO, trackID string) (*payment.CheckoutSession, error) {
	m.checkoutCalls++
	if m.checkoutErr != nil {
		return nil, m.checkoutErr
	}
	return m.session, nil
}

func (m *mockProvider) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, comment string) error {
	m.refundCalls++
	m.lastRefundID = paymentID
	m.lastAmount = amount
	return m.refundErr
}

var _ = Describe("Service", func() {
	var (
		repo     *mockRepository
		provider *mockProvider
		service  *payment.Service
		ctx      context.Context
	)

	BeforeEach(func() {
		repo = &mockRepository{casResult: true}
		provider = &mockProvider{
			session: &payment.CheckoutSession{
				PaymentID:   "pay_new",
				CheckoutURL: "https://checkout.example/session",
			},
		}
		service = payment.NewService(repo, "tabby", logger.Default())
		service.RegisterProvider("tabby", provider)
		ctx = context.Background()
	})

	newCheckoutDTO := func() *payment.CreateCheckoutDTO {
		return &payment.CreateCheckoutDTO{
			Gateway:     "tabby",
			PayableType: "order",
			PayableID:   42,
			Amount:      decimal.NewFromFloat(150.00),
			Customer: payment.CustomerDTO{
				FirstName: "Sara",
				LastName:  "Nasser",
				Phone:     "+966500000001",
				Email:     "sara@example.com",
			},
		}
	}

	Describe("CreateCheckout", func() {
		It("opens a session and records a pending transaction", func() {
			resp, err := service.CreateCheckout(ctx, newCheckoutDTO())

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.TrackID).NotTo(BeEmpty())
			Expect(resp.Status).To(Equal(transaction.StatusPending))
			Expect(resp.CheckoutURL).To(Equal("https://checkout.example/session"))

			Expect(repo.txn).NotTo(BeNil())
			Expect(repo.txn.Status).To(Equal(transaction.StatusPending))
			Expect(repo.txn.Gateway).To(Equal("tabby"))
			Expect(*repo.txn.PaymentID).To(Equal("pay_new"))
		})

		It("keeps a caller-supplied track id", func() {
			dto := newCheckoutDTO()
			dto.TrackID = "TRK-client"

			resp, err := service.CreateCheckout(ctx, dto)

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.TrackID).To(Equal("TRK-client"))
		})

		It("falls back to the default gateway when none is given", func() {
			dto := newCheckoutDTO()
			dto.Gateway = ""

			resp, err := service.CreateCheckout(ctx, dto)

			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Gateway).To(Equal("tabby"))
		})

		It("rejects unregistered gateways", func() {
			dto := newCheckoutDTO()
			dto.Gateway = "tamara"

			_, err := service.CreateCheckout(ctx, dto)

			Expect(err).To(MatchError(apperrors.ErrGatewayUnsupported))
			Expect(provider.checkoutCalls).To(BeZero())
		})

		It("rejects invalid payloads before calling the provider", func() {
			dto := newCheckoutDTO()
			dto.Amount = decimal.NewFromInt(-5)

			_, err := service.CreateCheckout(ctx, dto)

			Expect(err).To(HaveOccurred())
			Expect(provider.checkoutCalls).To(BeZero())
		})

		It("surfaces provider failures as external errors without recording", func() {
			provider.checkoutErr = errors.New("session rejected")

			_, err := service.CreateCheckout(ctx, newCheckoutDTO())

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeExternal))
			Expect(repo.txn).To(BeNil())
		})
	})

	Describe("GetByTrackID", func() {
		It("returns not found for unknown track ids", func() {
			_, err := service.GetByTrackID(ctx, "TRK-missing")
			Expect(err).To(MatchError(apperrors.ErrTransactionNotFound))
		})
	})

	Describe("SupportedGateways", func() {
		It("lists every registered provider", func() {
			service.RegisterProvider("tamara", &mockProvider{})
			Expect(service.SupportedGateways()).To(ConsistOf("tabby", "tamara"))
		})
	})

	Describe("Refund", func() {
		paymentID := "pay_done"

		settledTxn := func(status string) *transaction.PaymentTransaction {
			return &transaction.PaymentTransaction{
				ID:        3,
				TrackID:   "TRK-3",
				PaymentID: &paymentID,
				Amount:    decimal.NewFromFloat(300.00),
				Status:    status,
				Gateway:   "tabby",
			}
		}

		It("refunds a successful transaction in full by default", func() {
			repo.txn = settledTxn(transaction.StatusSuccess)

			result, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{Comment: "customer return"})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(transaction.StatusRefunded))
			Expect(provider.refundCalls).To(Equal(1))
			Expect(provider.lastRefundID).To(Equal("pay_done"))
			Expect(provider.lastAmount.StringFixed(2)).To(Equal("300.00"))
		})

		It("refunds a partial amount when one is given", func() {
			repo.txn = settledTxn(transaction.StatusSuccess)
			partial := decimal.NewFromFloat(100.00)

			_, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{Amount: &partial})

			Expect(err).NotTo(HaveOccurred())
			Expect(provider.lastAmount.StringFixed(2)).To(Equal("100.00"))
		})

		It("rejects a refund exceeding the transaction amount", func() {
			repo.txn = settledTxn(transaction.StatusSuccess)
			tooMuch := decimal.NewFromFloat(500.00)

			_, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{Amount: &tooMuch})

			Expect(err).To(HaveOccurred())
			Expect(provider.refundCalls).To(BeZero())
		})

		It("answers an already refunded transaction without a provider call", func() {
			repo.txn = settledTxn(transaction.StatusRefunded)

			result, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{})

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(transaction.StatusRefunded))
			Expect(provider.refundCalls).To(BeZero())
		})

		It("refuses to refund a pending transaction", func() {
			repo.txn = settledTxn(transaction.StatusPending)

			_, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{})

			Expect(err).To(MatchError(apperrors.ErrRefundNotAllowed))
		})

		It("refuses to refund without a recorded payment id", func() {
			repo.txn = settledTxn(transaction.StatusSuccess)
			repo.txn.PaymentID = nil

			_, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{})

			Expect(err).To(MatchError(apperrors.ErrRefundNotAllowed))
		})

		It("surfaces provider refusals as external errors", func() {
			provider.refundErr = errors.New("refund window closed")
			repo.txn = settledTxn(transaction.StatusSuccess)

			_, err := service.Refund(ctx, "TRK-3", &payment.RefundRequestDTO{})

			Expect(err).To(HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(apperrors.ErrorTypeExternal))
		})
	})
})
