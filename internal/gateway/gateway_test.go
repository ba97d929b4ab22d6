package gateway_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mlquarizm/payment-gateway/internal/gateway"
)

type noopNormalizer struct{}

func (noopNormalizer) Normalize(ctx context.Context, n gateway.Notification) gateway.Result {
	return gateway.NotMatchable()
}

var _ = Describe("Registry", func() {
	var registry *gateway.Registry

	BeforeEach(func() {
		registry = gateway.NewRegistry()
		registry.Register(gateway.Tabby, noopNormalizer{})
	})

	It("resolves names case-insensitively and ignores surrounding whitespace", func() {
		for _, name := range []string{"tabby", "Tabby", "TABBY", " tabby "} {
			_, ok := registry.Get(name)
			Expect(ok).To(BeTrue(), "name %q", name)
		}
	})

	It("does not resolve unregistered names", func() {
		_, ok := registry.Get(gateway.Tamara)
		Expect(ok).To(BeFalse())
	})

	It("lists the registered gateways", func() {
		registry.Register(gateway.Tamara, noopNormalizer{})
		Expect(registry.SupportedGateways()).To(ConsistOf(gateway.Tabby, gateway.Tamara))
	})
})

var _ = Describe("Notification", func() {
	It("reads string payload fields", func() {
		n := gateway.Notification{Payload: map[string]any{"order_id": "ord_1"}}
		Expect(n.Field("order_id")).To(Equal("ord_1"))
	})

	It("returns empty for absent or non-string fields", func() {
		n := gateway.Notification{Payload: map[string]any{"amount": 42.5}}
		Expect(n.Field("amount")).To(BeEmpty())
		Expect(n.Field("missing")).To(BeEmpty())
	})
})
