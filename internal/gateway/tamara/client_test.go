package tamara

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		client   *Client
		lastReq  *http.Request
		lastBody map[string]any
		status   int
	)

	BeforeEach(func() {
		status = http.StatusOK
		lastReq = nil
		lastBody = nil

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r.Clone(r.Context())
			lastBody = map[string]any{}
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{}`))
		}))

		client = NewClient(Config{APIToken: "token-1"}, slog.Default())
		client.baseURL = server.URL
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Cancel", func() {
		It("voids the order with its total amount", func() {
			err := client.Cancel(context.Background(), "order-9", decimal.NewFromFloat(220.50))
			Expect(err).NotTo(HaveOccurred())

			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastReq.URL.Path).To(Equal("/orders/order-9/cancel"))
			Expect(lastReq.Header.Get("Authorization")).To(Equal("Bearer token-1"))

			total, ok := lastBody["total_amount"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(total["amount"]).To(BeNumerically("==", 220.50))
			Expect(total["currency"]).To(Equal("SAR"))
		})

		It("surfaces API refusals as errors", func() {
			status = http.StatusConflict

			err := client.Cancel(context.Background(), "order-9", decimal.NewFromFloat(220.50))
			Expect(err).To(MatchError(ContainSubstring("409")))
		})
	})
})
