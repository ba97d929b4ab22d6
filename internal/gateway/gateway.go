package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Supported gateway names. The set is closed: each name maps to exactly one
// Normalizer registered at startup.
const (
	Tabby  = "tabby"
	Tamara = "tamara"
)

// Notification is one inbound provider message, either a browser callback or
// a server-to-server webhook. Payload holds the decoded JSON body merged with
// any query parameters; RawBody is kept verbatim for signature verification
// and auditing.
type Notification struct {
	Payload map[string]any
	RawBody []byte
	Header  http.Header
	Query   url.Values
	Webhook bool
}

// Field returns the string value of a payload field, or "" when absent or not
// a string.
func (n Notification) Field(key string) string {
	v, ok := n.Payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Result is the normalized interpretation of a provider notification. When
// Matchable is false the notification carried no usable identifier and no
// transaction lookup should be attempted.
type Result struct {
	TransactionID  string
	OrderReference string
	ProviderStatus string
	IsSuccess      bool
	Cancelled      bool
	Matchable      bool
}

// NotMatchable is the "no match possible" outcome: the notification could not
// be tied to any provider payment.
func NotMatchable() Result {
	return Result{Matchable: false}
}

// Normalizer maps one provider's raw notification vocabulary into a Result,
// driving whatever provider-side calls (fetch, authorize, capture) are needed
// to make the outcome final. Provider call failures are folded into a
// negative Result, never returned as errors.
type Normalizer interface {
	Normalize(ctx context.Context, n Notification) Result
}

// Registry holds the Normalizer per gateway name.
type Registry struct {
	normalizers map[string]Normalizer
}

func NewRegistry() *Registry {
	return &Registry{normalizers: make(map[string]Normalizer)}
}

func (r *Registry) Register(name string, n Normalizer) {
	r.normalizers[strings.ToLower(name)] = n
}

func (r *Registry) Get(name string) (Normalizer, bool) {
	n, ok := r.normalizers[strings.ToLower(strings.TrimSpace(name))]
	return n, ok
}

func (r *Registry) SupportedGateways() []string {
	names := make([]string, 0, len(r.normalizers))
	for name := range r.normalizers {
		names = append(names, name)
	}
	return names
}
