package payment

// OutcomeKind classifies the end result of reconciling a provider
// notification.
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
	OutcomeNotFound  OutcomeKind = "not_found"
	OutcomeInvalid   OutcomeKind = "invalid"
)

// Outcome is what one webhook or callback ultimately meant for a local
// transaction. Cancelled is reported distinctly even though the stored status
// is failed, so callers can route shoppers to the right page.
type Outcome struct {
	Kind           OutcomeKind `json:"status"`
	TrackID        string      `json:"track_id,omitempty"`
	PaymentID      string      `json:"payment_id,omitempty"`
	Gateway        string      `json:"gateway,omitempty"`
	ProviderStatus string      `json:"provider_status,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}
