package payment

import (
	"github.com/shopspring/decimal"

	errors "github.com/mlquarizm/payment-gateway/internal"
	"github.com/mlquarizm/payment-gateway/internal/core/common/validation"
	"github.com/mlquarizm/payment-gateway/internal/gateway"
)

// CustomerDTO carries the shopper details the BNPL providers score against.
type CustomerDTO struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type AddressDTO struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

type ItemDTO struct {
	ReferenceID string          `json:"reference_id"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku,omitempty"`
	Category    string          `json:"category,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// CreateCheckoutDTO is the request payload for opening a checkout session.
// TrackID is optional; a uuid is generated when the caller does not supply a
// merchant reference of its own.
type CreateCheckoutDTO struct {
	Gateway     string          `json:"gateway"`
	TrackID     string          `json:"track_id,omitempty"`
	PayableType string          `json:"payable_type"`
	PayableID   int64           `json:"payable_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	Customer    CustomerDTO     `json:"customer"`
	Shipping    AddressDTO      `json:"shipping_address"`
	Items       []ItemDTO       `json:"items,omitempty"`
}

func (dto CreateCheckoutDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	v.Field("gateway", dto.Gateway).
		Required().
		OneOf(gateway.Tabby, gateway.Tamara)
	v.Field("amount", dto.Amount).
		Required().
		Positive(errors.ErrCodeInvalidAmount)
	v.Field("payable_type", dto.PayableType).
		Required().
		MaxLength(100)
	v.Field("description", dto.Description).
		MaxLength(500)
	v.Field("customer.phone", dto.Customer.Phone).
		Required()
	v.Field("customer.email", dto.Customer.Email).
		Required()
	return v.Validate()
}

// CheckoutResponseDTO is returned after a session is opened; the caller
// redirects the shopper to CheckoutURL.
type CheckoutResponseDTO struct {
	TrackID     string          `json:"track_id"`
	Gateway     string          `json:"gateway"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      string          `json:"status"`
	CheckoutURL string          `json:"checkout_url"`
}

// TransactionDTO is the external view of a stored transaction.
type TransactionDTO struct {
	TrackID   string          `json:"track_id"`
	PaymentID string          `json:"payment_id,omitempty"`
	Gateway   string          `json:"gateway"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// RefundRequestDTO asks for a refund of a settled transaction. Amount is
// optional and defaults to the full recorded amount.
type RefundRequestDTO struct {
	Amount  *decimal.Decimal `json:"amount,omitempty"`
	Comment string           `json:"comment,omitempty"`
}

func (dto RefundRequestDTO) Validate() *errors.AppError {
	v := validation.NewValidator()
	if dto.Amount != nil {
		v.Field("amount", *dto.Amount).
			Positive(errors.ErrCodeInvalidAmount)
	}
	v.Field("comment", dto.Comment).
		MaxLength(255)
	return v.Validate()
}
