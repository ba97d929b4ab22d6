package payment

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mlquarizm/payment-gateway/internal/gateway/tabby"
	"github.com/mlquarizm/payment-gateway/internal/gateway/tamara"
)

// CheckoutSession is the provider-neutral result of opening a checkout.
// PaymentID may be empty when the provider only assigns one after the shopper
// completes the flow.
type CheckoutSession struct {
	PaymentID   string
	CheckoutURL string
}

// Provider is one BNPL integration as the checkout service sees it.
type Provider interface {
	CreateCheckout(ctx context.Context, dto *CreateCheckoutDTO, trackID string) (*CheckoutSession, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, comment string) error
}

type tabbyProvider struct {
	client *tabby.Client
}

func NewTabbyProvider(client *tabby.Client) Provider {
	return &tabbyProvider{client: client}
}

func (p *tabbyProvider) CreateCheckout(ctx context.Context, dto *CreateCheckoutDTO, trackID string) (*CheckoutSession, error) {
	items := make([]tabby.OrderItem, 0, len(dto.Items))
	for _, item := range dto.Items {
		items = append(items, tabby.OrderItem{
			ReferenceID: item.ReferenceID,
			Title:       item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Category:    item.Category,
		})
	}
	if len(items) == 0 {
		items = append(items, tabby.OrderItem{
			ReferenceID: trackID,
			Title:       dto.PayableType,
			Quantity:    1,
			UnitPrice:   dto.Amount,
		})
	}

	session, err := p.client.CreateCheckout(ctx, tabby.CheckoutRequest{
		Amount:      dto.Amount,
		Description: dto.Description,
		ReferenceID: trackID,
		Buyer: tabby.Buyer{
			Name:  strings.TrimSpace(dto.Customer.FirstName + " " + dto.Customer.LastName),
			Email: dto.Customer.Email,
			Phone: dto.Customer.Phone,
		},
		Shipping: tabby.Address{
			City:    dto.Shipping.City,
			Address: strings.TrimSpace(dto.Shipping.Line1 + " " + dto.Shipping.Line2),
			Zip:     dto.Shipping.PostalCode,
		},
		Items: items,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		PaymentID:   session.PaymentID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (p *tabbyProvider) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, comment string) error {
	_, err := p.client.Refund(ctx, paymentID, amount.StringFixed(2), comment)
	return err
}

type tamaraProvider struct {
	client      *tamara.Client
	countryCode string
}

func NewTamaraProvider(client *tamara.Client, countryCode string) Provider {
	return &tamaraProvider{client: client, countryCode: countryCode}
}

func (p *tamaraProvider) CreateCheckout(ctx context.Context, dto *CreateCheckoutDTO, trackID string) (*CheckoutSession, error) {
	address := tamara.Address{
		FirstName:   dto.Customer.FirstName,
		LastName:    dto.Customer.LastName,
		Line1:       dto.Shipping.Line1,
		Line2:       dto.Shipping.Line2,
		City:        dto.Shipping.City,
		Region:      dto.Shipping.Region,
		PostalCode:  dto.Shipping.PostalCode,
		CountryCode: p.countryCode,
		PhoneNumber: dto.Customer.Phone,
	}

	items := make([]tamara.OrderItem, 0, len(dto.Items))
	for _, item := range dto.Items {
		quantity := item.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, tamara.OrderItem{
			ReferenceID: item.ReferenceID,
			Name:        item.Name,
			SKU:         item.SKU,
			Quantity:    quantity,
			UnitPrice:   item.UnitPrice,
			TotalAmount: item.UnitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		})
	}
	if len(items) == 0 {
		items = append(items, tamara.OrderItem{
			ReferenceID: trackID,
			Name:        dto.PayableType,
			SKU:         trackID,
			Quantity:    1,
			UnitPrice:   dto.Amount,
			TotalAmount: dto.Amount,
		})
	}

	session, err := p.client.CreateCheckout(ctx, tamara.CheckoutRequest{
		ReferenceID: trackID,
		OrderNumber: trackID,
		Amount:      dto.Amount,
		Description: dto.Description,
		Consumer: tamara.Consumer{
			FirstName:   dto.Customer.FirstName,
			LastName:    dto.Customer.LastName,
			PhoneNumber: dto.Customer.Phone,
			Email:       dto.Customer.Email,
		},
		Billing:  address,
		Shipping: address,
		Items:    items,
	})
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		PaymentID:   session.OrderID,
		CheckoutURL: session.CheckoutURL,
	}, nil
}

func (p *tamaraProvider) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, comment string) error {
	_, err := p.client.Refund(ctx, paymentID, amount, comment)
	return err
}
