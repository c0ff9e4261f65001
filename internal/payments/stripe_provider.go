package payments

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// StripeAPI is the slice of pkg/stripe.Client the provider needs.
type StripeAPI interface {
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// StripeProvider opens card payment intents with Stripe.
type StripeProvider struct {
	api StripeAPI
}

func NewStripeProvider(api StripeAPI) *StripeProvider {
	return &StripeProvider{api: api}
}

func (p *StripeProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderStripe
}

func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*ProviderIntent, error) {
	metadata := map[string]string{
		"user_id":           req.UserID.String(),
		"points_amount":     strconv.FormatInt(req.PointsAmount, 10),
		"service_fee_cents": strconv.FormatInt(req.ServiceFeeCents, 10),
		"amount_usd":        CentsToDollars(req.AmountCents),
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	intent, err := p.api.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, err
	}
	return &ProviderIntent{
		ExternalID:   intent.ID,
		ClientSecret: intent.ClientSecret,
		Metadata:     metadata,
	}, nil
}

func (p *StripeProvider) IntentStatus(ctx context.Context, externalID string) (IntentStatus, error) {
	intent, err := p.api.GetPaymentIntent(ctx, externalID)
	if err != nil {
		return "", err
	}
	return IntentStatus(intent.Status), nil
}

// CentsToDollars renders an integer cent amount as a two-decimal dollar string.
func CentsToDollars(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}
