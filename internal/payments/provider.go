package payments

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// IntentStatus mirrors the provider's PaymentIntent status strings.
type IntentStatus string

const (
	IntentStatusSucceeded             IntentStatus = "succeeded"
	IntentStatusCanceled              IntentStatus = "canceled"
	IntentStatusRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentStatusProcessing            IntentStatus = "processing"
)

// Terminal reports whether the provider will never settle the intent.
func (s IntentStatus) Terminal() bool {
	return s == IntentStatusCanceled || s == IntentStatusRequiresPaymentMethod
}

// IntentRequest is what a provider needs to open a payment intent.
type IntentRequest struct {
	UserID          uuid.UUID
	AmountCents     int64
	PointsAmount    int64
	ServiceFeeCents int64
}

// ProviderIntent is the provider's handle on a created intent.
type ProviderIntent struct {
	ExternalID   string
	ClientSecret string
	Metadata     map[string]string
}

// Provider creates and inspects payment intents for one backend.
type Provider interface {
	Name() enums.PaymentProvider
	CreateIntent(ctx context.Context, req IntentRequest) (*ProviderIntent, error)
	IntentStatus(ctx context.Context, externalID string) (IntentStatus, error)
}

// Providers indexes the configured providers by name.
type Providers map[enums.PaymentProvider]Provider

// NewProviders indexes the non-nil providers.
func NewProviders(list ...Provider) Providers {
	out := make(Providers, len(list))
	for _, p := range list {
		if p == nil {
			continue
		}
		out[p.Name()] = p
	}
	return out
}

// Get returns the provider registered under name.
func (p Providers) Get(name enums.PaymentProvider) (Provider, bool) {
	provider, ok := p[name]
	return provider, ok
}

// ConfiguredProviders registers the mock provider when enabled and Stripe
// when a client is available.
func ConfiguredProviders(cfg config.PaymentsConfig, stripeClient StripeAPI) Providers {
	list := make([]Provider, 0, 2)
	if cfg.MockEnabled {
		list = append(list, NewMockProvider())
	}
	if stripeClient != nil {
		list = append(list, NewStripeProvider(stripeClient))
	}
	return NewProviders(list...)
}
