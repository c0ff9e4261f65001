package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/config"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

// IntentFactory opens pending payment transactions with a provider.
type IntentFactory struct {
	repo      Repository
	providers Providers
	cfg       config.PaymentsConfig
	logg      *logger.Logger
}

// NewIntentFactory wires the intent factory.
func NewIntentFactory(repo Repository, providers Providers, cfg config.PaymentsConfig, logg *logger.Logger) (*IntentFactory, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &IntentFactory{repo: repo, providers: providers, cfg: cfg, logg: logg}, nil
}

// selectProvider resolves the requested provider. Without one it uses the
// configured default, then Stripe, then whichever single provider is enabled.
func (f *IntentFactory) selectProvider(requested string) (Provider, error) {
	if len(f.providers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no payment provider configured")
	}
	name := strings.TrimSpace(requested)
	if name == "" {
		name = strings.TrimSpace(f.cfg.DefaultProvider)
	}
	if name == "" {
		if provider, ok := f.providers.Get(enums.PaymentProviderStripe); ok {
			return provider, nil
		}
		for _, provider := range f.providers {
			return provider, nil
		}
	}
	providerName, err := enums.ParsePaymentProvider(name)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payment provider")
	}
	provider, ok := f.providers.Get(providerName)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment provider %s is not enabled", providerName))
	}
	return provider, nil
}

// CreateIntent validates the purchase, asks the provider for an intent, and
// persists a pending transaction. Provider failures leave no row behind.
func (f *IntentFactory) CreateIntent(ctx context.Context, input CreateIntentInput) (*IntentResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.AmountCents < f.cfg.MinAmountCents || input.AmountCents > f.cfg.MaxAmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("amount must be between %d and %d cents", f.cfg.MinAmountCents, f.cfg.MaxAmountCents)).
			WithDetails(map[string]any{
				"minAmountCents": f.cfg.MinAmountCents,
				"maxAmountCents": f.cfg.MaxAmountCents,
			})
	}
	if input.PointsAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pointsAmount must be positive")
	}
	if input.ServiceFeeCents < 0 || input.ServiceFeeCents >= input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "serviceFeeCents must be non-negative and below amountCents")
	}

	provider, err := f.selectProvider(input.Provider)
	if err != nil {
		return nil, err
	}
	providerName := provider.Name()

	ctx = f.logg.WithFields(ctx, map[string]any{
		"user_id":      input.UserID.String(),
		"provider":     providerName,
		"amount_cents": input.AmountCents,
	})

	intent, err := provider.CreateIntent(ctx, IntentRequest{
		UserID:          input.UserID,
		AmountCents:     input.AmountCents,
		PointsAmount:    input.PointsAmount,
		ServiceFeeCents: input.ServiceFeeCents,
	})
	if err != nil {
		f.logg.Error(ctx, "payment provider rejected intent", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeProvider, err, "create payment intent")
	}

	metadata, err := json.Marshal(intent.Metadata)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode intent metadata")
	}
	txn := &models.PaymentTransaction{
		UserID:               input.UserID,
		Provider:             providerName,
		ExternalIntentID:     intent.ExternalID,
		ExternalClientSecret: intent.ClientSecret,
		AmountCents:          input.AmountCents,
		ServiceFeeCents:      input.ServiceFeeCents,
		PointsAmount:         input.PointsAmount,
		Status:               enums.PaymentTransactionPending,
		Metadata:             metadata,
	}
	if err := f.repo.Create(ctx, txn); err != nil {
		f.logg.Error(ctx, "failed to persist payment transaction after provider intent", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment transaction")
	}

	f.logg.Info(f.logg.WithTransactionID(ctx, txn.ID.String()), "payment intent created")
	return &IntentResult{
		ClientSecret:  txn.ExternalClientSecret,
		TransactionID: txn.ID,
		Provider:      providerName,
		AmountCents:   txn.AmountCents,
		Amount:        CentsToDollars(txn.AmountCents),
		PointsAmount:  txn.PointsAmount,
	}, nil
}
