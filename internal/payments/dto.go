package payments

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

// CreateIntentInput requests a points purchase.
type CreateIntentInput struct {
	UserID          uuid.UUID
	AmountCents     int64
	PointsAmount    int64
	ServiceFeeCents int64
	Provider        string
}

// IntentResult is handed to the client to complete payment.
type IntentResult struct {
	ClientSecret  string                `json:"clientSecret"`
	TransactionID uuid.UUID             `json:"transactionId"`
	Provider      enums.PaymentProvider `json:"provider"`
	AmountCents   int64                 `json:"amountCents"`
	Amount        string                `json:"amount"`
	PointsAmount  int64                 `json:"pointsAmount"`
}

// ConfirmResult reports the ledger credit behind a purchase.
type ConfirmResult struct {
	Success          bool      `json:"success"`
	TransactionID    uuid.UUID `json:"transactionId"`
	PointsAmount     int64     `json:"pointsAmount"`
	NewBalance       int64     `json:"newBalance"`
	LedgerEntryID    uuid.UUID `json:"ledgerEntryId"`
	AlreadyProcessed bool      `json:"alreadyProcessed"`
}

// ResolvedPayment is a pending transaction the reconciler settled.
type ResolvedPayment struct {
	TransactionID  uuid.UUID                      `json:"transactionId"`
	Provider       enums.PaymentProvider          `json:"provider"`
	Status         enums.PaymentTransactionStatus `json:"status"`
	PointsCredited int64                          `json:"pointsCredited"`
	NewBalance     *int64                         `json:"newBalance,omitempty"`
	FailureReason  string                         `json:"failureReason,omitempty"`
}

// PendingPayment is a transaction still awaiting the provider.
type PendingPayment struct {
	TransactionID  uuid.UUID             `json:"transactionId"`
	Provider       enums.PaymentProvider `json:"provider"`
	PointsAmount   int64                 `json:"pointsAmount"`
	ProviderStatus string                `json:"providerStatus,omitempty"`
}

// ResolveResult splits a user's pending transactions by outcome.
type ResolveResult struct {
	Resolved []ResolvedPayment `json:"resolved"`
	Pending  []PendingPayment  `json:"pending"`
}

// SweepResult summarizes one global reconciliation pass.
type SweepResult struct {
	Examined  int `json:"examined"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Errored   int `json:"errored"`
}
