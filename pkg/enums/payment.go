package enums

import (
	"fmt"
	"strings"
)

// PaymentProvider identifies the backend that settles a points purchase.
type PaymentProvider string

const (
	PaymentProviderMock   PaymentProvider = "mock"
	PaymentProviderStripe PaymentProvider = "stripe"
)

func (p PaymentProvider) String() string {
	return string(p)
}

func (p PaymentProvider) IsValid() bool {
	return p == PaymentProviderMock || p == PaymentProviderStripe
}

// ParsePaymentProvider converts raw input into a PaymentProvider, case-insensitively.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	candidate := PaymentProvider(strings.ToLower(strings.TrimSpace(value)))
	if candidate.IsValid() {
		return candidate, nil
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}

// PaymentTransactionStatus tracks a points purchase. It only moves forward from pending.
type PaymentTransactionStatus string

const (
	PaymentTransactionPending   PaymentTransactionStatus = "pending"
	PaymentTransactionSucceeded PaymentTransactionStatus = "succeeded"
	PaymentTransactionFailed    PaymentTransactionStatus = "failed"
)

var validPaymentTransactionStatuses = []PaymentTransactionStatus{
	PaymentTransactionPending,
	PaymentTransactionSucceeded,
	PaymentTransactionFailed,
}

func (s PaymentTransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PaymentTransactionStatus.
func (s PaymentTransactionStatus) IsValid() bool {
	for _, candidate := range validPaymentTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePaymentTransactionStatus converts raw input into a PaymentTransactionStatus.
func ParsePaymentTransactionStatus(value string) (PaymentTransactionStatus, error) {
	for _, candidate := range validPaymentTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment transaction status %q", value)
}

// FailureReasonStale marks transactions terminated by the stale sweep.
const FailureReasonStale = "stale"
