package enums

import "fmt"

// EscalationStatus maps to escalation_status_enum.
type EscalationStatus string

const (
	EscalationStatusOpen     EscalationStatus = "open"
	EscalationStatusResolved EscalationStatus = "resolved"
)

func (s EscalationStatus) IsValid() bool {
	return s == EscalationStatusOpen || s == EscalationStatusResolved
}

// EscalationResolution records how a dispute was closed.
type EscalationResolution string

const (
	EscalationResolutionRefundAccepted EscalationResolution = "refund_accepted"
	EscalationResolutionManual         EscalationResolution = "manual"
)

func (r EscalationResolution) IsValid() bool {
	return r == EscalationResolutionRefundAccepted || r == EscalationResolutionManual
}

// RefundOfferStatus maps to refund_offer_status_enum.
type RefundOfferStatus string

const (
	RefundOfferStatusPending   RefundOfferStatus = "pending"
	RefundOfferStatusAccepted  RefundOfferStatus = "accepted"
	RefundOfferStatusRejected  RefundOfferStatus = "rejected"
	RefundOfferStatusWithdrawn RefundOfferStatus = "withdrawn"
)

var validRefundOfferStatuses = []RefundOfferStatus{
	RefundOfferStatusPending,
	RefundOfferStatusAccepted,
	RefundOfferStatusRejected,
	RefundOfferStatusWithdrawn,
}

func (s RefundOfferStatus) IsValid() bool {
	for _, candidate := range validRefundOfferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRefundOfferStatus converts raw input into a RefundOfferStatus.
func ParseRefundOfferStatus(value string) (RefundOfferStatus, error) {
	for _, candidate := range validRefundOfferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund offer status %q", value)
}

// DisputeDisposition is the caller-chosen outcome of a manual resolution.
type DisputeDisposition string

const (
	DisputeDispositionCompleted DisputeDisposition = "completed"
	DisputeDispositionCancelled DisputeDisposition = "cancelled"
)

// ParseDisputeDisposition converts raw input into a DisputeDisposition.
func ParseDisputeDisposition(value string) (DisputeDisposition, error) {
	switch DisputeDisposition(value) {
	case DisputeDispositionCompleted, DisputeDispositionCancelled:
		return DisputeDisposition(value), nil
	default:
		return "", fmt.Errorf("invalid dispute disposition %q", value)
	}
}

// OrderStatus returns the order status the disposition leads to.
func (d DisputeDisposition) OrderStatus() OrderStatus {
	if d == DisputeDispositionCancelled {
		return OrderStatusCancelled
	}
	return OrderStatusCompleted
}
