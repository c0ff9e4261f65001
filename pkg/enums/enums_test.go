package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, status := range OrderStatuses() {
		parsed, err := ParseOrderStatus(string(status))
		if err != nil || parsed != status {
			t.Fatalf("round trip failed for %q: %v", status, err)
		}
	}
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestOrderStatusClassification(t *testing.T) {
	if !OrderStatusCancelled.IsTerminal() || !OrderStatusRejected.IsTerminal() {
		t.Fatalf("cancelled and rejected must be terminal")
	}
	if OrderStatusCompleted.IsTerminal() {
		t.Fatalf("completed still allows rating")
	}
	if !OrderStatusEscalated.InDispute() || OrderStatusDelivered.InDispute() {
		t.Fatalf("unexpected dispute classification")
	}
}

func TestParsePaymentProviderIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentProvider(" Stripe ")
	if err != nil || got != PaymentProviderStripe {
		t.Fatalf("expected stripe, got %q err=%v", got, err)
	}
	if _, err := ParsePaymentProvider("square"); err == nil {
		t.Fatalf("expected error for unsupported provider")
	}
}

func TestPointLedgerReferenceUniqueness(t *testing.T) {
	if !PointLedgerPurchase.ReferenceUnique() || !PointLedgerRefund.ReferenceUnique() {
		t.Fatalf("purchase and refund entries are unique per reference")
	}
	if PointLedgerSpend.ReferenceUnique() {
		t.Fatalf("spend entries are not reference-unique")
	}
}

func TestDisputeDispositionOrderStatus(t *testing.T) {
	d, err := ParseDisputeDisposition("cancelled")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.OrderStatus() != OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", d.OrderStatus())
	}
	if _, err := ParseDisputeDisposition("refunded"); err == nil {
		t.Fatalf("expected error for unknown disposition")
	}
}
