package enums

import "fmt"

// PointLedgerType maps to point_ledger_type_enum.
type PointLedgerType string

const (
	PointLedgerPurchase   PointLedgerType = "purchase"
	PointLedgerReward     PointLedgerType = "reward"
	PointLedgerSpend      PointLedgerType = "spend"
	PointLedgerRefund     PointLedgerType = "refund"
	PointLedgerAdjustment PointLedgerType = "adjustment"
)

var validPointLedgerTypes = []PointLedgerType{
	PointLedgerPurchase,
	PointLedgerReward,
	PointLedgerSpend,
	PointLedgerRefund,
	PointLedgerAdjustment,
}

func (t PointLedgerType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PointLedgerType.
func (t PointLedgerType) IsValid() bool {
	for _, candidate := range validPointLedgerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ReferenceUnique reports whether at most one entry may exist per reference id.
func (t PointLedgerType) ReferenceUnique() bool {
	return t == PointLedgerPurchase || t == PointLedgerRefund
}

// ParsePointLedgerType converts raw input into a PointLedgerType.
func ParsePointLedgerType(value string) (PointLedgerType, error) {
	for _, candidate := range validPointLedgerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point ledger type %q", value)
}
