package enums

import (
	"fmt"
	"strings"
)

// PurchaseType is the kind of good a purchase buys.
type PurchaseType string

const (
	PurchaseTypeTicket PurchaseType = "TICKET"
	PurchaseTypeVote   PurchaseType = "VOTE"
)

var validPurchaseTypes = []PurchaseType{
	PurchaseTypeTicket,
	PurchaseTypeVote,
}

// String implements fmt.Stringer.
func (t PurchaseType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known PurchaseType.
func (t PurchaseType) IsValid() bool {
	for _, candidate := range validPurchaseTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePurchaseType converts raw input into a PurchaseType.
func ParsePurchaseType(value string) (PurchaseType, error) {
	for _, candidate := range validPurchaseTypes {
		if strings.EqualFold(string(candidate), value) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase type %q", value)
}

// PurchaseStatus tracks a purchase hold. PENDING is the only mutable state.
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "PENDING"
	PurchaseStatusPaid      PurchaseStatus = "PAID"
	PurchaseStatusFailed    PurchaseStatus = "FAILED"
	PurchaseStatusExpired   PurchaseStatus = "EXPIRED"
	PurchaseStatusCancelled PurchaseStatus = "CANCELLED"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusPaid,
	PurchaseStatusFailed,
	PurchaseStatusExpired,
	PurchaseStatusCancelled,
}

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PurchaseStatus.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (s PurchaseStatus) IsTerminal() bool {
	return s.IsValid() && s != PurchaseStatusPending
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if strings.EqualFold(string(candidate), value) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}

// PurchaseSource records which channel opened the purchase.
type PurchaseSource string

const (
	PurchaseSourceWeb  PurchaseSource = "web"
	PurchaseSourceUSSD PurchaseSource = "ussd"
)

// IsValid reports whether the value is a known PurchaseSource.
func (s PurchaseSource) IsValid() bool {
	return s == PurchaseSourceWeb || s == PurchaseSourceUSSD
}
