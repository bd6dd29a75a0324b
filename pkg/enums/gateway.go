package enums

import (
	"fmt"
	"strings"
)

// GatewayName identifies one of the supported payment gateways.
type GatewayName string

const (
	GatewayPaystack    GatewayName = "paystack"
	GatewayFlutterwave GatewayName = "flutterwave"
	GatewayStripe      GatewayName = "stripe"
)

var validGatewayNames = []GatewayName{
	GatewayPaystack,
	GatewayFlutterwave,
	GatewayStripe,
}

// String implements fmt.Stringer.
func (g GatewayName) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayName.
func (g GatewayName) IsValid() bool {
	for _, candidate := range validGatewayNames {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGatewayName converts raw input into a GatewayName.
func ParseGatewayName(value string) (GatewayName, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validGatewayNames {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment gateway %q", value)
}

// Verdict is the settlement outcome reported by a gateway.
type Verdict string

const (
	VerdictSuccess Verdict = "SUCCESS"
	VerdictFailure Verdict = "FAILURE"
	VerdictPending Verdict = "PENDING"
)

// String implements fmt.Stringer.
func (v Verdict) String() string {
	return string(v)
}

// IsFinal reports whether the verdict settles a purchase.
func (v Verdict) IsFinal() bool {
	return v == VerdictSuccess || v == VerdictFailure
}
