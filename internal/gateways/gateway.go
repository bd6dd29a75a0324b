package gateways

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

var (
	// ErrInvalidSignature is returned when a webhook fails authentication.
	ErrInvalidSignature = errors.New("webhook signature invalid")
	// ErrNotConfigured is returned when a gateway has no credentials.
	ErrNotConfigured = errors.New("payment gateway not configured")
	// ErrMalformedWebhook is returned for authenticated payloads that cannot be decoded.
	ErrMalformedWebhook = errors.New("webhook payload malformed")
)

// InitializeRequest is what every variant needs to open a hosted checkout.
type InitializeRequest struct {
	Reference     string
	Email         string
	CustomerName  string
	CustomerPhone string
	Amount        decimal.Decimal
	Currency      string
	Description   string
	CallbackURL   string
	Metadata      map[string]string
}

// InitializeResult carries the URL the payer is sent to.
type InitializeResult struct {
	CheckoutURL      string
	GatewayReference string
}

// Verification is the gateway's authoritative view of a payment.
type Verification struct {
	Verdict          enums.Verdict
	Amount           decimal.Decimal
	Currency         string
	GatewayReference string
	GatewayStatus    string
}

// WebhookEvent is an authenticated webhook reduced to what settlement needs.
// An empty Verdict means the event is valid but carries no settlement outcome.
type WebhookEvent struct {
	DeliveryID string
	EventType  string
	Reference  string
	Verdict    enums.Verdict
	Amount     *decimal.Decimal
	Currency   string
}

// Actionable reports whether the event settles a purchase.
func (e *WebhookEvent) Actionable() bool {
	return e != nil && e.Reference != "" && e.Verdict.IsFinal()
}

// Gateway is the contract shared by all payment gateway variants.
type Gateway interface {
	Name() enums.GatewayName
	InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error)
	VerifyPayment(ctx context.Context, reference string) (*Verification, error)
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookEvent, error)
}

// minorUnits converts a major-unit amount to the integer minor units gateways expect.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
