package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

const stripeSignatureHeader = "Stripe-Signature"

// CheckoutSessionAPI exposes the subset of Stripe checkout operations the adapter needs.
type CheckoutSessionAPI interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(ctx context.Context, id string) (*stripe.CheckoutSession, error)
}

// Stripe opens Checkout Sessions and verifies signed Stripe events.
type Stripe struct {
	sessions      CheckoutSessionAPI
	signingSecret string
	cancelURL     string
}

// NewStripe builds the stripe variant on top of a checkout session API,
// normally *pkg/stripe.Client.
func NewStripe(signingSecret, cancelURL string, sessions CheckoutSessionAPI) (*Stripe, error) {
	if strings.TrimSpace(signingSecret) == "" || sessions == nil {
		return nil, fmt.Errorf("stripe: %w", ErrNotConfigured)
	}
	return &Stripe{sessions: sessions, signingSecret: signingSecret, cancelURL: cancelURL}, nil
}

func (s *Stripe) Name() enums.GatewayName {
	return enums.GatewayStripe
}

func (s *Stripe) InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	metadata := map[string]string{"reference": req.Reference}
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	name := req.Description
	if name == "" {
		name = req.Reference
	}
	cancelURL := s.cancelURL
	if cancelURL == "" {
		cancelURL = req.CallbackURL
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withReference(req.CallbackURL, req.Reference)),
		CancelURL:         stripe.String(withReference(cancelURL, req.Reference)),
		ClientReferenceID: stripe.String(req.Reference),
		CustomerEmail:     stripe.String(req.Email),
		Metadata:          metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
				},
			},
		},
	}
	sess, err := s.sessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	if sess == nil || sess.URL == "" {
		return nil, fmt.Errorf("stripe create checkout session: url missing")
	}
	return &InitializeResult{CheckoutURL: sess.URL, GatewayReference: sess.ID}, nil
}

// VerifyPayment expects the checkout session id recorded at initialization.
func (s *Stripe) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	sess, err := s.sessions.Get(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return &Verification{
		Verdict:          stripeSessionVerdict(sess),
		Amount:           fromMinorUnits(sess.AmountTotal),
		Currency:         strings.ToUpper(string(sess.Currency)),
		GatewayReference: sess.ID,
		GatewayStatus:    string(sess.PaymentStatus),
	}, nil
}

func (s *Stripe) ParseWebhook(_ context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	signature := header.Get(stripeSignatureHeader)
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	event, err := webhook.ConstructEvent(body, signature, s.signingSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := &WebhookEvent{DeliveryID: event.ID, EventType: string(event.Type)}
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
		stripe.EventTypeCheckoutSessionAsyncPaymentFailed,
		stripe.EventTypeCheckoutSessionExpired:
	default:
		return result, nil
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event data missing", ErrMalformedWebhook)
	}
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	result.Reference = sess.ClientReferenceID
	if result.Reference == "" {
		result.Reference = sess.Metadata["reference"]
	}
	result.Currency = strings.ToUpper(string(sess.Currency))
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			result.Verdict = enums.VerdictSuccess
		}
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		result.Verdict = enums.VerdictSuccess
	default:
		result.Verdict = enums.VerdictFailure
	}
	if result.Verdict == enums.VerdictSuccess {
		amount := fromMinorUnits(sess.AmountTotal)
		result.Amount = &amount
	}
	return result, nil
}

func stripeSessionVerdict(sess *stripe.CheckoutSession) enums.Verdict {
	if sess == nil {
		return enums.VerdictPending
	}
	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return enums.VerdictSuccess
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return enums.VerdictFailure
	default:
		return enums.VerdictPending
	}
}

func withReference(base, reference string) string {
	if base == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "reference=" + reference
}
