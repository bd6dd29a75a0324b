package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

type fakeCheckoutSessions struct {
	created *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeCheckoutSessions) Create(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return f.session, f.err
}

func (f *fakeCheckoutSessions) Get(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	return f.session, f.err
}

func TestStripeInitializeCreatesCheckoutSession(t *testing.T) {
	sessions := &fakeCheckoutSessions{session: &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}}
	gw, err := NewStripe("whsec_test", "", sessions)
	require.NoError(t, err)

	res, err := gw.InitializePayment(context.Background(), InitializeRequest{
		Reference:   "EV_4_DDDD3333",
		Email:       "fan@example.com",
		Amount:      decimal.RequireFromString("30"),
		Currency:    "GHS",
		CallbackURL: "http://localhost:3000/payment/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", res.GatewayReference)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", res.CheckoutURL)

	require.NotNil(t, sessions.created)
	assert.Equal(t, "EV_4_DDDD3333", *sessions.created.ClientReferenceID)
	assert.Equal(t, "EV_4_DDDD3333", sessions.created.Metadata["reference"])
	require.Len(t, sessions.created.LineItems, 1)
	assert.Equal(t, int64(3000), *sessions.created.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "ghs", *sessions.created.LineItems[0].PriceData.Currency)
	assert.Equal(t, "http://localhost:3000/payment/callback?reference=EV_4_DDDD3333", *sessions.created.SuccessURL)
}

func TestStripeVerifyUsesSessionState(t *testing.T) {
	sessions := &fakeCheckoutSessions{session: &stripe.CheckoutSession{
		ID:            "cs_test_2",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Status:        stripe.CheckoutSessionStatusExpired,
		AmountTotal:   3000,
		Currency:      "ghs",
	}}
	gw, err := NewStripe("whsec_test", "", sessions)
	require.NoError(t, err)

	v, err := gw.VerifyPayment(context.Background(), "cs_test_2")
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictFailure, v.Verdict)
	assert.Equal(t, "GHS", v.Currency)

	sessions.session.Status = stripe.CheckoutSessionStatusOpen
	v, err = gw.VerifyPayment(context.Background(), "cs_test_2")
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictPending, v.Verdict)

	sessions.session.PaymentStatus = stripe.CheckoutSessionPaymentStatusPaid
	v, err = gw.VerifyPayment(context.Background(), "cs_test_2")
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictSuccess, v.Verdict)
	assert.True(t, decimal.NewFromInt(30).Equal(v.Amount))
}

func TestStripeWebhookCompletedSession(t *testing.T) {
	gw, err := NewStripe("whsec_test", "", &fakeCheckoutSessions{})
	require.NoError(t, err)

	payload := buildCheckoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{
		ID:                "cs_test_3",
		ClientReferenceID: "EV_5_EEEE4444",
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:       1500,
		Currency:          "ghs",
	})
	header := http.Header{}
	header.Set(stripeSignatureHeader, stripeSignature(payload, "whsec_test", time.Now().Unix()))

	event, err := gw.ParseWebhook(context.Background(), header, payload)
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictSuccess, event.Verdict)
	assert.Equal(t, "EV_5_EEEE4444", event.Reference)
	require.NotNil(t, event.Amount)
	assert.True(t, decimal.NewFromInt(15).Equal(*event.Amount))
}

func TestStripeWebhookExpiredSessionFails(t *testing.T) {
	gw, err := NewStripe("whsec_test", "", &fakeCheckoutSessions{})
	require.NoError(t, err)

	payload := buildCheckoutEvent(t, stripe.EventTypeCheckoutSessionExpired, &stripe.CheckoutSession{
		ID:       "cs_test_4",
		Metadata: map[string]string{"reference": "EV_6_FFFF5555"},
		Status:   stripe.CheckoutSessionStatusExpired,
	})
	header := http.Header{}
	header.Set(stripeSignatureHeader, stripeSignature(payload, "whsec_test", time.Now().Unix()))

	event, err := gw.ParseWebhook(context.Background(), header, payload)
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictFailure, event.Verdict)
	assert.Equal(t, "EV_6_FFFF5555", event.Reference)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	gw, err := NewStripe("whsec_test", "", &fakeCheckoutSessions{})
	require.NoError(t, err)

	payload := buildCheckoutEvent(t, stripe.EventTypeCheckoutSessionCompleted, &stripe.CheckoutSession{ID: "cs"})
	header := http.Header{}
	header.Set(stripeSignatureHeader, "t=1,v1=invalid")

	_, err = gw.ParseWebhook(context.Background(), header, payload)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func buildCheckoutEvent(t *testing.T, eventType stripe.EventType, sess *stripe.CheckoutSession) []byte {
	t.Helper()
	raw, err := json.Marshal(sess)
	require.NoError(t, err)
	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       eventType,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func stripeSignature(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
