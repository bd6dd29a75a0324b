package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

func newTestPaystack(t *testing.T, handler http.HandlerFunc) *Paystack {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewPaystack(config.PaystackConfig{SecretKey: "sk_test_paystack", BaseURL: srv.URL}, 5*time.Second)
	require.NoError(t, err)
	return gw
}

func TestPaystackInitializeSendsMinorUnits(t *testing.T) {
	var received map[string]any
	gw := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_paystack", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"EV_1_ABCDEF01"}}`))
	})

	res, err := gw.InitializePayment(context.Background(), InitializeRequest{
		Reference:   "EV_1_ABCDEF01",
		Email:       "fan@example.com",
		Amount:      decimal.RequireFromString("25.50"),
		Currency:    "GHS",
		CallbackURL: "http://localhost:3000/payment/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.paystack.com/abc", res.CheckoutURL)
	assert.Equal(t, float64(2550), received["amount"])
	assert.Equal(t, "EV_1_ABCDEF01", received["reference"])
}

func TestPaystackInitializeSurfacesGatewayRejection(t *testing.T) {
	gw := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid key"}`))
	})

	_, err := gw.InitializePayment(context.Background(), InitializeRequest{Reference: "EV_1", Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid key")
}

func TestPaystackVerifyMapsStatuses(t *testing.T) {
	cases := map[string]enums.Verdict{
		"success":   enums.VerdictSuccess,
		"failed":    enums.VerdictFailure,
		"abandoned": enums.VerdictFailure,
		"ongoing":   enums.VerdictPending,
	}
	for status, want := range cases {
		status, want := status, want
		t.Run(status, func(t *testing.T) {
			gw := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/transaction/verify/EV_9_0000AAAA", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{"id":42,"status":"` + status + `","reference":"EV_9_0000AAAA","amount":1000,"currency":"GHS"}}`))
			})
			v, err := gw.VerifyPayment(context.Background(), "EV_9_0000AAAA")
			require.NoError(t, err)
			assert.Equal(t, want, v.Verdict)
			assert.True(t, decimal.NewFromInt(10).Equal(v.Amount))
		})
	}
}

func TestPaystackWebhookSignature(t *testing.T) {
	gw := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"charge.success","data":{"id":7,"status":"success","reference":"EV_1_AAAA0000","amount":5000,"currency":"GHS"}}`)

	header := http.Header{}
	header.Set(paystackSignatureHeader, signSHA512("sk_test_paystack", body))
	event, err := gw.ParseWebhook(context.Background(), header, body)
	require.NoError(t, err)
	assert.True(t, event.Actionable())
	assert.Equal(t, enums.VerdictSuccess, event.Verdict)
	assert.Equal(t, "EV_1_AAAA0000", event.Reference)
	require.NotNil(t, event.Amount)
	assert.True(t, decimal.NewFromInt(50).Equal(*event.Amount))

	header.Set(paystackSignatureHeader, signSHA512("wrong", body))
	_, err = gw.ParseWebhook(context.Background(), header, body)
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = gw.ParseWebhook(context.Background(), http.Header{}, body)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestPaystackWebhookIgnoresUnrelatedEvents(t *testing.T) {
	gw := newTestPaystack(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"transfer.success","data":{"id":1,"reference":"TRF_1"}}`)
	header := http.Header{}
	header.Set(paystackSignatureHeader, signSHA512("sk_test_paystack", body))

	event, err := gw.ParseWebhook(context.Background(), header, body)
	require.NoError(t, err)
	assert.False(t, event.Actionable())
}

func TestNewPaystackRequiresSecret(t *testing.T) {
	_, err := NewPaystack(config.PaystackConfig{}, time.Second)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func signSHA512(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
