package gateways

import (
	"context"
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

func newTestFlutterwave(t *testing.T, handler http.HandlerFunc) *Flutterwave {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	gw, err := NewFlutterwave(config.FlutterwaveConfig{
		SecretKey:  "FLWSECK_TEST",
		SecretHash: "hash-123",
		BaseURL:    srv.URL,
	}, 5*time.Second)
	require.NoError(t, err)
	return gw
}

func TestFlutterwaveInitializeSendsMajorUnits(t *testing.T) {
	var received map[string]any
	gw := newTestFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		assert.Equal(t, "Bearer FLWSECK_TEST", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"Hosted Link","data":{"link":"https://checkout.flutterwave.com/v3/hosted/pay/xyz"}}`))
	})

	res, err := gw.InitializePayment(context.Background(), InitializeRequest{
		Reference:    "EV_2_BBBB1111",
		Email:        "fan@example.com",
		CustomerName: "Ama",
		Amount:       decimal.RequireFromString("12.5"),
		Currency:     "GHS",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.flutterwave.com/v3/hosted/pay/xyz", res.CheckoutURL)
	assert.Equal(t, "12.50", received["amount"])
	assert.Equal(t, "EV_2_BBBB1111", received["tx_ref"])
}

func TestFlutterwaveVerifyByReference(t *testing.T) {
	gw := newTestFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions/verify_by_reference", r.URL.Path)
		assert.Equal(t, "EV_2_BBBB1111", r.URL.Query().Get("tx_ref"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"verified","data":{"id":99,"tx_ref":"EV_2_BBBB1111","status":"successful","amount":12.5,"currency":"GHS"}}`))
	})

	v, err := gw.VerifyPayment(context.Background(), "EV_2_BBBB1111")
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictSuccess, v.Verdict)
	assert.True(t, decimal.RequireFromString("12.5").Equal(v.Amount))
	assert.Equal(t, "99", v.GatewayReference)
}

func TestFlutterwaveWebhook(t *testing.T) {
	gw := newTestFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"charge.completed","data":{"id":5,"tx_ref":"EV_3_CCCC2222","status":"failed","amount":10,"currency":"GHS"}}`)

	header := http.Header{}
	header.Set(flutterwaveHashHeader, "hash-123")
	event, err := gw.ParseWebhook(context.Background(), header, body)
	require.NoError(t, err)
	assert.Equal(t, enums.VerdictFailure, event.Verdict)
	assert.Equal(t, "EV_3_CCCC2222", event.Reference)
	assert.Nil(t, event.Amount)

	header.Set(flutterwaveHashHeader, "nope")
	_, err = gw.ParseWebhook(context.Background(), header, body)
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestFlutterwavePendingChargeIsNotActionable(t *testing.T) {
	gw := newTestFlutterwave(t, func(w http.ResponseWriter, r *http.Request) {})
	body := []byte(`{"event":"charge.completed","data":{"id":5,"tx_ref":"EV_3_CCCC2222","status":"pending"}}`)
	header := http.Header{}
	header.Set(flutterwaveHashHeader, "hash-123")

	event, err := gw.ParseWebhook(context.Background(), header, body)
	require.NoError(t, err)
	assert.False(t, event.Actionable())
}
