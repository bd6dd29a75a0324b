package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/db/models"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

const paystackSecret = "sk_test_webhook"

type fakeSettler struct {
	mu     sync.Mutex
	inputs []purchases.SettleInput
	err    error
}

func (f *fakeSettler) Settle(_ context.Context, input purchases.SettleInput) (*purchases.SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return &purchases.SettleResult{
		Purchase:     &models.Purchase{PaymentReference: input.Reference, Status: enums.PurchaseStatusPaid},
		Transitioned: len(f.inputs) == 1,
	}, nil
}

type resolverFunc func(enums.GatewayName) (gateways.Gateway, error)

func (f resolverFunc) ByName(name enums.GatewayName) (gateways.Gateway, error) { return f(name) }

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *inMemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *inMemoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *inMemoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *inMemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

type fixture struct {
	handler http.HandlerFunc
	settler *fakeSettler
	store   *inMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	paystack, err := gateways.NewPaystack(config.PaystackConfig{SecretKey: paystackSecret, BaseURL: "http://127.0.0.1:0"}, time.Second)
	require.NoError(t, err)
	resolver := resolverFunc(func(name enums.GatewayName) (gateways.Gateway, error) {
		if name == enums.GatewayPaystack {
			return paystack, nil
		}
		return nil, gateways.ErrNotConfigured
	})
	store := &inMemoryStore{data: map[string]string{}}
	guard, err := gateways.NewWebhookGuard(store, time.Hour)
	require.NoError(t, err)
	settler := &fakeSettler{}
	return &fixture{
		handler: GatewayWebhook(resolver, settler, guard, nil),
		settler: settler,
		store:   store,
	}
}

func (f *fixture) post(gateway string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+gateway, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("gateway", gateway)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

var chargeSuccess = []byte(`{"event":"charge.success","data":{"id":4099,"reference":"EV_1736500000000_AB12CD34","amount":5000,"currency":"GHS","status":"success"}}`)

func TestGatewayWebhookSettlesOnceAndAcknowledgesDuplicates(t *testing.T) {
	f := newFixture(t)

	rec := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, f.settler.inputs, 1)

	input := f.settler.inputs[0]
	require.Equal(t, "EV_1736500000000_AB12CD34", input.Reference)
	require.Equal(t, enums.VerdictSuccess, input.Verdict)
	require.Equal(t, enums.GatewayPaystack, input.Gateway)
	require.NotNil(t, input.Amount)
	require.True(t, input.Amount.Equal(decimal.RequireFromString("50")))

	replay := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusOK, replay.Code)
	require.Len(t, f.settler.inputs, 1, "duplicate delivery must not settle again")
}

func TestGatewayWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)

	rec := f.post("paystack", chargeSuccess, "deadbeef")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	missing := f.post("paystack", chargeSuccess, "")
	require.Equal(t, http.StatusUnauthorized, missing.Code)
	require.Empty(t, f.settler.inputs)
}

func TestGatewayWebhookUnknownGateway(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusNotFound, f.post("mpesa", chargeSuccess, sign(chargeSuccess)).Code)
	require.Equal(t, http.StatusNotFound, f.post("stripe", chargeSuccess, sign(chargeSuccess)).Code)
}

func TestGatewayWebhookIgnoresNonSettlingEvents(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event":"transfer.success","data":{"id":1,"reference":"TRF_1"}}`)

	rec := f.post("paystack", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, f.settler.inputs)
}

func TestGatewayWebhookAcknowledgesUnknownReference(t *testing.T) {
	f := newFixture(t)
	f.settler.err = purchases.ErrPurchaseNotFound

	rec := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGatewayWebhookForgetsDeliveryWhenSettlementFails(t *testing.T) {
	f := newFixture(t)
	f.settler.err = context.DeadlineExceeded

	rec := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, f.store.data, "failed delivery must be retryable")

	f.settler.err = nil
	retry := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusOK, retry.Code)
	require.Len(t, f.settler.inputs, 2)
}

func TestGatewayWebhookRetriesWhileAnotherDeliveryIsInFlight(t *testing.T) {
	f := newFixture(t)
	key := f.store.IdempotencyKey("webhook-paystack", "charge.success:4099:EV_1736500000000_AB12CD34")
	// a claim left behind by a request that never finished
	f.store.data[key] = "pending"

	rec := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Empty(t, f.settler.inputs)

	// the claim lapses and the gateway retries
	delete(f.store.data, key)
	retry := f.post("paystack", chargeSuccess, sign(chargeSuccess))
	require.Equal(t, http.StatusOK, retry.Code)
	require.Len(t, f.settler.inputs, 1)
	require.Equal(t, "done", f.store.data[key])
}
