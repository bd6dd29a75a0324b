package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/easevote-backend/internal/settings"
	"github.com/angelmondragon/easevote-backend/internal/ussd"
	"github.com/angelmondragon/easevote-backend/internal/votes"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

type testVotesService struct {
	results *votes.Results
	nominee *votes.Nominee
	err     error
}

func (s *testVotesService) Results(context.Context, uuid.UUID) (*votes.Results, error) {
	return s.results, s.err
}

func (s *testVotesService) Nominee(context.Context, string) (*votes.Nominee, error) {
	return s.nominee, s.err
}

type testSettingsService struct {
	active enums.GatewayName
}

func (s *testSettingsService) GetActiveGateway(context.Context) (*settings.GatewaySetting, error) {
	return &settings.GatewaySetting{Active: s.active, Configured: []enums.GatewayName{enums.GatewayPaystack, enums.GatewayStripe}}, nil
}

func (s *testSettingsService) SetActiveGateway(_ context.Context, raw string) (*settings.GatewaySetting, error) {
	name, err := enums.ParseGatewayName(raw)
	if err != nil || name == enums.GatewayFlutterwave {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment gateway not configured")
	}
	s.active = name
	return s.GetActiveGateway(context.Background())
}

type testUSSDService struct {
	got ussd.Request
}

func (s *testUSSDService) Handle(_ context.Context, req ussd.Request) (*ussd.Response, error) {
	s.got = req
	return &ussd.Response{UserID: req.UserID, MSISDN: req.MSISDN, Msg: "Welcome to EaseVote", MsgType: true}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestEventResults(t *testing.T) {
	eventID := uuid.New()
	svc := &testVotesService{results: &votes.Results{EventID: eventID, TotalVotes: 40}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/"+eventID.String()+"/results", nil)
	req = addRouteParam(req, "eventId", eventID.String())
	resp := httptest.NewRecorder()
	EventResults(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var data votes.Results
	decodeData(t, resp, &data)
	if data.TotalVotes != 40 {
		t.Fatalf("expected 40 votes got %d", data.TotalVotes)
	}
}

func TestNomineeByCodeNotFound(t *testing.T) {
	svc := &testVotesService{err: pkgerrors.New(pkgerrors.CodeNotFound, "nominee not found")}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nominees/ZZ99", nil)
	req = addRouteParam(req, "code", "ZZ99")
	resp := httptest.NewRecorder()
	NomineeByCode(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminSetPaymentGateway(t *testing.T) {
	svc := &testSettingsService{active: enums.GatewayPaystack}

	req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings/payment-gateway", strings.NewReader(`{"gateway":"stripe"}`))
	resp := httptest.NewRecorder()
	AdminSetPaymentGateway(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var data settings.GatewaySetting
	decodeData(t, resp, &data)
	if data.Active != enums.GatewayStripe {
		t.Fatalf("expected stripe active got %s", data.Active)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/v1/admin/settings/payment-gateway", strings.NewReader(`{"gateway":"flutterwave"}`))
	resp = httptest.NewRecorder()
	AdminSetPaymentGateway(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings/payment-gateway", nil)
	resp = httptest.NewRecorder()
	AdminPaymentGateway(svc, testLogger())(resp, req)
	decodeData(t, resp, &data)
	if data.Active != enums.GatewayStripe {
		t.Fatalf("expected failed update to keep stripe, got %s", data.Active)
	}
}

func TestUSSDCallbackWritesBarePayload(t *testing.T) {
	svc := &testUSSDService{}
	body := `{"USERID":"nalo","MSISDN":"233241234567","USERDATA":"*920*44#","MSGTYPE":true,"NETWORK":"MTN","SESSIONID":"s-1","EXTRA":"ignored"}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ussd", strings.NewReader(body))
	resp := httptest.NewRecorder()
	USSDCallback(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.got.MSISDN != "233241234567" || !svc.got.MsgType {
		t.Fatalf("unexpected request %+v", svc.got)
	}
	var payload map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, wrapped := payload["data"]; wrapped {
		t.Fatal("ussd response must not be wrapped in the API envelope")
	}
	if payload["MSG"] != "Welcome to EaseVote" || payload["MSGTYPE"] != true {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"db": stubPinger{}, "redis": stubPinger{}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), map[string]Pinger{"redis": stubPinger{err: errors.New("dial tcp: refused")}})(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	HealthLive(cfg)(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK || resp.Header().Get("X-EaseVote-Env") != "test" {
		t.Fatalf("unexpected live response %d", resp.Code)
	}
}
