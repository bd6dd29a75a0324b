package gateways

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

const flutterwaveHashHeader = "verif-hash"

type flutterwaveEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flutterwaveTransaction struct {
	ID       int64           `json:"id"`
	TxRef    string          `json:"tx_ref"`
	Status   string          `json:"status"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type flutterwaveWebhook struct {
	Event string                 `json:"event"`
	Data  flutterwaveTransaction `json:"data"`
}

// Flutterwave talks to the Flutterwave v3 API.
type Flutterwave struct {
	http       *resty.Client
	secretHash string
}

// NewFlutterwave builds the flutterwave variant.
func NewFlutterwave(cfg config.FlutterwaveConfig, timeout time.Duration) (*Flutterwave, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("flutterwave: %w", ErrNotConfigured)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json")
	return &Flutterwave{http: client, secretHash: cfg.SecretHash}, nil
}

func (f *Flutterwave) Name() enums.GatewayName {
	return enums.GatewayFlutterwave
}

func (f *Flutterwave) InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	customer := map[string]string{"email": req.Email}
	if req.CustomerName != "" {
		customer["name"] = req.CustomerName
	}
	if req.CustomerPhone != "" {
		customer["phonenumber"] = req.CustomerPhone
	}
	body := map[string]any{
		"tx_ref":       req.Reference,
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"redirect_url": req.CallbackURL,
		"customer":     customer,
		"meta":         req.Metadata,
		"customizations": map[string]string{
			"title": req.Description,
		},
	}
	var data struct {
		Link string `json:"link"`
	}
	if err := f.call(ctx, f.http.R().SetBody(body), http.MethodPost, "/payments", &data); err != nil {
		return nil, err
	}
	if data.Link == "" {
		return nil, fmt.Errorf("flutterwave payments: link missing")
	}
	return &InitializeResult{CheckoutURL: data.Link}, nil
}

func (f *Flutterwave) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	var tx flutterwaveTransaction
	req := f.http.R().SetQueryParam("tx_ref", reference)
	if err := f.call(ctx, req, http.MethodGet, "/transactions/verify_by_reference", &tx); err != nil {
		return nil, err
	}
	return &Verification{
		Verdict:          flutterwaveVerdict(tx.Status),
		Amount:           tx.Amount,
		Currency:         tx.Currency,
		GatewayReference: fmt.Sprintf("%d", tx.ID),
		GatewayStatus:    tx.Status,
	}, nil
}

func (f *Flutterwave) ParseWebhook(_ context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	hash := header.Get(flutterwaveHashHeader)
	if hash == "" || subtle.ConstantTimeCompare([]byte(hash), []byte(f.secretHash)) != 1 {
		return nil, ErrInvalidSignature
	}
	var payload flutterwaveWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	event := &WebhookEvent{
		DeliveryID: fmt.Sprintf("%s:%d:%s", payload.Event, payload.Data.ID, payload.Data.Status),
		EventType:  payload.Event,
		Reference:  payload.Data.TxRef,
		Currency:   payload.Data.Currency,
	}
	if payload.Event == "charge.completed" {
		event.Verdict = flutterwaveVerdict(payload.Data.Status)
		if event.Verdict == enums.VerdictPending {
			event.Verdict = ""
		}
		if event.Verdict == enums.VerdictSuccess {
			amount := payload.Data.Amount
			event.Amount = &amount
		}
	}
	return event, nil
}

func (f *Flutterwave) call(ctx context.Context, req *resty.Request, method, path string, out any) error {
	var envelope flutterwaveEnvelope
	resp, err := req.SetContext(ctx).SetResult(&envelope).SetError(&envelope).Execute(method, path)
	if err != nil {
		return fmt.Errorf("flutterwave %s: %w", path, err)
	}
	if resp.IsError() || !strings.EqualFold(envelope.Status, "success") {
		return fmt.Errorf("flutterwave %s: status %d: %s", path, resp.StatusCode(), envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("flutterwave %s: decode data: %w", path, err)
	}
	return nil
}

func flutterwaveVerdict(status string) enums.Verdict {
	switch strings.ToLower(status) {
	case "successful":
		return enums.VerdictSuccess
	case "failed", "cancelled":
		return enums.VerdictFailure
	default:
		return enums.VerdictPending
	}
}
