package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

const paystackSignatureHeader = "x-paystack-signature"

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransaction struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type paystackWebhook struct {
	Event string              `json:"event"`
	Data  paystackTransaction `json:"data"`
}

// Paystack talks to the Paystack transaction API.
type Paystack struct {
	http   *resty.Client
	secret string
}

// NewPaystack builds the paystack variant.
func NewPaystack(cfg config.PaystackConfig, timeout time.Duration) (*Paystack, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("paystack: %w", ErrNotConfigured)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetAuthToken(cfg.SecretKey).
		SetHeader("Content-Type", "application/json")
	return &Paystack{http: client, secret: cfg.SecretKey}, nil
}

func (p *Paystack) Name() enums.GatewayName {
	return enums.GatewayPaystack
}

func (p *Paystack) InitializePayment(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]any{
		"email":        req.Email,
		"amount":       minorUnits(req.Amount),
		"currency":     req.Currency,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata":     req.Metadata,
	}
	var data paystackInitializeData
	if err := p.call(ctx, http.MethodPost, "/transaction/initialize", body, &data); err != nil {
		return nil, err
	}
	if data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize: authorization url missing")
	}
	return &InitializeResult{CheckoutURL: data.AuthorizationURL}, nil
}

func (p *Paystack) VerifyPayment(ctx context.Context, reference string) (*Verification, error) {
	var tx paystackTransaction
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.call(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return nil, err
	}
	return &Verification{
		Verdict:          paystackVerdict(tx.Status),
		Amount:           fromMinorUnits(tx.Amount),
		Currency:         tx.Currency,
		GatewayReference: fmt.Sprintf("%d", tx.ID),
		GatewayStatus:    tx.Status,
	}, nil
}

func (p *Paystack) ParseWebhook(_ context.Context, header http.Header, body []byte) (*WebhookEvent, error) {
	signature := header.Get(paystackSignatureHeader)
	if signature == "" || !validHMACSHA512(p.secret, body, signature) {
		return nil, ErrInvalidSignature
	}
	var payload paystackWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}

	event := &WebhookEvent{
		DeliveryID: fmt.Sprintf("%s:%d:%s", payload.Event, payload.Data.ID, payload.Data.Reference),
		EventType:  payload.Event,
		Reference:  payload.Data.Reference,
		Currency:   payload.Data.Currency,
	}
	switch payload.Event {
	case "charge.success":
		event.Verdict = enums.VerdictSuccess
		amount := fromMinorUnits(payload.Data.Amount)
		event.Amount = &amount
	case "charge.failed", "charge.abandoned":
		event.Verdict = enums.VerdictFailure
	}
	return event, nil
}

func (p *Paystack) call(ctx context.Context, method, path string, body any, out any) error {
	var envelope paystackEnvelope
	req := p.http.R().SetContext(ctx).SetResult(&envelope).SetError(&envelope)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	if resp.IsError() || !envelope.Status {
		return fmt.Errorf("paystack %s: status %d: %s", path, resp.StatusCode(), envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("paystack %s: decode data: %w", path, err)
	}
	return nil
}

func paystackVerdict(status string) enums.Verdict {
	switch strings.ToLower(status) {
	case "success":
		return enums.VerdictSuccess
	case "failed", "abandoned", "reversed":
		return enums.VerdictFailure
	default:
		return enums.VerdictPending
	}
}

func validHMACSHA512(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
