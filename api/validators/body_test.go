package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/easevote-backend/pkg/errors"
)

type sampleRequest struct {
	EventID  string `json:"eventId" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,min=1,max=10"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Gateway  string `json:"gateway" validate:"omitempty,gateway"`
}

const validSample = `"eventId":"6f1c1f5e-4c39-4e39-9d8e-0d7a3b1f2c11","quantity":2,"email":"a@b.co"`

func postJSON(body string) *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func detailsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok, "details %T", typed.Details())
	return details
}

func TestDecodeJSONBodyReportsFieldErrorsByJSONName(t *testing.T) {
	var dest sampleRequest
	details := detailsOf(t, DecodeJSONBody(postJSON(`{"eventId":"nope","quantity":0,"email":"x","phone":"12","gateway":"square"}`), &dest))

	assert.Equal(t, "must be a valid uuid", details["eventId"])
	assert.Equal(t, "is required", details["quantity"])
	assert.Equal(t, "must be a valid email", details["email"])
	assert.Equal(t, "must be a valid phone number", details["phone"])
	assert.Equal(t, "must be a supported payment gateway", details["gateway"])
}

func TestDecodeJSONBodyAcceptsCustomTags(t *testing.T) {
	var dest sampleRequest
	require.NoError(t, DecodeJSONBody(postJSON(`{`+validSample+`,"phone":"+233 24 123 4567","gateway":"Paystack"}`), &dest))
	assert.Equal(t, 2, dest.Quantity)
}

type contactRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (r *contactRequest) Normalize() {
	r.Email = NormalizeEmail(r.Email)
}

func TestDecodeJSONBodyNormalizesBeforeValidating(t *testing.T) {
	var dest contactRequest
	require.NoError(t, DecodeJSONBody(postJSON(`{"email":"  Ama@Example.COM "}`), &dest))
	assert.Equal(t, "ama@example.com", dest.Email)

	var plain sampleRequest
	details := detailsOf(t, DecodeJSONBody(postJSON(`{"eventId":"6f1c1f5e-4c39-4e39-9d8e-0d7a3b1f2c11","quantity":2,"email":" a@b.co "}`), &plain))
	assert.Equal(t, "must be a valid email", details["email"])
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{` + validSample + `,"extra":true}`,
		"syntax":        `{"eventId":`,
		"trailing":      `{` + validSample + `}{}`,
		"empty":         ``,
	}
	for name, body := range cases {
		var dest sampleRequest
		assert.True(t, pkgerrors.HasCode(DecodeJSONBody(postJSON(body), &dest), pkgerrors.CodeValidation), name)
	}

	var dest sampleRequest
	details := detailsOf(t, DecodeJSONBody(postJSON(`{"quantity":"two"}`), &dest))
	assert.Equal(t, "must be int", details["quantity"])
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	padding := strings.Repeat("a", MaxBodyBytes)
	var dest struct {
		Name string `json:"name"`
	}
	err := DecodeJSONBody(postJSON(`{"name":"`+padding+`"}`), &dest)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyLenientAcceptsUnknownFields(t *testing.T) {
	var dest sampleRequest
	require.NoError(t, DecodeJSONBodyLenient(postJSON(`{`+validSample+`,"extra":true}`), &dest))
	require.Equal(t, 2, dest.Quantity)
}
