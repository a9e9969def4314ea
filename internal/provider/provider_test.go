package provider

import (
	"net/http"
	"net/url"
	"testing"

	"farmhub/config"
	"farmhub/internal/apperr"
	"farmhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryResolvesKnownProviders(t *testing.T) {
	r := NewRegistry(config.PaymentsConfig{})

	for _, name := range []string{models.ProviderFlutterwave, models.ProviderPaga} {
		g, err := r.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, g.Name())
	}

	_, err := r.Get("stripe")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestFlutterwaveVerifyWebhook(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{SecretHash: "hash-123"})

	headers := http.Header{}
	headers.Set("Verif-Hash", "hash-123")
	assert.NoError(t, f.VerifyWebhook(headers, url.Values{}))

	headers.Set("Verif-Hash", "wrong")
	err := f.VerifyWebhook(headers, url.Values{})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))

	err = f.VerifyWebhook(http.Header{}, url.Values{})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
}

func TestFlutterwaveVerifyFallsBackToSecretKey(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{SecretKey: "sk-fallback"})

	headers := http.Header{}
	headers.Set("Verif-Hash", "sk-fallback")
	assert.NoError(t, f.VerifyWebhook(headers, url.Values{}))
}

func TestFlutterwaveVerifyFailsClosedWithoutSecret(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{})

	// no configured secret must never verify, even an empty header
	err := f.VerifyWebhook(http.Header{}, url.Values{})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
}

func TestFlutterwaveParseWebhookReferenceVariants(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{})

	cases := []struct {
		name string
		body string
	}{
		{"nested tx_ref", `{"data":{"tx_ref":"FLW-1-42","status":"successful"}}`},
		{"nested txRef", `{"data":{"txRef":"FLW-1-42","status":"successful"}}`},
		{"nested tx_reference", `{"data":{"tx_reference":"FLW-1-42","status":"successful"}}`},
		{"top-level tx_ref", `{"tx_ref":"FLW-1-42","status":"successful"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.ParseWebhook([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, "FLW-1-42", result.Reference)
			assert.Equal(t, "successful", result.Status)
		})
	}
}

func TestFlutterwaveParseWebhookMissingReference(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{})

	_, err := f.ParseWebhook([]byte(`{"data":{"status":"successful"}}`))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.ParseWebhook([]byte("{"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestFlutterwaveInitPayload(t *testing.T) {
	f := NewFlutterwave(config.FlutterwaveConfig{PublicKey: "pk-live"})

	payload := f.InitPayload(&models.Payment{
		ID:          7,
		OrderID:     3,
		Amount:      2500,
		Currency:    "USD",
		ProviderRef: "FLW-3-99",
	})

	assert.Equal(t, "pk-live", payload["publicKey"])
	assert.Equal(t, "FLW-3-99", payload["tx_ref"])
	assert.Equal(t, int64(2500), payload["amount"])
}

func TestPagaVerifyWebhookTokenSources(t *testing.T) {
	p := NewPaga(config.PagaConfig{WebhookToken: "tok-1"})

	query := url.Values{}
	query.Set("token", "tok-1")
	assert.NoError(t, p.VerifyWebhook(http.Header{}, query))

	headers := http.Header{}
	headers.Set("X-Webhook-Token", "tok-1")
	assert.NoError(t, p.VerifyWebhook(headers, url.Values{}))

	// query takes precedence over the header
	query.Set("token", "bad")
	err := p.VerifyWebhook(headers, query)
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))

	err = p.VerifyWebhook(http.Header{}, url.Values{})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
}

func TestPagaVerifyFailsClosedWithoutToken(t *testing.T) {
	p := NewPaga(config.PagaConfig{})

	err := p.VerifyWebhook(http.Header{}, url.Values{})
	assert.True(t, apperr.Is(err, apperr.KindSignatureInvalid))
}

func TestPagaParseWebhookReferenceVariants(t *testing.T) {
	p := NewPaga(config.PagaConfig{})

	cases := []struct {
		name string
		body string
	}{
		{"reference", `{"reference":"PAGA-1-42","status":"SUCCESS"}`},
		{"tx_ref", `{"tx_ref":"PAGA-1-42","status":"SUCCESS"}`},
		{"txRef", `{"txRef":"PAGA-1-42","status":"SUCCESS"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := p.ParseWebhook([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, "PAGA-1-42", result.Reference)
			assert.Equal(t, "SUCCESS", result.Status)
		})
	}
}

func TestPagaParseWebhookMissingReference(t *testing.T) {
	p := NewPaga(config.PagaConfig{})

	_, err := p.ParseWebhook([]byte(`{"status":"SUCCESS"}`))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
