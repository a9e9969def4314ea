package provider

import (
	"encoding/json"
	"net/http"
	"net/url"

	"farmhub/config"
	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// Flutterwave authenticates webhooks with a shared secret hash carried in the
// verif-hash header.
type Flutterwave struct {
	cfg config.FlutterwaveConfig
}

func NewFlutterwave(cfg config.FlutterwaveConfig) *Flutterwave {
	return &Flutterwave{cfg: cfg}
}

func (f *Flutterwave) Name() string {
	return models.ProviderFlutterwave
}

func (f *Flutterwave) RefPrefix() string {
	return "FLW"
}

func (f *Flutterwave) VerifyWebhook(headers http.Header, _ url.Values) error {
	expected := f.cfg.SecretHash
	if expected == "" {
		expected = f.cfg.SecretKey
	}
	if !secretsEqual(expected, headers.Get("Verif-Hash")) {
		return apperr.SignatureInvalid("invalid webhook signature")
	}
	return nil
}

type flutterwavePayload struct {
	Status string `json:"status"`
	Data   struct {
		TxRef       string `json:"tx_ref"`
		TxRefAlt    string `json:"txRef"`
		TxReference string `json:"tx_reference"`
		Status      string `json:"status"`
	} `json:"data"`
	TxRef string `json:"tx_ref"`
}

func (f *Flutterwave) ParseWebhook(body []byte) (*WebhookResult, error) {
	var payload flutterwavePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Validation("malformed webhook payload")
	}

	ref := payload.Data.TxRef
	if ref == "" {
		ref = payload.Data.TxRefAlt
	}
	if ref == "" {
		ref = payload.Data.TxReference
	}
	if ref == "" {
		ref = payload.TxRef
	}
	if ref == "" {
		return nil, apperr.Validation("missing tx_ref")
	}

	status := payload.Data.Status
	if status == "" {
		status = payload.Status
	}

	return &WebhookResult{Reference: ref, Status: status}, nil
}

func (f *Flutterwave) InitPayload(payment *models.Payment) map[string]interface{} {
	return map[string]interface{}{
		"paymentId": payment.ID,
		"provider":  models.ProviderFlutterwave,
		"publicKey": f.cfg.PublicKey,
		"amount":    payment.Amount,
		"currency":  payment.Currency,
		"orderId":   payment.OrderID,
		"tx_ref":    payment.ProviderRef,
	}
}
