package provider

import (
	"encoding/json"
	"net/http"
	"net/url"

	"farmhub/config"
	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// Paga authenticates webhooks with a shared token passed either as a query
// parameter or in the X-Webhook-Token header.
type Paga struct {
	cfg config.PagaConfig
}

func NewPaga(cfg config.PagaConfig) *Paga {
	return &Paga{cfg: cfg}
}

func (p *Paga) Name() string {
	return models.ProviderPaga
}

func (p *Paga) RefPrefix() string {
	return "PAGA"
}

func (p *Paga) VerifyWebhook(headers http.Header, query url.Values) error {
	token := query.Get("token")
	if token == "" {
		token = headers.Get("X-Webhook-Token")
	}
	if !secretsEqual(p.cfg.WebhookToken, token) {
		return apperr.SignatureInvalid("invalid webhook token")
	}
	return nil
}

type pagaPayload struct {
	Reference string `json:"reference"`
	TxRef     string `json:"tx_ref"`
	TxRefAlt  string `json:"txRef"`
	Status    string `json:"status"`
}

func (p *Paga) ParseWebhook(body []byte) (*WebhookResult, error) {
	var payload pagaPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperr.Validation("malformed webhook payload")
	}

	ref := payload.Reference
	if ref == "" {
		ref = payload.TxRef
	}
	if ref == "" {
		ref = payload.TxRefAlt
	}
	if ref == "" {
		return nil, apperr.Validation("missing reference")
	}

	return &WebhookResult{Reference: ref, Status: payload.Status}, nil
}

func (p *Paga) InitPayload(payment *models.Payment) map[string]interface{} {
	return map[string]interface{}{
		"paymentId": payment.ID,
		"provider":  models.ProviderPaga,
		"username":  p.cfg.Username,
		"baseUrl":   p.cfg.BaseURL,
		"amount":    payment.Amount,
		"currency":  payment.Currency,
		"orderId":   payment.OrderID,
		"reference": payment.ProviderRef,
	}
}
