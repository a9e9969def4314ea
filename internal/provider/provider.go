// Package provider adapts external payment processors to one internal
// contract: an initiation payload going out, and a verified, normalized
// {reference, status} coming back on the webhook path.
package provider

import (
	"crypto/subtle"
	"net/http"
	"net/url"

	"farmhub/config"
	"farmhub/internal/apperr"
	"farmhub/internal/models"
)

// WebhookResult is the normalized shape of a provider callback.
type WebhookResult struct {
	Reference string
	Status    string
}

// Gateway is one payment provider integration.
type Gateway interface {
	Name() string
	// RefPrefix tags provider references so they are globally unique across
	// providers.
	RefPrefix() string
	// VerifyWebhook authenticates a callback before anything is parsed or
	// looked up.
	VerifyWebhook(headers http.Header, query url.Values) error
	// ParseWebhook extracts the normalized reference and status text.
	ParseWebhook(body []byte) (*WebhookResult, error)
	// InitPayload builds the provider-specific checkout payload returned to
	// the buyer on initiation.
	InitPayload(payment *models.Payment) map[string]interface{}
}

// Registry holds the configured gateways keyed by provider name.
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry wires all supported providers from configuration.
func NewRegistry(cfg config.PaymentsConfig) *Registry {
	r := &Registry{gateways: make(map[string]Gateway)}
	r.register(NewFlutterwave(cfg.Flutterwave))
	r.register(NewPaga(cfg.Paga))
	return r
}

func (r *Registry) register(g Gateway) {
	r.gateways[g.Name()] = g
}

// Get returns the gateway for a provider name.
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, apperr.NotFound("unknown payment provider: %s", name)
	}
	return g, nil
}

// secretsEqual compares a presented secret in constant time. An empty
// configured secret always fails closed.
func secretsEqual(configured, presented string) bool {
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
