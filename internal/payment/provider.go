package payment

import (
	"context"
	"net/http"

	"github.com/gardencraft/storefront-api/internal/order"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

// SessionRequest captures the information required to open a hosted checkout
// session with a provider. The quote amounts are pinned into the session
// metadata so ingestion can trust them later.
type SessionRequest struct {
	Quote         pricing.Quote
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// Session is the minimal information returned by a provider when a hosted
// checkout session is created.
type Session struct {
	ID  string
	URL string
}

// WebhookVerifyResult contains the normalised data extracted from a webhook
// notification after signature verification. Notification is set only for
// event types that complete a payment; other event types verify cleanly but
// carry nothing to ingest.
type WebhookVerifyResult struct {
	Valid        bool
	EventType    string
	Notification *order.Notification
	Err          error
}

// Provider abstracts the operations required from an upstream payment provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}
