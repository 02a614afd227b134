package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gardencraft/storefront-api/internal/order"
)

// Metadata keys pinned into the checkout session at creation time and read
// back by ingestion. Amounts are integer cents serialised as strings.
const (
	metaItems         = "items"
	metaSubtotal      = "subtotal"
	metaShippingCost  = "shippingCost"
	metaTaxAmount     = "taxAmount"
	metaShippingState = "shippingState"
)

const eventCheckoutCompleted = "checkout.session.completed"

// Stripe implements Provider against the Stripe hosted checkout API.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	CurrencyCode  string
	TimestampSkew time.Duration
	Client        *http.Client
}

func (s Stripe) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s Stripe) apiBase() string {
	base := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/")
	if base == "" {
		base = "https://api.stripe.com"
	}
	return base
}

func (s Stripe) currency() string {
	if c := strings.ToLower(strings.TrimSpace(s.CurrencyCode)); c != "" {
		return c
	}
	return "usd"
}

// CreateCheckoutSession opens a hosted checkout session carrying one line
// item per priced cart line plus flat shipping and tax lines. The quote's
// amounts and item snapshot travel in the session metadata.
func (s Stripe) CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error) {
	if strings.TrimSpace(s.SecretKey) == "" {
		return Session{}, errors.New("stripe secret key not configured")
	}
	if len(req.Quote.Items) == 0 {
		return Session{}, errors.New("quote has no items")
	}

	itemsJSON, err := json.Marshal(req.Quote.Items)
	if err != nil {
		return Session{}, fmt.Errorf("encode items metadata: %w", err)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.CustomerEmail != "" {
		form.Set("customer_email", req.CustomerEmail)
	}
	currency := s.currency()
	for i, it := range req.Quote.Items {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(it.UnitPrice, 10))
		form.Set(prefix+"[price_data][product_data][name]", it.Name)
		form.Set(prefix+"[quantity]", strconv.Itoa(it.Quantity))
	}
	form.Set("shipping_options[0][shipping_rate_data][type]", "fixed_amount")
	form.Set("shipping_options[0][shipping_rate_data][display_name]", "Shipping")
	form.Set("shipping_options[0][shipping_rate_data][fixed_amount][currency]", currency)
	form.Set("shipping_options[0][shipping_rate_data][fixed_amount][amount]", strconv.FormatInt(req.Quote.ShippingCost, 10))
	if req.Quote.TaxAmount > 0 {
		prefix := fmt.Sprintf("line_items[%d]", len(req.Quote.Items))
		form.Set(prefix+"[price_data][currency]", currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(req.Quote.TaxAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", "Sales Tax")
		form.Set(prefix+"[quantity]", "1")
	}
	form.Set("metadata["+metaItems+"]", string(itemsJSON))
	form.Set("metadata["+metaSubtotal+"]", strconv.FormatInt(req.Quote.Subtotal, 10))
	form.Set("metadata["+metaShippingCost+"]", strconv.FormatInt(req.Quote.ShippingCost, 10))
	form.Set("metadata["+metaTaxAmount+"]", strconv.FormatInt(req.Quote.TaxAmount, 10))
	form.Set("metadata["+metaShippingState+"]", req.Quote.ShippingState)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase()+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.SecretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient().Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("create checkout session: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, fmt.Errorf("read checkout session response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(respBody, &apiErr)
		if apiErr.Error.Message != "" {
			return Session{}, fmt.Errorf("stripe: %s", apiErr.Error.Message)
		}
		return Session{}, fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}
	var created struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &created); err != nil {
		return Session{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if created.ID == "" {
		return Session{}, errors.New("stripe: response missing session id")
	}
	return Session{ID: created.ID, URL: created.URL}, nil
}

type stripeSession struct {
	ID              string `json:"id"`
	PaymentIntent   string `json:"payment_intent"`
	AmountTotal     int64  `json:"amount_total"`
	CustomerDetails struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingCost struct {
		AmountTotal int64 `json:"amount_total"`
	} `json:"shipping_cost"`
	ShippingDetails struct {
		Name    string `json:"name"`
		Address struct {
			Line1      string `json:"line1"`
			Line2      string `json:"line2"`
			City       string `json:"city"`
			State      string `json:"state"`
			PostalCode string `json:"postal_code"`
			Country    string `json:"country"`
		} `json:"address"`
	} `json:"shipping_details"`
	Metadata map[string]string `json:"metadata"`
}

// VerifyWebhook checks the Stripe-Signature header against the webhook
// secret and, for completed checkout sessions, extracts a normalised
// notification. Other event types verify cleanly with no notification.
func (s Stripe) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	timestamp, signatures, err := parseSignatureHeader(r.Header.Get("Stripe-Signature"))
	if err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	skew := s.TimestampSkew
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	if age := time.Since(time.Unix(timestamp, 0)); age > skew || age < -skew {
		return WebhookVerifyResult{Valid: false, Err: errors.New("signature timestamp outside tolerance")}, nil
	}
	expected := computeSignature(s.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			matched = true
			break
		}
	}
	if !matched {
		return WebhookVerifyResult{Valid: false, Err: errors.New("signature mismatch")}, nil
	}

	var event struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object stripeSession `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}
	result := WebhookVerifyResult{Valid: true, EventType: event.Type}
	if event.Type != eventCheckoutCompleted {
		return result, nil
	}
	result.Notification = toNotification(event.Data.Object)
	return result, nil
}

func toNotification(session stripeSession) *order.Notification {
	name := session.ShippingDetails.Name
	if name == "" {
		name = session.CustomerDetails.Name
	}
	return &order.Notification{
		SessionID:       session.ID,
		PaymentIntentID: session.PaymentIntent,
		CustomerName:    session.CustomerDetails.Name,
		CustomerEmail:   session.CustomerDetails.Email,
		AmountTotal:     session.AmountTotal,
		ShippingAmount:  session.ShippingCost.AmountTotal,
		ShippingAddress: order.Address{
			Name:    name,
			Line1:   session.ShippingDetails.Address.Line1,
			Line2:   session.ShippingDetails.Address.Line2,
			City:    session.ShippingDetails.Address.City,
			State:   session.ShippingDetails.Address.State,
			Zip:     session.ShippingDetails.Address.PostalCode,
			Country: session.ShippingDetails.Address.Country,
		},
		Metadata: order.Metadata{
			ItemsJSON:     session.Metadata[metaItems],
			Subtotal:      session.Metadata[metaSubtotal],
			ShippingCost:  session.Metadata[metaShippingCost],
			TaxAmount:     session.Metadata[metaTaxAmount],
			ShippingState: session.Metadata[metaShippingState],
		},
	}
}

func parseSignatureHeader(header string) (int64, []string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, nil, errors.New("missing signature header")
	}
	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, errors.New("malformed signature timestamp")
			}
			timestamp = parsed
		case "v1":
			signatures = append(signatures, value)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, errors.New("malformed signature header")
	}
	return timestamp, signatures, nil
}

func computeSignature(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
