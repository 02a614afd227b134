package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gardencraft/storefront-api/internal/common"
	"github.com/gardencraft/storefront-api/internal/payment"
	"github.com/gardencraft/storefront-api/internal/pricing"
)

// Input is one quote or session request from the storefront cart.
type Input struct {
	Items         []pricing.Item `json:"items" validate:"required,min=1,dive"`
	ShippingState string         `json:"shippingState"`
	CustomerEmail string         `json:"customerEmail" validate:"omitempty,email"`
}

// SessionOutput is returned when a hosted payment session is opened.
type SessionOutput struct {
	SessionID   string        `json:"sessionId"`
	RedirectURL string        `json:"redirectUrl"`
	Quote       pricing.Quote `json:"quote"`
}

// Service computes checkout quotes and opens payment sessions seeded with
// the quote's amounts.
type Service struct {
	Engine     *pricing.Engine
	Provider   payment.Provider
	SuccessURL string
	CancelURL  string
}

// Quote prices the submitted cart without side effects.
func (s *Service) Quote(ctx context.Context, in Input) (pricing.Quote, error) {
	if s == nil || s.Engine == nil {
		return pricing.Quote{}, errors.New("checkout service not configured")
	}
	quote, err := s.Engine.Quote(ctx, in.Items, in.ShippingState)
	if err != nil {
		return pricing.Quote{}, mapQuoteError(err)
	}
	return quote, nil
}

// CreateSession quotes the cart and opens a hosted payment session. The
// quote's totals and item snapshot are pinned into the session metadata so
// ingestion can reproduce them when the payment completes.
func (s *Service) CreateSession(ctx context.Context, in Input) (SessionOutput, error) {
	if s == nil || s.Provider == nil {
		return SessionOutput{}, errors.New("payment provider not configured")
	}
	quote, err := s.Quote(ctx, in)
	if err != nil {
		return SessionOutput{}, err
	}
	session, err := s.Provider.CreateCheckoutSession(ctx, payment.SessionRequest{
		Quote:         quote,
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		SuccessURL:    s.SuccessURL,
		CancelURL:     s.CancelURL,
	})
	if err != nil {
		return SessionOutput{}, fmt.Errorf("create payment session: %w", err)
	}
	return SessionOutput{SessionID: session.ID, RedirectURL: session.URL, Quote: quote}, nil
}

func mapQuoteError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrNoValidItems):
		return &common.AppError{
			Code:       common.CodeInvalidInput,
			Message:    "no valid items provided",
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	case errors.Is(err, pricing.ErrProductNotFound):
		return &common.AppError{
			Code:       common.CodeProductNotFound,
			Message:    "one or more products could not be found",
			HTTPStatus: http.StatusNotFound,
			Err:        err,
		}
	default:
		return err
	}
}
