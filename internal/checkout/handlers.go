package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/gardencraft/storefront-api/internal/common"
	"github.com/gardencraft/storefront-api/internal/obs"
)

// Handler exposes the quote and session endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

// Quote prices the submitted cart and returns the full quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	quote, err := h.Svc.Quote(r.Context(), in)
	if err != nil {
		h.countQuote("error")
		h.writeError(w, err)
		return
	}
	h.countQuote("ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": quote})
}

// CreateSession prices the cart and opens a hosted payment session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.CreateSession(r.Context(), in)
	if err != nil {
		h.countSession("error")
		h.writeError(w, err)
		return
	}
	h.countSession("ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return Input{}, false
	}
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid payload", nil)
		return Input{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusBadRequest, common.CodeInvalidInput, "invalid payload", err.Error())
			return Input{}, false
		}
	}
	return in, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
}

func (h *Handler) countQuote(result string) {
	if obs.CheckoutQuoteTotal != nil {
		obs.CheckoutQuoteTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countSession(result string) {
	if obs.CheckoutSessionTotal != nil {
		obs.CheckoutSessionTotal.WithLabelValues(result).Inc()
	}
}
