package handler

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/service"
)

// PaymentHandler receives the payment provider's signals: the signed
// server-to-server webhook and the browser redirect verification.  Both
// funnel into the Reconciler, which is idempotent, so a callback that
// arrives on both paths settles exactly once.
type PaymentHandler struct {
	Reconciler *service.Reconciler
	Provider   *service.PaystackClient
	Tickets    *service.TicketService
	secretKey  string
}

// NewPaymentHandler constructs a PaymentHandler.  secretKey is the
// provider secret used to check webhook signatures.
func NewPaymentHandler(reconciler *service.Reconciler, provider *service.PaystackClient, tickets *service.TicketService, secretKey string) *PaymentHandler {
	if reconciler == nil {
		panic("nil reconciler passed to NewPaymentHandler")
	}
	return &PaymentHandler{Reconciler: reconciler, Provider: provider, Tickets: tickets, secretKey: secretKey}
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Status    string `json:"status"`
	} `json:"data"`
}

// Webhook handles POST /v1/payments/webhook.  The body must carry a
// valid HMAC-SHA512 signature in X-Paystack-Signature.  Escalated
// outcomes (mismatch, late settlement) still return 200: the event was
// processed and recorded, and a retry would change nothing.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if !h.validSignature(body, c.Request().Header.Get("X-Paystack-Signature")) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid signature"})
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payload"})
	}

	cb := service.PaymentCallback{
		Reference:  payload.Data.Reference,
		AmountKobo: payload.Data.Amount,
	}
	switch payload.Event {
	case "charge.success":
		cb.Status = service.CallbackSuccess
	case "charge.failed":
		cb.Status = service.CallbackFailed
	default:
		// Events we do not act on are acknowledged so the provider
		// stops redelivering them.
		return c.NoContent(http.StatusOK)
	}
	return h.reconcile(c, cb)
}

// VerifyRedirect handles GET /v1/payments/verify/:reference.  The
// passenger's browser lands here after the provider redirect; the
// transaction state is fetched from the provider, never trusted from
// query parameters.
func (h *PaymentHandler) VerifyRedirect(c echo.Context) error {
	reference := c.Param("reference")
	if reference == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference is required"})
	}
	cb, err := h.Provider.VerifyTransaction(c.Request().Context(), reference)
	if err != nil {
		c.Logger().Errorf("payment verify %s: %v", reference, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "provider verification failed"})
	}
	return h.reconcile(c, cb)
}

func (h *PaymentHandler) reconcile(c echo.Context, cb service.PaymentCallback) error {
	booking, err := h.Reconciler.OnCallback(c.Request().Context(), cb)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrPaymentMismatch):
			return c.JSON(http.StatusOK, echo.Map{"status": "escalated", "reason": "amount mismatch"})
		case errors.Is(err, model.ErrSettlementAfterExpiry):
			return c.JSON(http.StatusOK, echo.Map{"status": "escalated", "reason": "seats no longer available"})
		case errors.Is(err, model.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown reference"})
		default:
			return domainError(c, err)
		}
	}
	if booking == nil {
		return c.JSON(http.StatusOK, echo.Map{"status": "abandoned"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status":     "settled",
		"booking_id": booking.ID,
		"seat_ids":   booking.SeatIDs,
	})
}

// Ticket handles GET /v1/payments/:reference/ticket: the passenger's
// e-ticket download, keyed by the payment reference they were handed at
// checkout.  The reference is opaque and unguessable, so no login is
// required.
func (h *PaymentHandler) Ticket(c echo.Context) error {
	reference := c.Param("reference")
	if reference == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "reference is required"})
	}
	pdf, filename, err := h.Tickets.GenerateByReference(c.Request().Context(), reference)
	if err != nil {
		return domainError(c, err)
	}
	c.Response().Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

func (h *PaymentHandler) validSignature(body []byte, signature string) bool {
	if h.secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
