package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/service"
)

// CheckoutHandler drives a passenger's checkout over HTTP.  The session
// ID returned by Open is the client's capability for all later steps;
// there is no passenger login.
type CheckoutHandler struct {
	Checkout *service.CheckoutService
}

// NewCheckoutHandler constructs a CheckoutHandler.
func NewCheckoutHandler(checkout *service.CheckoutService) *CheckoutHandler {
	if checkout == nil {
		panic("nil checkout service passed to NewCheckoutHandler")
	}
	return &CheckoutHandler{Checkout: checkout}
}

// Open handles POST /v1/checkout.  Body: {"trip_id": N, "hire": bool}.
func (h *CheckoutHandler) Open(c echo.Context) error {
	var body struct {
		TripID uint64 `json:"trip_id"`
		Hire   bool   `json:"hire"`
	}
	if err := c.Bind(&body); err != nil || body.TripID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "trip_id is required"})
	}
	s, err := h.Checkout.Open(c.Request().Context(), body.TripID, body.Hire)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusCreated, sessionView(s))
}

// Get handles GET /v1/checkout/:id.
func (h *CheckoutHandler) Get(c echo.Context) error {
	s, err := h.Checkout.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

// Hold handles POST /v1/checkout/:id/hold.  Body: {"positions": [..],
// "grant": "..."} with grant optional: a returning passenger's grant is
// consumed here and the session skips the identity step.  In hire mode
// positions are ignored and every free seat is claimed.  On a conflict
// the response names the unavailable seats and the session stays in
// SELECTING; a spent grant keeps the hold and reports 410 with the
// session so the client can re-verify.
func (h *CheckoutHandler) Hold(c echo.Context) error {
	var body struct {
		Positions []uint32 `json:"positions"`
		Grant     string   `json:"grant"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	s, err := h.Checkout.RequestHold(c.Request().Context(), c.Param("id"), body.Positions, body.Grant)
	if err != nil {
		if s != nil && errors.Is(err, model.ErrExpired) {
			return c.JSON(http.StatusGone, echo.Map{
				"error":   "invalid or expired grant",
				"session": sessionView(s),
			})
		}
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

// Identity handles POST /v1/checkout/:id/identity.  Body:
// {"grant": "<token from verification>"}.
func (h *CheckoutHandler) Identity(c echo.Context) error {
	var body struct {
		Grant string `json:"grant"`
	}
	if err := c.Bind(&body); err != nil || body.Grant == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "grant is required"})
	}
	s, err := h.Checkout.AttachIdentity(c.Request().Context(), c.Param("id"), body.Grant)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, sessionView(s))
}

// Pay handles POST /v1/checkout/:id/pay.  Body: {"email": "..."}.  It
// returns the provider redirect URL and reference; calling it again
// issues a fresh intent without losing the hold.
func (h *CheckoutHandler) Pay(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&body); err != nil || body.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}
	s, intent, err := h.Checkout.RequestPayment(c.Request().Context(), c.Param("id"), body.Email)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session":           sessionView(s),
		"reference":         intent.Reference,
		"authorization_url": intent.AuthorizationURL,
	})
}

// Extend handles POST /v1/checkout/:id/extend, refreshing the hold
// while the passenger is still filling in forms.
func (h *CheckoutHandler) Extend(c echo.Context) error {
	if err := h.Checkout.Extend(c.Request().Context(), c.Param("id")); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"extended": true})
}

// Cancel handles DELETE /v1/checkout/:id.  Idempotent.
func (h *CheckoutHandler) Cancel(c echo.Context) error {
	if err := h.Checkout.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
}

func sessionView(s *model.CheckoutSession) echo.Map {
	return echo.Map{
		"id":             s.ID,
		"trip_id":        s.TripID,
		"state":          s.State,
		"hire_mode":      s.HireMode,
		"seat_positions": s.SeatPositions,
		"total_kobo":     s.TotalKobo,
	}
}
