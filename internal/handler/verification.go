package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/service"
)

// VerificationHandler exposes the passenger one-time-code challenge.
// Both endpoints sit behind the rate limiter; the responses never
// reveal whether a contact is known.
type VerificationHandler struct {
	Verifier *service.VerificationService
}

// NewVerificationHandler constructs a VerificationHandler.
func NewVerificationHandler(verifier *service.VerificationService) *VerificationHandler {
	if verifier == nil {
		panic("nil verification service passed to NewVerificationHandler")
	}
	return &VerificationHandler{Verifier: verifier}
}

// Send handles POST /v1/verify/send.  Body: {"phone": "..."}.  The
// response is identical for known and unknown contacts.
func (h *VerificationHandler) Send(c echo.Context) error {
	var body struct {
		Phone string `json:"phone"`
	}
	if err := c.Bind(&body); err != nil || body.Phone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone is required"})
	}
	if err := h.Verifier.SendCode(c.Request().Context(), body.Phone); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sent": true})
}

// Confirm handles POST /v1/verify/confirm.  Body carries the contact
// form plus the code; on success it returns the single-use grant token
// the checkout session redeems.
func (h *VerificationHandler) Confirm(c echo.Context) error {
	var body struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
		Code      string `json:"code"`
	}
	if err := c.Bind(&body); err != nil || body.Phone == "" || body.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "phone and code are required"})
	}
	grant, identity, err := h.Verifier.VerifyPassenger(c.Request().Context(), service.PassengerDetails{
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Email:     body.Email,
		Phone:     body.Phone,
	}, body.Code)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"grant":        grant,
		"passenger_id": identity.ID,
	})
}
