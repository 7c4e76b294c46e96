package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/service"
)

// AuthHandler exposes the two-step operator login: password first, then
// a one-time code sent to the account's phone.
type AuthHandler struct {
	Auth *service.AuthService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	if auth == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth}
}

// Login handles POST /v1/admin/login.  On a correct password a code is
// dispatched; the same response covers wrong password and unknown
// email.
func (h *AuthHandler) Login(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil || body.Email == "" || body.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}
	if err := h.Auth.Login(c.Request().Context(), body.Email, body.Password); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"code_sent": true})
}

// VerifyLogin handles POST /v1/admin/login/verify and returns the
// access token.
func (h *AuthHandler) VerifyLogin(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.Bind(&body); err != nil || body.Email == "" || body.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code are required"})
	}
	token, admin, err := h.Auth.VerifyLogin(c.Request().Context(), body.Email, body.Code)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access_token": token.Token,
		"expires_at":   token.Exp,
		"email":        admin.Email,
	})
}
