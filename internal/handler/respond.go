// Package handler contains the Echo HTTP handlers: public browse,
// checkout, verification, payment callbacks and the operator console.
// Handlers bind and validate requests, call the service layer and map
// domain errors onto HTTP statuses; no business rules live here.
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/model"
)

// domainError maps a service error onto an HTTP response.  Seat
// conflicts carry the contended seat IDs so the client can refresh its
// seat map and let the passenger pick again.
func domainError(c echo.Context, err error) error {
	var conflict *model.ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "seats unavailable",
			"unavailable": conflict.Seats,
		})
	case errors.Is(err, model.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, model.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "expired"})
	case errors.Is(err, model.ErrForbidden):
		return c.JSON(http.StatusConflict, echo.Map{"error": "operation not allowed in current state"})
	case errors.Is(err, model.ErrVerificationFailed):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": model.ErrVerificationFailed.Error()})
	case errors.Is(err, model.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input"})
	case errors.Is(err, model.ErrSeatsInUse):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats have holds or sales"})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
