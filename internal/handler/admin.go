package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/service"
)

// AdminHandler is the operator console: trip and city management,
// booking oversight, the audited cancellation override and e-ticket
// downloads.  Every route requires the ADMIN role.
type AdminHandler struct {
	Catalog *service.Catalog
	Tickets *service.TicketService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(catalog *service.Catalog, tickets *service.TicketService) *AdminHandler {
	if catalog == nil || tickets == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Catalog: catalog, Tickets: tickets}
}

// tripBody is the create/update payload.  seat_count is honored only at
// creation; on update the stored value wins.
type tripBody struct {
	Name            string `json:"name"`
	PickupCity      string `json:"pickup_city"`
	PickupLocation  string `json:"pickup_location"`
	DropoffCity     string `json:"dropoff_city"`
	DropoffLocation string `json:"dropoff_location"`
	TravelDate      string `json:"travel_date"`
	DepartureTime   string `json:"departure_time"`
	ArrivalTime     string `json:"arrival_time"`
	PriceKobo       int64  `json:"price_kobo"`
	Vehicle         string `json:"vehicle"`
	VehicleType     string `json:"vehicle_type"`
	SeatCount       uint32 `json:"seat_count"`
	IsHireTrip      bool   `json:"is_hire_trip"`
}

func (b tripBody) toModel() model.Trip {
	return model.Trip{
		Name:            b.Name,
		PickupCity:      b.PickupCity,
		PickupLocation:  b.PickupLocation,
		DropoffCity:     b.DropoffCity,
		DropoffLocation: b.DropoffLocation,
		TravelDate:      b.TravelDate,
		DepartureTime:   b.DepartureTime,
		ArrivalTime:     b.ArrivalTime,
		PriceKobo:       b.PriceKobo,
		Vehicle:         b.Vehicle,
		VehicleType:     b.VehicleType,
		SeatCount:       b.SeatCount,
		IsHireTrip:      b.IsHireTrip,
	}
}

// CreateTrip handles POST /v1/admin/trips.  The seat set is provisioned
// in the same transaction as the trip row.
func (h *AdminHandler) CreateTrip(c echo.Context) error {
	var body tripBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	t := body.toModel()
	if err := h.Catalog.CreateTrip(c.Request().Context(), &t); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusCreated, tripView(t))
}

// UpdateTrip handles PUT /v1/admin/trips/:id.
func (h *AdminHandler) UpdateTrip(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	var body tripBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	t := body.toModel()
	t.ID = id
	if err := h.Catalog.UpdateTrip(c.Request().Context(), &t); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, tripView(t))
}

// DeleteTrip handles DELETE /v1/admin/trips/:id.  Refused once any seat
// has left FREE.
func (h *AdminHandler) DeleteTrip(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	if err := h.Catalog.DeleteTrip(c.Request().Context(), id); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// ListTrips handles GET /v1/admin/trips.
func (h *AdminHandler) ListTrips(c echo.Context) error {
	trips, err := h.Catalog.ListTrips(c.Request().Context())
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": tripViews(trips)})
}

// AddCity handles POST /v1/admin/cities.
func (h *AdminHandler) AddCity(c echo.Context) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&body); err != nil || body.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	id, err := h.Catalog.AddCity(c.Request().Context(), body.Name)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": id, "name": body.Name})
}

// RemoveCity handles DELETE /v1/admin/cities/:id.
func (h *AdminHandler) RemoveCity(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid city id"})
	}
	if err := h.Catalog.RemoveCity(c.Request().Context(), id); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// ListBookings handles GET /v1/admin/trips/:id/bookings.
func (h *AdminHandler) ListBookings(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	bookings, err := h.Catalog.ListBookings(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	out := make([]echo.Map, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, echo.Map{
			"id":           b.ID,
			"passenger_id": b.IdentityID,
			"seat_ids":     b.SeatIDs,
			"amount_kobo":  b.AmountKobo,
			"payment_ref":  b.PaymentRef,
			"status":       b.Status,
			"created_at":   b.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": out})
}

// CancelBooking handles POST /v1/admin/bookings/:id/cancel.  The
// operator's identity from the access token is recorded on the booking
// and the seats return to FREE.
func (h *AdminHandler) CancelBooking(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	actor := adminActor(c)
	if err := h.Catalog.CancelBooking(c.Request().Context(), id, actor); err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": true})
}

// Ticket handles GET /v1/admin/bookings/:id/ticket, returning the
// e-ticket PDF.
func (h *AdminHandler) Ticket(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	pdf, filename, err := h.Tickets.GenerateETicket(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}

// adminActor builds the audit string recorded on administrative
// overrides from the JWT subject claim.
func adminActor(c echo.Context) string {
	if v := c.Get("user_id"); v != nil {
		switch id := v.(type) {
		case string:
			return "admin:" + id
		case float64:
			return "admin:" + strconv.FormatUint(uint64(id), 10)
		}
	}
	return "admin:unknown"
}
