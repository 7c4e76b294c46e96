package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/service"
)

// BrowseHandler serves the unauthenticated storefront reads: the city
// directory, trip search and live seat maps.  The city and search
// endpoints sit behind the response cache; the seat map never does.
type BrowseHandler struct {
	Catalog *service.Catalog
}

// NewBrowseHandler constructs a BrowseHandler.
func NewBrowseHandler(catalog *service.Catalog) *BrowseHandler {
	if catalog == nil {
		panic("nil catalog passed to NewBrowseHandler")
	}
	return &BrowseHandler{Catalog: catalog}
}

// ListCities handles GET /v1/cities.
func (h *BrowseHandler) ListCities(c echo.Context) error {
	cities, err := h.Catalog.ListCities(c.Request().Context())
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cities": cities})
}

// SearchTrips handles GET /v1/trips?from=&to=&date=.
func (h *BrowseHandler) SearchTrips(c echo.Context) error {
	from := c.QueryParam("from")
	to := c.QueryParam("to")
	if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "from and to are required"})
	}
	trips, err := h.Catalog.SearchTrips(c.Request().Context(), from, to, c.QueryParam("date"))
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": tripViews(trips)})
}

// GetTrips handles GET /v1/trips/batch?ids=1,2,3 for the storefront's
// fetch-by-id path.
func (h *BrowseHandler) GetTrips(c echo.Context) error {
	raw := strings.Split(c.QueryParam("ids"), ",")
	ids := make([]uint64, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil || id == 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id: " + p})
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ids is required"})
	}
	trips, err := h.Catalog.GetTrips(c.Request().Context(), ids)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"trips": tripViews(trips)})
}

// GetTrip handles GET /v1/trips/:id.
func (h *BrowseHandler) GetTrip(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	trip, err := h.Catalog.GetTrip(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	return c.JSON(http.StatusOK, tripView(*trip))
}

// ListSeats handles GET /v1/trips/:id/seats.  It returns the live seat
// map; holder session IDs are internal and never exposed.
func (h *BrowseHandler) ListSeats(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid trip id"})
	}
	if _, err := h.Catalog.GetTrip(c.Request().Context(), id); err != nil {
		return domainError(c, err)
	}
	seats, err := h.Catalog.ListSeats(c.Request().Context(), id)
	if err != nil {
		return domainError(c, err)
	}
	out := make([]echo.Map, 0, len(seats))
	for _, s := range seats {
		out = append(out, echo.Map{
			"id":       s.ID,
			"position": s.Position,
			"state":    s.State,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"trip_id": id, "seats": out})
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.ErrBadRequest
	}
	return id, nil
}

// tripView shapes a trip for public responses.
func tripView(t model.Trip) echo.Map {
	return echo.Map{
		"id":               t.ID,
		"name":             t.Name,
		"pickup_city":      t.PickupCity,
		"pickup_location":  t.PickupLocation,
		"dropoff_city":     t.DropoffCity,
		"dropoff_location": t.DropoffLocation,
		"travel_date":      t.TravelDate,
		"departure_time":   t.DepartureTime,
		"arrival_time":     t.ArrivalTime,
		"price_kobo":       t.PriceKobo,
		"vehicle":          t.Vehicle,
		"vehicle_type":     t.VehicleType,
		"seat_count":       t.SeatCount,
		"is_hire_trip":     t.IsHireTrip,
	}
}

func tripViews(trips []model.Trip) []echo.Map {
	out := make([]echo.Map, 0, len(trips))
	for _, t := range trips {
		out = append(out, tripView(t))
	}
	return out
}
