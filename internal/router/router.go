// Package router wires the HTTP routes to their handlers and applies
// per-group middleware: the response cache on the public browse
// endpoints, the rate limiter on the code-challenge and hold endpoints,
// and JWT + role checks on the operator console.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/orro/bus-booking/internal/config"
	"github.com/orro/bus-booking/internal/handler"
	"github.com/orro/bus-booking/internal/middleware"
)

// Handlers bundles the constructed handlers the router mounts.
type Handlers struct {
	Browse       *handler.BrowseHandler
	Checkout     *handler.CheckoutHandler
	Verification *handler.VerificationHandler
	Payment      *handler.PaymentHandler
	Auth         *handler.AuthHandler
	Admin        *handler.AdminHandler
}

// Register mounts every route.  rdb may be nil, in which case caching
// and rate limiting pass through.
func Register(e *echo.Echo, h Handlers, jwtSecret string, cacheCfg config.CacheConfig, rlCfg config.RateLimitConfig, rdb *redis.Client) {
	e.GET("/healthz", handler.Health)

	// Public browse.  City directory and trip search are cacheable;
	// the seat map is served straight from the ledger every time.
	browse := e.Group("/v1")
	cached := browse.Group("", middleware.NewRedisCache(cacheCfg, rdb))
	cached.GET("/cities", h.Browse.ListCities)
	cached.GET("/trips", h.Browse.SearchTrips)
	browse.GET("/trips/batch", h.Browse.GetTrips)
	browse.GET("/trips/:id", h.Browse.GetTrip)
	browse.GET("/trips/:id/seats", h.Browse.ListSeats)

	limited := middleware.NewTokenBucket(rlCfg, rdb)

	// Verification: both endpoints are rate limited so codes cannot be
	// brute-forced and contacts cannot be enumerated by volume.
	verify := e.Group("/v1/verify", limited)
	verify.POST("/send", h.Verification.Send)
	verify.POST("/confirm", h.Verification.Confirm)

	// Checkout.  The session ID in the path is the caller's capability;
	// the hold endpoint is rate limited to bound seat-set churn.
	checkout := e.Group("/v1/checkout")
	checkout.POST("", h.Checkout.Open)
	checkout.GET("/:id", h.Checkout.Get)
	checkout.POST("/:id/hold", h.Checkout.Hold, limited)
	checkout.POST("/:id/identity", h.Checkout.Identity)
	checkout.POST("/:id/pay", h.Checkout.Pay)
	checkout.POST("/:id/extend", h.Checkout.Extend)
	checkout.DELETE("/:id", h.Checkout.Cancel)

	// Payment callbacks.  The webhook authenticates by signature, the
	// redirect verification by asking the provider.
	payments := e.Group("/v1/payments")
	payments.POST("/webhook", h.Payment.Webhook)
	payments.GET("/verify/:reference", h.Payment.VerifyRedirect)
	payments.GET("/:reference/ticket", h.Payment.Ticket)

	// Operator console.
	e.POST("/v1/admin/login", h.Auth.Login, limited)
	e.POST("/v1/admin/login/verify", h.Auth.VerifyLogin, limited)

	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.GET("/trips", h.Admin.ListTrips)
	admin.POST("/trips", h.Admin.CreateTrip)
	admin.PUT("/trips/:id", h.Admin.UpdateTrip)
	admin.DELETE("/trips/:id", h.Admin.DeleteTrip)
	admin.GET("/trips/:id/bookings", h.Admin.ListBookings)
	admin.POST("/cities", h.Admin.AddCity)
	admin.DELETE("/cities/:id", h.Admin.RemoveCity)
	admin.POST("/bookings/:id/cancel", h.Admin.CancelBooking)
	admin.GET("/bookings/:id/ticket", h.Admin.Ticket)
}
