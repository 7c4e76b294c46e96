// Command server runs the bus booking API: seat inventory with
// temporary holds, checkout sessions, one-time-code verification,
// payment reconciliation and the operator console.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/orro/bus-booking/internal/config"
	"github.com/orro/bus-booking/internal/database"
	"github.com/orro/bus-booking/internal/handler"
	"github.com/orro/bus-booking/internal/model"
	"github.com/orro/bus-booking/internal/queue"
	"github.com/orro/bus-booking/internal/repository"
	"github.com/orro/bus-booking/internal/router"
	"github.com/orro/bus-booking/internal/service"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		// Verification cannot run without the code store; everything
		// else degrades, so refuse to start rather than serve a
		// checkout that can never complete.
		log.Fatal("redis: connection failed; verification requires it")
	}

	// Repositories.
	ledger := repository.NewSeatLedgerRepo(db)
	holdRepo := repository.NewHoldRepo(db)
	sessionRepo := repository.NewSessionRepo(db)
	bookingRepo := repository.NewBookingRepo(db)
	identityRepo := repository.NewIdentityRepo(db)
	tripRepo := repository.NewTripRepo(db)
	cityRepo := repository.NewCityRepo(db)
	adminRepo := repository.NewAdminRepo(db)

	// Services.
	grants := service.NewRedisGrantStore(rdb)
	codes := service.NewRedisCodeStore(rdb)
	var transport service.OTPTransport = service.LogTransport{}
	if cfg.SMSGatewayURL != "" {
		transport = service.NewWebhookSMSTransport(cfg.SMSGatewayURL, cfg.SMSGatewayKey)
	}
	verifier := service.NewVerificationService(codes, transport, identityRepo, grants, cfg.OTPTTL, cfg.GrantTTL)

	provider := service.NewPaystackClient(cfg.PaystackURL, cfg.PaystackKey, cfg.PaystackCB)
	publisher := queue.NewPublisher(cfg.BrokerURL)

	holds := service.NewHoldManager(ledger, holdRepo, service.WithHoldTTL(cfg.HoldTTL))
	checkout := service.NewCheckoutService(sessionRepo, tripRepo, holds, grants, provider)
	reconciler := service.NewReconciler(sessionRepo, bookingRepo, ledger, holds, checkout, publisher)
	catalog := service.NewCatalog(tripRepo, cityRepo, bookingRepo, ledger)
	tickets := service.NewTicketService(tripRepo, identityRepo, bookingRepo, ledger)
	auth := service.NewAuthService(adminRepo, verifier, cfg.JWTSecret, cfg.AccessTTLMin, cfg.BcryptCost)

	// Bootstrap operator account, so a fresh deployment can log in to
	// the console.  Refreshes the hash when the env password changes.
	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := auth.ProvisionAdmin(context.Background(), cfg.AdminEmail, cfg.AdminPassword, cfg.AdminPhone); err != nil {
			log.Fatalf("admin bootstrap: %v", err)
		}
	}

	// Expired holds abandon their sessions; the hook is registered
	// after construction because checkout and the manager reference
	// each other.
	holds.SetExpiryHook(func(ctx context.Context, h *model.Hold) {
		if err := checkout.AbandonForHold(ctx, h); err != nil {
			log.Printf("sweep: abandon session %s: %v", h.SessionID, err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Background workers: the expiry sweep and the broker consumer.
	go holds.Run(ctx, cfg.SweepInterval)
	go func() {
		if err := queue.StartConsumer(cfg.BrokerURL); err != nil {
			log.Printf("consumer: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.Register(e, router.Handlers{
		Browse:       handler.NewBrowseHandler(catalog),
		Checkout:     handler.NewCheckoutHandler(checkout),
		Verification: handler.NewVerificationHandler(verifier),
		Payment:      handler.NewPaymentHandler(reconciler, provider, tickets, cfg.PaystackKey),
		Auth:         handler.NewAuthHandler(auth),
		Admin:        handler.NewAdminHandler(catalog, tickets),
	}, cfg.JWTSecret, config.LoadCacheConfig(), config.LoadRateLimitConfig(), rdb)

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil {
			log.Printf("server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
