package main

import (
	"context"
	"strings"
	"time"

	"wash-sync/cmd/server/handlers"
	carwashHandlers "wash-sync/cmd/server/handlers/carwashes"
	"wash-sync/cmd/server/handlers/httperr"
	reservationHandlers "wash-sync/cmd/server/handlers/reservations"
	"wash-sync/cmd/server/middlewares"
	"wash-sync/internal/clients/mongo"
	"wash-sync/internal/config"
	"wash-sync/internal/logger"
	carwashServices "wash-sync/internal/services/carwashes"
	reservationServices "wash-sync/internal/services/reservations"
	"wash-sync/internal/services/watch"
	util "wash-sync/internal/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const (
	RateLimitExpiration = 1 * time.Minute
)

// setupRouter configures and returns a Fiber app with all routes
func setupRouter(ctx context.Context, cfg config.Config) (*fiber.App, *watch.Manager) {

	// Initialize validator and register reservation field rules
	v := validator.New()
	if err := util.RegisterReservationRules(v); err != nil {
		logger.L().Error("failed to register reservation validators", "err", err)
		panic(err)
	}

	// Validate JWT algorithm at boot
	alg := strings.ToUpper(cfg.JWTAlgorithm)
	switch alg {
	case "HS256":
		// Valid algorithm
	default:
		logger.L().Error("unsupported JWT algorithm", "algorithm", cfg.JWTAlgorithm)
		panic("unsupported JWT algorithm: " + cfg.JWTAlgorithm)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: httperr.Handler,
		Immutable:    true, // make Fiber copy all request-derived strings
	})

	// Global middlewares
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Content-Type, Authorization",
	}))

	// Repositories
	reservationsRepo, err := mongo.NewReservationsRepo(ctx, mongo.DB())
	if err != nil {
		logger.L().Error(reservationServices.ErrCreateReservationsRepo.Error(), "error", err)
		panic(err)
	}
	carwashesRepo, err := mongo.NewCarwashesRepo(ctx, mongo.DB())
	if err != nil {
		logger.L().Error(carwashServices.ErrCreateCarwashesRepo.Error(), "error", err)
		panic(err)
	}

	// Services
	carwashSvc := carwashServices.NewService(carwashesRepo, logger.L())
	reservationSvc := reservationServices.NewService(reservationsRepo, carwashSvc, logger.L())

	// Live sync plumbing: change feed, per-user sessions, device fan-out
	feed := mongo.NewFeed(mongo.DB())
	hub := watch.NewHub(cfg.WSOutboxBuffer)
	manager := watch.NewManager(feed, hub, carwashSvc, watch.SessionConfig{
		DedupTTL:      time.Duration(cfg.NotifyDedupTTLSec) * time.Second,
		DedupCapacity: cfg.NotifyDedupCapacity,
	}, logger.L())

	if cfg.RouteMetricsEnabled {
		middlewares.AttachMetrics(app, watch.Collectors(manager, hub)...)
	}

	// Health check endpoint, outside versioned API to appease scanners and to avoid logging
	app.Get("/healthz", handlers.Healthz)

	var v1 fiber.Router
	if cfg.RequestLoggingEnabled {
		v1 = app.Group("/api/v1", fiberlogger.New())
		logger.L().Info("request logging enabled")
	} else {
		v1 = app.Group("/api/v1")
		logger.L().Info("request logging disabled")
	}

	jwtMiddleware := middlewares.JWT(cfg)

	// Carwash routes
	carwashH := carwashHandlers.NewHandlers(carwashSvc, v)
	carwashGrp := v1.Group("/carwashes", jwtMiddleware)
	carwashGrp.Post("/", carwashH.Create)
	carwashGrp.Get("/", carwashH.ListOwned)
	carwashGrp.Get("/:id", carwashH.Get)

	// Reservation routes. Booking is rate limited per client.
	bookingLimiter := middlewares.BuildRateLimiter(cfg.BookingRatePerMin, RateLimitExpiration)
	resH := reservationHandlers.NewHandlers(reservationSvc, feed, carwashSvc, v)
	resGrp := v1.Group("/reservations", jwtMiddleware)
	resGrp.Post("/", bookingLimiter, resH.Create)
	resGrp.Get("/", resH.List)
	resGrp.Patch("/:id/status", resH.SetStatus)
	resGrp.Post("/:id/seen", resH.MarkSeen)

	// WebSocket routes
	wsHandlers := reservationHandlers.NewWebSocketHandlers(hub, manager, feed, carwashSvc, cfg.JWTSecret, cfg.WSMaxSessionSec)
	app.Use("/ws", reservationHandlers.LogWSConnections(cfg.JWTSecret))
	app.Get("/ws/reservations/stream", wsHandlers.WSUpgrade, websocket.New(wsHandlers.WSReservationsStream))

	// Identity echo endpoint (for testing JWT middleware and for future use)
	v1.Get("/me", jwtMiddleware, handlers.Me)

	return app, manager
}
