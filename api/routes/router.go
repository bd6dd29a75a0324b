package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/easevote-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/easevote-backend/api/controllers/webhooks"
	"github.com/angelmondragon/easevote-backend/api/middleware"
	"github.com/angelmondragon/easevote-backend/internal/gateways"
	"github.com/angelmondragon/easevote-backend/internal/purchases"
	"github.com/angelmondragon/easevote-backend/internal/settings"
	"github.com/angelmondragon/easevote-backend/internal/tickets"
	"github.com/angelmondragon/easevote-backend/internal/ussd"
	"github.com/angelmondragon/easevote-backend/internal/votes"
	"github.com/angelmondragon/easevote-backend/pkg/config"
	"github.com/angelmondragon/easevote-backend/pkg/db"
	"github.com/angelmondragon/easevote-backend/pkg/enums"
	"github.com/angelmondragon/easevote-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/easevote-backend/pkg/redis"
)

// redisStore is the slice of the redis client the HTTP layer relies on.
type redisStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(context.Context) error
}

type gatewayResolver interface {
	ByName(name enums.GatewayName) (gateways.Gateway, error)
}

type webhookGuard interface {
	Claim(ctx context.Context, gateway enums.GatewayName, deliveryID string) (gateways.DeliveryState, error)
	Complete(ctx context.Context, gateway enums.GatewayName, deliveryID string) error
	Release(ctx context.Context, gateway enums.GatewayName, deliveryID string) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient redisStore,
	metricsHandler http.Handler,
	reservations purchases.ReservationManager,
	settlement purchases.SettlementCoordinator,
	gatewaySelector gatewayResolver,
	guard webhookGuard,
	ticketsService tickets.Service,
	votesService votes.Service,
	settingsService settings.Service,
	ussdService ussd.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.App.FrontendURL),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	// a nil interface keeps the middleware in pass-through mode
	var idemStore middleware.IdempotencyStore
	var limiter middleware.RateLimiterStore
	readyDeps := map[string]controllers.Pinger{}
	if dbP != nil {
		readyDeps["database"] = dbP
	}
	if redisClient != nil {
		idemStore = redisClient
		limiter = redisClient
		readyDeps["redis"] = redisClient
	}

	reservationPolicy := middleware.NewRateLimitPolicy(
		"reservation",
		cfg.RateLimit.ReservationWindow,
		cfg.RateLimit.ReservationIPLimit,
		cfg.RateLimit.ReservationEmailLimit,
	)
	throttle := middleware.RateLimit(reservationPolicy, limiter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyDeps))
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idemStore, logg))

		// gateways call these without a bearer token
		r.Post("/webhooks/{gateway}", webhookcontrollers.GatewayWebhook(gatewaySelector, settlement, guard, logg))
		if cfg.FeatureFlags.EnableUSSD {
			r.Post("/ussd", controllers.USSDCallback(ussdService, logg))
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))

			r.Route("/purchases", func(r chi.Router) {
				r.With(throttle).Post("/tickets", controllers.PurchaseTickets(reservations, logg))
				r.With(throttle).Post("/votes", controllers.PurchaseVotes(reservations, logg))
				r.Get("/{reference}", controllers.PurchaseDetail(reservations, logg))
				r.Post("/{reference}/verify", controllers.VerifyPurchase(settlement, logg))
			})
			r.Get("/tickets/purchase/{reference}", controllers.TicketsByReference(ticketsService, logg))
			r.Get("/events/{eventId}/results", controllers.EventResults(votesService, logg))
			r.With(throttle).Post("/events/{eventId}/vote/{code}", controllers.VoteForNominee(votesService, reservations, logg))
			r.Get("/nominees/{code}", controllers.NomineeByCode(votesService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.With(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleOrganizer, enums.RoleScanner)).
				Post("/tickets/scan", controllers.ScanTicket(ticketsService, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin, enums.RoleOrganizer))
				r.Get("/events/{eventId}/tickets", controllers.EventTickets(ticketsService, logg))
				r.Get("/events/{eventId}/tickets/stats", controllers.EventTicketStats(ticketsService, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
				r.Get("/settings/payment-gateway", controllers.AdminPaymentGateway(settingsService, logg))
				r.Put("/settings/payment-gateway", controllers.AdminSetPaymentGateway(settingsService, logg))
			})
		})
	})

	return r
}
