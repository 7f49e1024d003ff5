package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dannyvalenz/fanlink-backend/api/controllers"
	webhookcontrollers "github.com/dannyvalenz/fanlink-backend/api/controllers/webhooks"
	"github.com/dannyvalenz/fanlink-backend/api/middleware"
	cartsvc "github.com/dannyvalenz/fanlink-backend/internal/cart"
	checkoutsvc "github.com/dannyvalenz/fanlink-backend/internal/checkout"
	eventsvc "github.com/dannyvalenz/fanlink-backend/internal/events"
	membershipsvc "github.com/dannyvalenz/fanlink-backend/internal/membership"
	ordersvc "github.com/dannyvalenz/fanlink-backend/internal/orders"
	stripewebhook "github.com/dannyvalenz/fanlink-backend/internal/webhooks/stripe"
	"github.com/dannyvalenz/fanlink-backend/pkg/config"
	"github.com/dannyvalenz/fanlink-backend/pkg/db"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
	"github.com/dannyvalenz/fanlink-backend/pkg/redis"
	"github.com/dannyvalenz/fanlink-backend/pkg/stripe"
)

// RouterParams collects everything the HTTP surface depends on.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Metrics       *metrics.CheckoutMetrics
	Registry      *prometheus.Registry
	DB            *db.Client
	Redis         *redis.Client
	Cart          cartsvc.Service
	Checkout      checkoutsvc.Service
	Events        eventsvc.Service
	Orders        ordersvc.Service
	Membership    membershipsvc.Service
	StripeClient  *stripe.Client
	StripeWebhook *stripewebhook.Service
}

// NewRouter wires the public storefront API. All buyer endpoints sit under
// /api/public; there is no private surface in this service.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.Metrics),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessStores(p)))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhook, p.StripeClient, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Use(middleware.Session(logg))
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		if p.Redis != nil {
			r.Use(middleware.Idempotency(p.Redis, logg))
		}

		paymentThrottle := passthrough
		if p.Redis != nil {
			paymentThrottle = middleware.PaymentRateLimit(
				p.Redis, cfg.RateLimit.PaymentLimit, cfg.RateLimit.PaymentWindow, logg)
		}

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartGet(p.Cart, logg))
			r.Delete("/", controllers.CartClear(p.Cart, logg))
			r.Post("/items", controllers.CartAdd(p.Cart, logg))
			r.Delete("/items", controllers.CartRemove(p.Cart, logg))
		})

		r.Route("/checkout/{flow}", func(r chi.Router) {
			r.Post("/start", controllers.CheckoutStart(p.Checkout, logg))
			r.Get("/", controllers.CheckoutGet(p.Checkout, logg))
			r.With(paymentThrottle).Post("/advance", controllers.CheckoutAdvance(p.Checkout, logg))
			r.Post("/back", controllers.CheckoutBack(p.Checkout, logg))
		})

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.Get("/", controllers.EventGet(p.Events, logg))
			r.With(paymentThrottle).Post("/checkout", controllers.EventCheckout(p.Events, logg))
		})

		r.With(paymentThrottle).Post("/payments/start", controllers.PaymentStart(p.Orders, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(p.Orders, logg))
			r.Get("/{orderID}", controllers.OrderGet(p.Orders, logg))
			r.Post("/finalize", controllers.OrderFinalize(p.Orders, logg))
		})

		r.Route("/membership", func(r chi.Router) {
			r.Get("/tiers", controllers.MembershipTiers(p.Membership, logg))
			r.With(paymentThrottle).Post("/subscriptions", controllers.MembershipSubscribe(p.Membership, logg))
			r.Post("/finalize", controllers.MembershipFinalize(p.Membership, logg))
		})
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}

func readinessStores(p RouterParams) map[string]controllers.Pinger {
	stores := map[string]controllers.Pinger{}
	if p.DB != nil {
		stores["database"] = p.DB
	}
	if p.Redis != nil {
		stores["redis"] = p.Redis
	}
	return stores
}
