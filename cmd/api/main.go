package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dannyvalenz/fanlink-backend/api/routes"
	cartsvc "github.com/dannyvalenz/fanlink-backend/internal/cart"
	checkoutsvc "github.com/dannyvalenz/fanlink-backend/internal/checkout"
	eventsvc "github.com/dannyvalenz/fanlink-backend/internal/events"
	membershipsvc "github.com/dannyvalenz/fanlink-backend/internal/membership"
	ordersvc "github.com/dannyvalenz/fanlink-backend/internal/orders"
	"github.com/dannyvalenz/fanlink-backend/internal/payments"
	stripewebhook "github.com/dannyvalenz/fanlink-backend/internal/webhooks/stripe"
	"github.com/dannyvalenz/fanlink-backend/pkg/config"
	"github.com/dannyvalenz/fanlink-backend/pkg/db"
	"github.com/dannyvalenz/fanlink-backend/pkg/enums"
	"github.com/dannyvalenz/fanlink-backend/pkg/logger"
	"github.com/dannyvalenz/fanlink-backend/pkg/metrics"
	"github.com/dannyvalenz/fanlink-backend/pkg/migrate"
	"github.com/dannyvalenz/fanlink-backend/pkg/outbox"
	"github.com/dannyvalenz/fanlink-backend/pkg/redis"
	"github.com/dannyvalenz/fanlink-backend/pkg/square"
	"github.com/dannyvalenz/fanlink-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	checkoutMetrics := metrics.NewCheckoutMetrics(registry)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	stripeProvider, err := payments.NewStripeProvider(stripeClient, cfg.Stripe.MembershipProduct, logg)
	if err != nil {
		logg.Error(ctx, "failed to create stripe provider", err)
		os.Exit(1)
	}

	providers := []payments.Provider{stripeProvider}
	if cfg.Square.AccessToken != "" {
		squareClient, sqErr := square.NewClient(ctx, cfg.Square, logg)
		if sqErr != nil {
			logg.Error(ctx, "failed to bootstrap square", sqErr)
			os.Exit(1)
		}
		squareProvider, sqErr := payments.NewSquareProvider(squareClient)
		if sqErr != nil {
			logg.Error(ctx, "failed to create square provider", sqErr)
			os.Exit(1)
		}
		providers = append(providers, squareProvider)
	}
	providerRegistry, err := payments.NewRegistry(providers...)
	if err != nil {
		logg.Error(ctx, "failed to build provider registry", err)
		os.Exit(1)
	}

	cartStore, err := cartsvc.NewStore(redisClient, cfg.Checkout.CartTTL)
	if err != nil {
		logg.Error(ctx, "failed to create cart store", err)
		os.Exit(1)
	}
	cartService, err := cartsvc.NewService(cartStore, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := ordersvc.NewRepository(dbClient.DB())

	ordersService, err := ordersvc.NewService(ordersvc.ServiceParams{
		Repo:              ordersRepo,
		TransactionRunner: dbClient,
		Providers:         providerRegistry,
		Cart:              cartService,
		Outbox:            outboxService,
		Guard:             redisClient,
		GuardTTL:          cfg.Checkout.FinalizeTTL,
		Logger:            logg,
		Metrics:           checkoutMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	eventsService, err := eventsvc.NewService(eventsvc.ServiceParams{
		Repo:              eventsvc.NewRepository(dbClient.DB()),
		OrdersRepo:        ordersRepo,
		TransactionRunner: dbClient,
		Providers:         providerRegistry,
		Outbox:            outboxService,
		Logger:            logg,
		Metrics:           checkoutMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create events service", err)
		os.Exit(1)
	}

	membershipService, err := membershipsvc.NewService(membershipsvc.ServiceParams{
		Repo:              membershipsvc.NewRepository(dbClient.DB()),
		TransactionRunner: dbClient,
		Providers:         providerRegistry,
		Outbox:            outboxService,
		Guard:             redisClient,
		GuardTTL:          cfg.Checkout.FinalizeTTL,
		Logger:            logg,
		Metrics:           checkoutMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create membership service", err)
		os.Exit(1)
	}

	sessionStore, err := checkoutsvc.NewSessionStore(redisClient, cfg.Checkout.SessionTTL)
	if err != nil {
		logg.Error(ctx, "failed to create checkout session store", err)
		os.Exit(1)
	}
	checkoutService, err := checkoutsvc.NewService(sessionStore, map[enums.FlowKind]checkoutsvc.IntentIssuer{
		enums.FlowKindCart:       ordersService,
		enums.FlowKindTickets:    eventsService,
		enums.FlowKindMembership: membershipService,
	}, logg, checkoutMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:      ordersService,
		Memberships: membershipService,
		Dedupe:      redisClient,
		DedupeTTL:   cfg.Checkout.FinalizeTTL,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	startCtx := logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": providerRegistry.Names(),
	})
	logg.Info(startCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			Metrics:       checkoutMetrics,
			Registry:      registry,
			DB:            dbClient,
			Redis:         redisClient,
			Cart:          cartService,
			Checkout:      checkoutService,
			Events:        eventsService,
			Orders:        ordersService,
			Membership:    membershipService,
			StripeClient:  stripeClient,
			StripeWebhook: webhookService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(startCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
