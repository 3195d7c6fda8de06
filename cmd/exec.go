package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"ticket-ledger/config"
	"ticket-ledger/internal/handlers"
	"ticket-ledger/internal/services"
	"ticket-ledger/internal/storage/memory"
	"ticket-ledger/internal/storage/redisstore"
	"ticket-ledger/internal/storage/sqlstore"
	"ticket-ledger/monitoring"
	"ticket-ledger/security"
	"ticket-ledger/utils"

	"github.com/joho/godotenv"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded, using environment only")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	store, closeStore, err := openStore(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()

	monitor := monitoring.NewMonitor()
	notifier := newNotifier(cfg)

	// Initialize services
	issuer := services.NewTicketIssuer(cfg.ScanTokenSecret)
	bookingService := services.NewBookingService(store, issuer, notifier, monitor)
	eventService := services.NewEventService(store, notifier, monitor)
	accountService := services.NewAccountService(redisClient, cfg.SessionTTL)
	rateLimiter := security.NewRateLimiter(redisClient, accountService, cfg.PurchaseRateLimit, cfg.RateLimitWindow)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(accountService, bookingService)
	eventHandler := handlers.NewEventHandler(accountService, eventService)
	ticketHandler := handlers.NewTicketHandler(accountService, bookingService)
	authHandler := handlers.NewAuthHandler(accountService)

	app := pocketbase.New()
	app.RootCmd.AddCommand(newSeedCommand(eventService))
	if len(os.Args) == 1 {
		app.RootCmd.SetArgs([]string{"serve", "--http", "0.0.0.0:" + cfg.Port})
	}

	if cfg.SeedSampleData {
		if err := seedCatalog(ctx, eventService); err != nil {
			slog.Error("Failed to seed sample catalog", "error", err)
		}
	}

	if cfg.EnableMetrics {
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		api := se.Router.Group("/api/v1")
		api.BindFunc(rateLimiter.AntiBotMiddleware())

		// Booking endpoints
		api.POST("/booking/purchase", bookingHandler.Purchase).BindFunc(rateLimiter.PurchaseRateLimit())

		// Event endpoints
		api.GET("/events", eventHandler.ListEvents)
		api.GET("/events/categories", eventHandler.Categories)
		api.GET("/events/{eventId}", eventHandler.GetEvent)
		api.POST("/events", eventHandler.CreateEvent)
		api.PATCH("/events/{eventId}", eventHandler.UpdateEvent)
		api.DELETE("/events/{eventId}", eventHandler.DeleteEvent)
		api.GET("/organizer/dashboard", eventHandler.Dashboard)

		// Ticket endpoints
		api.GET("/tickets", ticketHandler.MyTickets)
		api.GET("/tickets/{ticketId}", ticketHandler.GetTicket)
		api.POST("/tickets/verify", ticketHandler.VerifyTicket)

		// Auth endpoints
		api.POST("/auth/register", authHandler.Register)
		api.POST("/auth/login", authHandler.Login)
		api.POST("/auth/logout", authHandler.Logout)

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(e.Request.Context(), redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{
				"status":  "healthy",
				"backend": cfg.LedgerBackend,
			})
		})

		slog.Info("Server routes registered", "backend", cfg.LedgerBackend)
		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		slog.Info("Shutdown signal received, cleaning up...")
		cancel()
		return e.Next()
	})

	return app.Start()
}

// openStore picks the inventory store for the configured backend. The redis
// backend shares the session client.
func openStore(cfg *config.Config, redisClient *redis.Client) (services.InventoryStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.LedgerBackend {
	case config.BackendSQLite:
		store, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite ledger: %w", err)
		}
		slog.Info("Using sqlite ledger", "path", cfg.SQLitePath)
		return store, store.Close, nil
	case config.BackendRedis:
		slog.Info("Using redis ledger")
		return redisstore.New(redisClient), noop, nil
	default:
		slog.Info("Using in-memory ledger")
		return memory.New(), noop, nil
	}
}

func newNotifier(cfg *config.Config) services.Notifier {
	if !cfg.PubNubEnabled() {
		slog.Info("PubNub keys not set, notifications disabled")
		return services.NopNotifier{}
	}
	publisher := services.NewPubNubPublisher(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUUID)
	return services.NewNotificationService(publisher, nil)
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server stopped", "error", err)
	}
}
